// Package quotes fetches the list of quotations the bot picks from and
// renders a single quote as a chat reply.
package quotes

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	DefaultText   = "Quote text not found."
	DefaultAuthor = "Unknown Author"

	// FallbackReply is sent instead of a quote whenever no quote is available.
	FallbackReply = "Sorry, I couldn't fetch a quote right now."
)

// A Quote is one entry of the remote quote list. Missing keys are already
// replaced by DefaultText and DefaultAuthor.
type Quote struct {
	Text   string
	Author string
}

// ErrNotObject is returned when decoding a Quote from anything but a JSON
// object.
var ErrNotObject = errors.New("quote is not a JSON object")

// UnmarshalJSON decodes a JSON object with optional "text" and "author"
// keys. Every other JSON value, null included, is rejected with
// ErrNotObject.
func (q *Quote) UnmarshalJSON(data []byte) error {
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return ErrNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	q.Text, q.Author = DefaultText, DefaultAuthor

	if raw, ok := fields["text"]; ok {
		q.Text = stringValue(raw)
	}
	if raw, ok := fields["author"]; ok {
		q.Author = stringValue(raw)
	}
	return nil
}

// stringValue returns JSON strings unquoted and every other value as its
// compact JSON text.
func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Format renders q as a Discord blockquote.
func Format(q Quote) string {
	return fmt.Sprintf("> \"%s\"\n> \n> – *%s*", q.Text, q.Author)
}

// Pick selects one of the quotes uniformly at random. It returns false if
// the list is empty. A nil rng uses the global random source.
func Pick(rng *rand.Rand, list []Quote) (Quote, bool) {
	if len(list) == 0 {
		return Quote{}, false
	}

	var i int
	if rng == nil {
		i = rand.IntN(len(list))
	} else {
		i = rng.IntN(len(list))
	}
	return list[i], true
}
