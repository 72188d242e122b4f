// Package handler answers "@bot quote" mentions with a random quotation.
package handler

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/gillepool/quotebot/internal/brain"
	"github.com/gillepool/quotebot/internal/events"
	"github.com/gillepool/quotebot/internal/message"
	"github.com/gillepool/quotebot/internal/quotes"
	"go.uber.org/zap"
)

// Keyword must start the text following the mention of the bot. The match
// is a case insensitive prefix match, "quotes please" triggers as well.
const Keyword = "quote"

// ActionKind tells what the handler decided to do with a message.
type ActionKind int

const (
	Noop ActionKind = iota
	Send
)

// Action is the result of handling a single message.
type Action struct {
	Kind ActionKind
	Text string
}

// Handler decides how the bot reacts to a message. It holds no state
// between messages. A non-nil Rand must not be shared between goroutines.
type Handler struct {
	SelfID      string // user ID of the bot
	SelfMention string // text the chat inserts when the bot is mentioned
	Source      quotes.Source
	Rand        *rand.Rand // nil uses the global random source
	logger      *zap.Logger
}

// New creates a Handler for the bot identified by ready.
func New(ready events.ReadyEvent, source quotes.Source, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		SelfID:      ready.UserID,
		SelfMention: ready.Mention,
		Source:      source,
		logger:      logger,
	}
}

// Handle processes one message and returns what should be sent back. The
// quote source is only called for messages that mention the bot followed
// by the Keyword.
func (h *Handler) Handle(ctx context.Context, msg events.ReceiveMessageEvent) Action {
	if msg.AuthorID == h.SelfID {
		return Action{Kind: Noop}
	}

	if !msg.Mentioned(h.SelfID) {
		return Action{Kind: Noop}
	}

	if !h.hasKeyword(msg.Text) {
		return Action{Kind: Noop}
	}

	h.logger.Info("Mention detected with quote keyword",
		zap.String("author", msg.AuthorName),
		zap.String("author_id", msg.AuthorID),
		zap.String("channel", msg.Channel),
	)

	list, err := h.Source.FetchQuotes(ctx)
	if err != nil {
		h.logger.Warn("Failed to fetch or parse quotes", zap.Error(err))
		return Action{Kind: Send, Text: quotes.FallbackReply}
	}

	q, ok := quotes.Pick(h.Rand, list)
	if !ok {
		h.logger.Warn("Failed to fetch or parse quotes", zap.String("reason", "empty quote list"))
		return Action{Kind: Send, Text: quotes.FallbackReply}
	}

	h.logger.Info("Replied with quote", zap.String("quote_author", q.Author))
	return Action{Kind: Send, Text: quotes.Format(q)}
}

// hasKeyword looks at the text after the first occurrence of the bot
// mention. A text without the mention string never matches.
func (h *Handler) hasKeyword(text string) bool {
	if h.SelfMention == "" {
		return false
	}

	_, after, found := strings.Cut(text, h.SelfMention)
	if !found {
		return false
	}

	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(after)), Keyword)
}

// Register makes the handler answer every ReceiveMessageEvent of the brain
// through the given adapter. It also logs the login and the shutdown of the
// bot.
func (h *Handler) Register(b *brain.Brain, adapter message.Sender) {
	b.RegisterHandler(func(evt events.ReadyEvent) {
		h.logger.Info("Logged in",
			zap.String("username", evt.Username),
			zap.String("user_id", evt.UserID),
		)
		h.logger.Info("Bot is ready to listen for mentions!")
	})

	b.RegisterHandler(func(events.ShutdownEvent) {
		h.logger.Info("Stopped listening for mentions")
	})

	b.RegisterHandler(func(ctx context.Context, evt events.ReceiveMessageEvent) error {
		action := h.Handle(ctx, evt)
		if action.Kind != Send {
			return nil
		}

		msg := message.Message{Channel: evt.Channel, Adapter: adapter}
		if err := msg.Respond(action.Text); err != nil {
			h.logger.Error("Failed to send reply", zap.String("channel", evt.Channel), zap.Error(err))
		}
		return nil
	})
}
