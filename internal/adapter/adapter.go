// Package adapter connects the Brain to a chat. Adapters emit events for
// everything they receive and send replies back to the chat.
package adapter

import (
	"github.com/gillepool/quotebot/internal/brain"
	"github.com/gillepool/quotebot/internal/events"
)

// An Adapter is a connection to a chat platform.
type Adapter interface {
	// Open connects to the chat and returns the identity of the bot.
	Open() (events.ReadyEvent, error)

	// RegisterAt makes the adapter emit its events on the given Brain.
	RegisterAt(*brain.Brain)

	Send(text, channel string) error
	Close() error
}
