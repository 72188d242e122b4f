package events

// InitEvent is the first event every handler sees, before any message.
type InitEvent struct{}

// ShutdownEvent is the last event, emitted after all pending events have
// been processed.
type ShutdownEvent struct{}

// ReadyEvent is emitted by an Adapter once it is connected to the chat and
// knows the identity of the bot.
type ReadyEvent struct {
	UserID   string
	Username string
	Mention  string // how the chat renders a mention of the bot, e.g. <@123>
}

// The ReceiveMessageEvent is emitted by an Adapter when the Bot sees
// a new message from the chat.
type ReceiveMessageEvent struct {
	ID         string   // The ID of the message, identifying it at least uniquely within the Channel
	Text       string   // The message text.
	AuthorID   string   // A string identifying the author of the message on the adapter.
	AuthorName string   // The display name of the author, only used for logging.
	Channel    string   // The channel over which the message was received.
	Mentions   []string // The IDs of all users mentioned in the message.

	// A message may optionally also contain additional information that was
	// received by the Adapter, e.g. the *discordgo.Message.
	Data interface{}
}

// Mentioned reports whether the user with the given ID is mentioned.
func (e ReceiveMessageEvent) Mentioned(userID string) bool {
	for _, id := range e.Mentions {
		if id == userID {
			return true
		}
	}
	return false
}
