package message

// A Sender delivers text to a channel of the chat. It is implemented by
// every adapter.
type Sender interface {
	Send(text, channel string) error
}

// A Message identifies where a reply to a received message has to go.
type Message struct {
	Channel string
	Adapter Sender
}

// Respond sends text as is to the channel the message was received on.
func (msg Message) Respond(text string) error {
	return msg.Adapter.Send(text, msg.Channel)
}
