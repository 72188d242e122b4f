package adapter

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/gillepool/quotebot/internal/brain"
	"github.com/gillepool/quotebot/internal/events"
	"go.uber.org/zap"
)

// Intents requested from the gateway. Reading the text of a message needs
// the privileged message content intent.
const Intents = discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// session is the part of *discordgo.Session the adapter needs.
type session interface {
	Me() (*discordgo.User, error)
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	SendMessage(channelID, content string) error
}

type discordSession struct {
	*discordgo.Session
}

func (s discordSession) Me() (*discordgo.User, error) {
	return s.User("@me")
}

func (s discordSession) SendMessage(channelID, content string) error {
	_, err := s.ChannelMessageSend(channelID, content)
	return err
}

// DiscordAdapter connects the bot to Discord over the gateway.
type DiscordAdapter struct {
	session session
	logger  *zap.Logger

	mu      sync.Mutex
	self    *discordgo.User
	removes []func()
}

// NewDiscordAdapter creates a new DiscordAdapter. The connection is only
// established by Open. The caller must call Close to disconnect.
func NewDiscordAdapter(token string, logger *zap.Logger) (*DiscordAdapter, error) {
	if token == "" {
		return nil, errors.New("discord token is empty")
	}

	client, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	client.Identify.Intents = Intents

	return newDiscordAdapter(discordSession{client}, logger), nil
}

func newDiscordAdapter(s session, logger *zap.Logger) *DiscordAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DiscordAdapter{
		session: s,
		logger:  logger,
	}
}

// Open validates the token and opens the gateway connection. Rejected
// credentials or intents are returned as *AuthError.
func (a *DiscordAdapter) Open() (events.ReadyEvent, error) {
	me, err := a.session.Me()
	if err != nil {
		return events.ReadyEvent{}, fmt.Errorf("failed to fetch bot user: %w", ClassifyAuthError(err))
	}

	a.logger.Info("Attempting to log in...")
	if err := a.session.Open(); err != nil {
		if closeErr := a.session.Close(); closeErr != nil {
			a.logger.Debug("Failed to close session after failed login", zap.Error(closeErr))
		}
		return events.ReadyEvent{}, fmt.Errorf("failed to open gateway connection: %w", ClassifyAuthError(err))
	}

	a.mu.Lock()
	a.self = me
	a.mu.Unlock()

	return readyEvent(me), nil
}

// RegisterAt emits a ReadyEvent for the established connection and a
// ReceiveMessageEvent for every message the bot can see.
func (a *DiscordAdapter) RegisterAt(b *brain.Brain) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.self != nil {
		b.Emit(readyEvent(a.self))
	}

	a.removes = append(a.removes,
		a.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			if r.User != nil {
				b.Emit(readyEvent(r.User))
			}
		}),
		a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if m.Message == nil {
				return
			}
			a.handleMessageEvent(m.Message, b)
		}),
	)
}

func (a *DiscordAdapter) handleMessageEvent(msg *discordgo.Message, b *brain.Brain) {
	b.Emit(messageEvent(msg))
}

// Send sends text to the channel with the given ID.
func (a *DiscordAdapter) Send(text, channelID string) error {
	a.logger.Debug("Sending message to channel", zap.String("channel_id", channelID))
	return a.session.SendMessage(channelID, text)
}

// Close removes all event handlers and closes the gateway connection.
func (a *DiscordAdapter) Close() error {
	a.mu.Lock()
	for _, remove := range a.removes {
		remove()
	}
	a.removes = nil
	a.mu.Unlock()

	return a.session.Close()
}

func readyEvent(u *discordgo.User) events.ReadyEvent {
	return events.ReadyEvent{
		UserID:   u.ID,
		Username: u.Username,
		Mention:  u.Mention(),
	}
}

func messageEvent(msg *discordgo.Message) events.ReceiveMessageEvent {
	evt := events.ReceiveMessageEvent{
		ID:      msg.ID,
		Text:    msg.Content,
		Channel: msg.ChannelID,
		Data:    msg,
	}

	if msg.Author != nil {
		evt.AuthorID = msg.Author.ID
		evt.AuthorName = msg.Author.Username
	}

	for _, u := range msg.Mentions {
		if u != nil {
			evt.Mentions = append(evt.Mentions, u.ID)
		}
	}

	return evt
}
