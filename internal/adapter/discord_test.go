package adapter

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gillepool/quotebot/internal/brain"
	"github.com/gillepool/quotebot/internal/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	me       *discordgo.User
	meErr    error
	openErr  error
	closed   bool
	handlers []interface{}
	removed  int
	sent     map[string][]string
}

func (s *fakeSession) Me() (*discordgo.User, error) { return s.me, s.meErr }
func (s *fakeSession) Open() error                  { return s.openErr }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) AddHandler(handler interface{}) func() {
	s.mu.Lock()
	s.handlers = append(s.handlers, handler)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.removed++
		s.mu.Unlock()
	}
}

func (s *fakeSession) SendMessage(channelID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = map[string][]string{}
	}
	s.sent[channelID] = append(s.sent[channelID], content)
	return nil
}

func (s *fakeSession) messageCreate(m *discordgo.MessageCreate) {
	s.mu.Lock()
	handlers := append([]interface{}(nil), s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		if fn, ok := h.(func(*discordgo.Session, *discordgo.MessageCreate)); ok {
			fn(nil, m)
		}
	}
}

func TestNewDiscordAdapterEmptyToken(t *testing.T) {
	_, err := NewDiscordAdapter("", nil)
	assert.Error(t, err)
}

func TestDiscordOpen(t *testing.T) {
	s := &fakeSession{me: &discordgo.User{ID: "42", Username: "quotebot"}}
	a := newDiscordAdapter(s, nil)

	ready, err := a.Open()
	require.NoError(t, err)
	assert.Equal(t, events.ReadyEvent{UserID: "42", Username: "quotebot", Mention: "<@42>"}, ready)
}

func TestDiscordOpenInvalidToken(t *testing.T) {
	s := &fakeSession{meErr: &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusUnauthorized}}}
	a := newDiscordAdapter(s, nil)

	_, err := a.Open()
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, AuthInvalidToken, authErr.Reason)
}

func TestDiscordOpenMissingIntents(t *testing.T) {
	s := &fakeSession{
		me:      &discordgo.User{ID: "42"},
		openErr: &websocket.CloseError{Code: 4014},
	}
	a := newDiscordAdapter(s, nil)

	_, err := a.Open()
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, AuthMissingIntents, authErr.Reason)
	assert.True(t, s.closed, "session must be closed after a failed login")
}

func TestDiscordEmitsEvents(t *testing.T) {
	s := &fakeSession{me: &discordgo.User{ID: "42", Username: "quotebot"}}
	a := newDiscordAdapter(s, nil)
	_, err := a.Open()
	require.NoError(t, err)

	b := brain.NewBrain(nil)
	ready := make(chan events.ReadyEvent, 1)
	received := make(chan events.ReceiveMessageEvent, 1)
	b.RegisterHandler(func(evt events.ReadyEvent) { ready <- evt })
	b.RegisterHandler(func(evt events.ReceiveMessageEvent) { received <- evt })

	go b.HandleEvents()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = b.Shutdown(ctx)
	}()

	a.RegisterAt(b)
	assert.Equal(t, "42", (<-ready).UserID)

	s.messageCreate(&discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		Content:   "<@42> quote",
		Author:    &discordgo.User{ID: "7", Username: "alice"},
		Mentions:  []*discordgo.User{{ID: "42"}, nil},
	}})

	evt := <-received
	assert.Equal(t, "m1", evt.ID)
	assert.Equal(t, "c1", evt.Channel)
	assert.Equal(t, "<@42> quote", evt.Text)
	assert.Equal(t, "7", evt.AuthorID)
	assert.Equal(t, "alice", evt.AuthorName)
	assert.Equal(t, []string{"42"}, evt.Mentions)

	require.NoError(t, a.Send("hi", "c1"))
	assert.Equal(t, []string{"hi"}, s.sent["c1"])

	require.NoError(t, a.Close())
	assert.True(t, s.closed)
	assert.Equal(t, 2, s.removed)
}

func TestMessageEventWithoutAuthor(t *testing.T) {
	evt := messageEvent(&discordgo.Message{Content: "hi"})
	assert.Empty(t, evt.AuthorID)
	assert.Empty(t, evt.Mentions)
}
