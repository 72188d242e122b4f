package adapter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gillepool/quotebot/internal/brain"
	"github.com/gillepool/quotebot/internal/events"
)

// CLIChannel is the channel of every message read by the CLIAdapter.
const CLIChannel = "cli"

// CLIAdapter lets you talk to the bot on the terminal. Mention the bot by
// typing its Mention, e.g. "@quotebot quote".
type CLIAdapter struct {
	Prefix  string
	Name    string
	Input   io.ReadCloser
	Output  io.Writer
	Author  string     // used to set the author of the messages, defaults to os.Getenv("USER")
	mu      sync.Mutex // protects the Output and closing channel
	started bool
	closing chan chan error
}

// NewCLIAdapter creates a new CLIAdapter. The caller must call Close
// to make the CLIAdapter stop reading messages and emitting events.
func NewCLIAdapter(name string) *CLIAdapter {
	author := os.Getenv("USER")
	if author == "" {
		author = "cli-user"
	}

	return &CLIAdapter{
		Prefix:  fmt.Sprintf("%s > ", name),
		Name:    name,
		Input:   os.Stdin,
		Output:  os.Stdout,
		Author:  author,
		closing: make(chan chan error),
	}
}

func (a *CLIAdapter) identity() events.ReadyEvent {
	return events.ReadyEvent{
		UserID:   "cli:" + a.Name,
		Username: a.Name,
		Mention:  "@" + a.Name,
	}
}

// Open implements the Adapter interface, the terminal needs no connection.
func (a *CLIAdapter) Open() (events.ReadyEvent, error) {
	return a.identity(), nil
}

// RegisterAt starts reading messages from the Input and emitting a
// ReceiveMessageEvent for each line. The prompt is printed whenever the
// bot is ready to accept the next line.
func (a *CLIAdapter) RegisterAt(b *brain.Brain) {
	b.RegisterHandler(func(evt events.InitEvent) {
		_ = a.print(a.Prefix)
	})

	a.mu.Lock()
	a.started = true
	a.mu.Unlock()

	b.Emit(a.identity())
	go a.loop(b)
}

func (a *CLIAdapter) loop(b *brain.Brain) {
	done := make(chan struct{})
	defer close(done)
	input := a.readLines(done)

	// Buffered so the Brain never blocks on the callback.
	callback := make(chan brain.Event, 1)
	callbackFun := func(evt brain.Event) {
		callback <- evt
	}

	lines := input

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// no more input, wait for Close
				lines = nil
				input = nil
				continue
			}

			lines = nil // wait for the callback before reading the next line
			b.Emit(a.messageEvent(line), callbackFun)

		case <-callback:
			_ = a.print(a.Prefix)
			lines = input

		case result := <-a.closing:
			_ = a.print("\n")
			result <- a.Input.Close()
			return
		}
	}
}

func (a *CLIAdapter) messageEvent(line string) events.ReceiveMessageEvent {
	self := a.identity()
	evt := events.ReceiveMessageEvent{
		Text:       line,
		AuthorID:   a.Author,
		AuthorName: a.Author,
		Channel:    CLIChannel,
	}
	if strings.Contains(line, self.Mention) {
		evt.Mentions = []string{self.UserID}
	}
	return evt
}

// readLines reads lines from the Input until it is closed or done is
// closed. The lines do not include the trailing newline.
func (a *CLIAdapter) readLines(done <-chan struct{}) <-chan string {
	r := bufio.NewReader(a.Input)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			line, err := r.ReadString('\n')
			if line != "" {
				select {
				case lines <- strings.TrimRight(line, "\r\n"):
				case <-done:
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	return lines
}

// Send implements the Adapter interface by writing the text to the Output.
// The channel is ignored.
func (a *CLIAdapter) Send(text, _ string) error {
	return a.print(text + "\n")
}

// Close makes the CLIAdapter stop emitting any new events or printing any output.
// Calling this function more than once will result in an error.
func (a *CLIAdapter) Close() error {
	a.mu.Lock()
	closing, started := a.closing, a.started
	a.mu.Unlock()

	if closing == nil {
		return errors.New("already closed")
	}

	var err error
	if started {
		callback := make(chan error)
		closing <- callback
		err = <-callback
	} else {
		err = a.Input.Close()
	}

	// No output is printed after this point.
	a.mu.Lock()
	a.closing = nil
	a.mu.Unlock()

	return err
}

func (a *CLIAdapter) print(msg string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closing == nil {
		return errors.New("adapter is closed")
	}
	_, err := fmt.Fprint(a.Output, msg)
	return err
}
