package brain

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gillepool/quotebot/internal/events"
	"go.uber.org/zap"
)

// DefaultHandlerTimeout bounds the run time of a single event handler.
const DefaultHandlerTimeout = time.Minute

// The Brain receives events from the Adapter and dispatches them, one after
// another, to all handlers which are registered for the type of the event.
type Brain struct {
	logger *zap.Logger

	eventsInput chan Event // input for any new events, the Brain ensures that callers never block when writing to it
	eventsLoop  chan Event // used in Brain.HandleEvents() to actually process the events
	shutdown    chan shutdownRequest

	mu             sync.RWMutex // mu protects concurrent access to the handlers
	handlers       map[reflect.Type][]eventHandler
	handlerTimeout time.Duration // zero means no timeout

	emitMu sync.RWMutex // held for writing once the input gets closed
	closed bool

	RegistrationErrs []error     // any errors that occurred during setup (e.g. in RegisterHandler)
	handlingEvents   atomic.Bool // set while HandleEvents is running
}

// An Event wraps the concrete event value which is passed to the handlers.
type Event struct {
	Data      interface{}
	Callbacks []func(Event)
}

// The shutdownRequest type is used when signaling shutdown information between
// Brain.Shutdown() and the Brain.HandleEvents loop.
type shutdownRequest struct {
	ctx      context.Context
	callback chan struct{}
}

// An eventHandler is a function that takes a context and the reflected value
// of a concrete event type.
type eventHandler func(context.Context, reflect.Value) error

// NewBrain creates a Brain. HandleEvents must be called to actually process
// emitted events.
func NewBrain(logger *zap.Logger) *Brain {
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Brain{
		logger:         logger,
		eventsInput:    make(chan Event),
		eventsLoop:     make(chan Event),
		shutdown:       make(chan shutdownRequest),
		handlers:       make(map[reflect.Type][]eventHandler),
		handlerTimeout: DefaultHandlerTimeout,
	}

	go b.consumeEvents()

	return b
}

// SetHandlerTimeout changes the maximum run time of each handler. A zero
// duration disables the timeout.
func (b *Brain) SetHandlerTimeout(d time.Duration) {
	b.mu.Lock()
	b.handlerTimeout = d
	b.mu.Unlock()
}

// consumeEvents buffers all emitted events in an unbounded queue so Emit
// never waits for a slow handler.
func (b *Brain) consumeEvents() {
	var queue []Event

	for {
		var (
			out  chan Event
			next Event
		)
		if len(queue) > 0 {
			out, next = b.eventsLoop, queue[0]
		}

		select {
		case evt, ok := <-b.eventsInput:
			if !ok {
				for _, evt := range queue {
					b.eventsLoop <- evt
				}
				close(b.eventsLoop)
				return
			}
			queue = append(queue, evt)

		case out <- next:
			queue = queue[1:]
		}
	}
}

// RegisterHandler registers fun for the event type of its last argument.
// Valid signatures are
//
//	func(evt T)
//	func(evt T) error
//	func(ctx context.Context, evt T)
//	func(ctx context.Context, evt T) error
//
// Invalid handlers are recorded in RegistrationErrs.
func (b *Brain) RegisterHandler(fun interface{}) {
	err := b.registerHandler(fun)
	if err != nil {
		b.RegistrationErrs = append(b.RegistrationErrs, err)
	}
}

func (b *Brain) registerHandler(fun interface{}) error {
	handler := reflect.ValueOf(fun)
	if !handler.IsValid() || handler.Kind() != reflect.Func {
		return errors.New("event handler is not a function")
	}

	handlerType := handler.Type()
	eventType, withContext, err := checkHandlerParams(handlerType)
	if err != nil {
		return err
	}
	returnsErr, err := checkHandlerReturnValues(handlerType)
	if err != nil {
		return err
	}

	b.logger.Debug("Registered handler", zap.Stringer("event", eventType))

	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], newHandlerFunc(handler, withContext, returnsErr))
	b.mu.Unlock()

	return nil
}

func checkHandlerParams(handlerFunc reflect.Type) (eventType reflect.Type, withContext bool, err error) {
	numParams := handlerFunc.NumIn()
	if numParams == 0 || numParams > 2 {
		return nil, false, errors.New("event handler needs one or two arguments")
	}

	eventType = handlerFunc.In(numParams - 1) // the event is the last argument
	withContext = numParams == 2

	if withContext {
		contextInterface := reflect.TypeOf((*context.Context)(nil)).Elem()
		if handlerFunc.In(1).Implements(contextInterface) {
			return nil, false, errors.New("event handler context must be the first argument")
		}
		if !handlerFunc.In(0).Implements(contextInterface) {
			return nil, false, errors.New("event handler has two arguments but the first is not a context.Context")
		}
	}

	if eventType.Kind() == reflect.Ptr {
		return nil, false, errors.New("event handler argument cannot be a pointer")
	}
	if eventType.Kind() == reflect.Interface {
		return nil, false, errors.New("event handler argument must be a concrete event type")
	}

	return eventType, withContext, nil
}

func checkHandlerReturnValues(handlerFunc reflect.Type) (returnsError bool, err error) {
	switch handlerFunc.NumOut() {
	case 0:
		return false, nil
	case 1:
		errorInterface := reflect.TypeOf((*error)(nil)).Elem()
		if !handlerFunc.Out(0).Implements(errorInterface) {
			return false, errors.New("if the event handler has a return value it must implement the error interface")
		}
		return true, nil
	default:
		return false, errors.New("event handler has more than one return value")
	}
}

func newHandlerFunc(handler reflect.Value, withContext, returnsErr bool) eventHandler {
	return func(ctx context.Context, event reflect.Value) (handlerErr error) {
		defer func() {
			if err := recover(); err != nil {
				handlerErr = fmt.Errorf("handler panic: %v", err)
			}
		}()

		args := []reflect.Value{event}
		if withContext {
			args = []reflect.Value{reflect.ValueOf(ctx), event}
		}

		results := handler.Call(args)
		if returnsErr && !results[0].IsNil() {
			return results[0].Interface().(error)
		}
		return nil
	}
}

// Emit queues an event for the handlers. It never blocks on handler
// execution. Events emitted after Shutdown are dropped.
func (b *Brain) Emit(event interface{}, callbacks ...func(Event)) {
	b.emitMu.RLock()
	defer b.emitMu.RUnlock()

	if b.closed {
		b.logger.Warn("Dropping event after shutdown", zap.String("event", fmt.Sprintf("%T", event)))
		return
	}

	b.eventsInput <- Event{Data: event, Callbacks: callbacks}
}

// HandleEvents processes events until Shutdown is called. It emits an
// InitEvent before the first and a ShutdownEvent after the last event.
func (b *Brain) HandleEvents() {
	if !b.handlingEvents.CompareAndSwap(false, true) {
		return
	}
	defer b.handlingEvents.Store(false)

	ctx := context.Background()
	var shutdown shutdownRequest // set when Brain.Shutdown() is called

	b.handleEvent(ctx, Event{Data: events.InitEvent{}})

	for {
		select {
		case evt, ok := <-b.eventsLoop:
			if !ok {
				// consumeEvents is done and all pending events were processed.
				b.handleEvent(ctx, Event{Data: events.ShutdownEvent{}})
				close(shutdown.callback)
				return
			}

			b.handleEvent(ctx, evt)

		case shutdown = <-b.shutdown:
			// Stop accepting new events but keep processing the queue until
			// consumeEvents closes the loop channel.
			ctx = shutdown.ctx
			b.emitMu.Lock()
			b.closed = true
			close(b.eventsInput)
			b.emitMu.Unlock()
		}
	}
}

// Shutdown stops HandleEvents after all pending events were processed.
// It returns early with the context error if ctx is done first.
func (b *Brain) Shutdown(ctx context.Context) error {
	req := shutdownRequest{ctx: ctx, callback: make(chan struct{})}

	select {
	case b.shutdown <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.callback:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Brain) handleEvent(ctx context.Context, event Event) {
	eventData := reflect.ValueOf(event.Data)
	handlers := b.determineHandlers(eventData.Type())

	for _, handler := range handlers {
		err := b.executeEventHandler(ctx, handler, eventData)
		if err != nil {
			b.logger.Error("Event handler failed", zap.Stringer("event", eventData.Type()), zap.Error(err))
		}
	}

	for _, callback := range event.Callbacks {
		callback(event)
	}
}

func (b *Brain) executeEventHandler(ctx context.Context, handler eventHandler, event reflect.Value) error {
	b.mu.RLock()
	timeout := b.handlerTimeout
	b.mu.RUnlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- handler(ctx, event)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Brain) determineHandlers(eventType reflect.Type) []eventHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return append([]eventHandler(nil), b.handlers[eventType]...)
}
