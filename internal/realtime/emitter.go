package realtime

import (
	"log/slog"
	"reflect"
	"sync"

	"github.com/oriys/pulsar/internal/metrics"
)

// Handler receives the payload of an event published on a channel.
type Handler func(payload any)

// emitter is the listener registry. Registration has set semantics: the
// identical handler registered twice on a channel is stored once, keyed
// by its function pointer, so each emitted event invokes it exactly once.
type emitter struct {
	mu       sync.Mutex
	handlers map[Channel]map[uintptr]Handler
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func newEmitter(log *slog.Logger, m *metrics.Metrics) *emitter {
	return &emitter{
		handlers: make(map[Channel]map[uintptr]Handler),
		log:      log,
		metrics:  m,
	}
}

func handlerKey(fn Handler) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// on registers fn for the channel. Registering the same fn twice is
// idempotent.
func (e *emitter) on(ch Channel, fn Handler) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.handlers[ch]
	if !ok {
		set = make(map[uintptr]Handler)
		e.handlers[ch] = set
	}
	set[handlerKey(fn)] = fn
}

// off removes fn from the channel. Removing an unregistered fn is a no-op.
func (e *emitter) off(ch Channel, fn Handler) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if set, ok := e.handlers[ch]; ok {
		delete(set, handlerKey(fn))
	}
}

// emit invokes every handler registered for the channel. A panicking
// handler is recovered and logged; it neither prevents delivery to the
// remaining handlers nor reaches the transport goroutine.
func (e *emitter) emit(ch Channel, payload any) {
	e.mu.Lock()
	set := e.handlers[ch]
	fns := make([]Handler, 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	e.metrics.EventDispatched(string(ch))
	for _, fn := range fns {
		e.safeCall(ch, fn, payload)
	}
}

func (e *emitter) safeCall(ch Channel, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("listener panicked", "channel", string(ch), "panic", r)
		}
	}()
	fn(payload)
}
