// Package bus is a typed publish/subscribe registry for cross-context
// messages. Handlers are keyed by message type and an optional filter key
// matched against the message source.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsgist/internal/protocol"
)

// AnyKey registers a handler for messages from every source
const AnyKey = ""

// Handler receives dispatched messages. Implementations must be comparable
// (pointer types) so they can be removed again.
type Handler interface {
	HandleMessage(msg protocol.Message)
}

type funcHandler struct {
	fn func(protocol.Message)
}

func (h *funcHandler) HandleMessage(msg protocol.Message) { h.fn(msg) }

// Func adapts fn to a Handler. Keep the returned value to Remove it later.
func Func(fn func(protocol.Message)) Handler {
	return &funcHandler{fn: fn}
}

type registration struct {
	key     string
	handler Handler
}

// Bus routes inbound messages to registered handlers
type Bus struct {
	mu     sync.RWMutex
	routes map[protocol.Type][]registration // Protected by mu
	logger *zap.Logger
}

// New creates an empty bus
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		routes: make(map[protocol.Type][]registration),
		logger: logger,
	}
}

// On registers h for messages of type t whose source matches key.
// Registering the same triple twice delivers twice.
func (b *Bus) On(t protocol.Type, key string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[t] = append(b.routes[t], registration{key: key, handler: h})
}

// Remove unregisters one registration of the exact (t, key, h) triple.
// Removing something that is not registered is a no-op.
func (b *Bus) Remove(t protocol.Type, key string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.routes[t]
	for i, r := range regs {
		if r.key == key && r.handler == h {
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(b.routes, t)
			} else {
				b.routes[t] = next
			}
			return
		}
	}
}

// Dispatch delivers msg synchronously, in registration order, to every
// matching handler. Messages of unknown type or without a listener are
// dropped.
func (b *Bus) Dispatch(msg protocol.Message) {
	if !msg.Type.Valid() {
		b.logger.Debug("Dropping message of unknown type", zap.String("type", string(msg.Type)))
		return
	}

	b.mu.RLock()
	regs := b.routes[msg.Type]
	targets := make([]Handler, 0, len(regs))
	for _, r := range regs {
		if r.key == AnyKey || r.key == msg.Source {
			targets = append(targets, r.handler)
		}
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		b.logger.Debug("No handler for message",
			zap.String("type", string(msg.Type)),
			zap.String("source", msg.Source),
		)
		return
	}

	for _, h := range targets {
		h.HandleMessage(msg)
	}
}

// Count returns the number of registrations for t
func (b *Bus) Count(t protocol.Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.routes[t])
}
