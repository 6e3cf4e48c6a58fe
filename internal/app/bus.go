package app

import (
	"context"
	"sync"

	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/protocol"
)

// Handler receives events delivered on a room channel.
type Handler func(protocol.Event)

// Bus opens room-scoped broadcast channels (in-process, Redis, NATS, websocket relay).
type Bus interface {
	Open(ctx context.Context, roomCode string) (Channel, error)
}

// Channel is one room's broadcast primitive. Publish fans out to every subscriber of the room,
// including the publisher. Delivery is at-least-once at best, unordered across publishers, and may
// drop messages.
type Channel interface {
	Publish(ctx context.Context, event protocol.Event) error
	Subscribe(handler Handler) (unsubscribe func())
	Close() error
}

// HandlerSet is the subscriber registry used by Channel implementations. Dispatch calls handlers
// in registration order on the caller's goroutine.
type HandlerSet struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	order    []int
}

func NewHandlerSet() *HandlerSet {
	return &HandlerSet{handlers: make(map[int]Handler)}
}

// Add registers handler and returns a function removing it. The function is safe to call twice.
func (s *HandlerSet) Add(handler Handler) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.handlers[id] = handler
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			for i, v := range s.order {
				if v == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
		})
	}
}

func (s *HandlerSet) Dispatch(ev protocol.Event) {
	s.mu.RLock()
	handlers := make([]Handler, 0, len(s.order))
	for _, id := range s.order {
		handlers = append(handlers, s.handlers[id])
	}
	s.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Connection owns the single long-lived channel of a process. Opening a new room tears down the
// previous channel first.
type Connection struct {
	bus Bus

	mu      sync.Mutex
	channel Channel
}

func NewConnection(bus Bus) *Connection {
	return &Connection{bus: bus}
}

// Open connects to roomCode, closing any channel opened earlier.
func (c *Connection) Open(ctx context.Context, roomCode string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		_ = c.channel.Close()
		c.channel = nil
	}
	ch, err := c.bus.Open(ctx, roomCode)
	if err != nil {
		return err
	}
	c.channel = ch
	return nil
}

func (c *Connection) Publish(ctx context.Context, ev protocol.Event) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return domain.ErrRoomNotOpen
	}
	return ch.Publish(ctx, ev)
}

func (c *Connection) Subscribe(handler Handler) (func(), error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return nil, domain.ErrRoomNotOpen
	}
	return ch.Subscribe(handler), nil
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return nil
	}
	err := c.channel.Close()
	c.channel = nil
	return err
}
