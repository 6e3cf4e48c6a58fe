package memory

import (
	"context"
	"sync"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/protocol"
)

// Bus is an in-process app.Bus. All channels opened on one Bus share its relay, so a host and
// participants in the same process see each other.
type Bus struct {
	relay *app.RelayService
}

func NewBus(relay *app.RelayService) *Bus {
	return &Bus{relay: relay}
}

// NewLocalBus wires a Bus to a fresh in-memory room store.
func NewLocalBus() *Bus {
	return NewBus(app.NewRelayService(NewRoomStore()))
}

func (b *Bus) Open(ctx context.Context, roomCode string) (app.Channel, error) {
	events, cancel, err := b.relay.Subscribe(ctx, roomCode)
	if err != nil {
		return nil, err
	}
	ch := &channel{
		relay:    b.relay,
		room:     roomCode,
		handlers: app.NewHandlerSet(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go ch.pump(events)
	return ch, nil
}

type channel struct {
	relay    *app.RelayService
	room     string
	handlers *app.HandlerSet
	cancel   func()
	done     chan struct{}
	once     sync.Once
}

func (c *channel) pump(events <-chan protocol.Event) {
	defer close(c.done)
	for ev := range events {
		c.handlers.Dispatch(ev)
	}
}

func (c *channel) Publish(ctx context.Context, ev protocol.Event) error {
	_, err := c.relay.Publish(ctx, c.room, ev)
	return err
}

func (c *channel) Subscribe(handler app.Handler) func() {
	return c.handlers.Add(handler)
}

func (c *channel) Close() error {
	c.once.Do(c.cancel)
	return nil
}
