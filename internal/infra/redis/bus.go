package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/protocol"
)

// Bus carries room events over Redis pub/sub, one channel per room: room:{code}.
// Redis delivers to every subscriber including the publisher's own subscription.
type Bus struct {
	client *redis.Client
}

func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

func (b *Bus) Open(ctx context.Context, roomCode string) (app.Channel, error) {
	name := channelName(roomCode)
	sub := b.client.Subscribe(ctx, name)
	// Wait for the subscription confirmation so nothing published after Open is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", name, err)
	}

	ch := &channel{
		client:   b.client,
		name:     name,
		sub:      sub,
		handlers: app.NewHandlerSet(),
		done:     make(chan struct{}),
	}
	go ch.pump()
	return ch, nil
}

type channel struct {
	client   *redis.Client
	name     string
	sub      *redis.PubSub
	handlers *app.HandlerSet
	done     chan struct{}
	once     sync.Once
}

func (c *channel) pump() {
	defer close(c.done)
	for msg := range c.sub.Channel() {
		ev, err := protocol.Unmarshal([]byte(msg.Payload))
		if err != nil {
			log.Debug().Err(err).Str("channel", c.name).Msg("dropping undecodable message")
			continue
		}
		c.handlers.Dispatch(ev)
	}
}

func (c *channel) Publish(ctx context.Context, ev protocol.Event) error {
	data, err := protocol.Marshal(ev)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, c.name, data).Err()
}

func (c *channel) Subscribe(handler app.Handler) func() {
	return c.handlers.Add(handler)
}

func (c *channel) Close() error {
	var err error
	c.once.Do(func() {
		err = c.sub.Close()
		<-c.done
	})
	return err
}

func channelName(roomCode string) string {
	return "room:" + roomCode
}
