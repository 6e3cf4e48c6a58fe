package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/protocol"
)

const flushTimeout = 5 * time.Second

// Config holds the NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "room",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS with reconnect logging.
func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("scenario-quiz"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Bus carries room events over core NATS subjects {prefix}.{code}. Core NATS is at-most-once and
// echoes messages back to the publishing connection.
type Bus struct {
	nc     *nats.Conn
	prefix string
}

func NewBus(nc *nats.Conn, prefix string) *Bus {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Bus{nc: nc, prefix: prefix}
}

func (b *Bus) Open(ctx context.Context, roomCode string) (app.Channel, error) {
	subject := b.prefix + "." + roomCode
	ch := &channel{nc: b.nc, subject: subject, handlers: app.NewHandlerSet()}

	sub, err := b.nc.Subscribe(subject, ch.receive)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	// Round-trip to the server so the subscription is registered before the first publish.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush %s: %w", subject, err)
	}
	ch.sub = sub
	return ch, nil
}

type channel struct {
	nc       *nats.Conn
	subject  string
	sub      *nats.Subscription
	handlers *app.HandlerSet
	once     sync.Once
}

func (c *channel) receive(msg *nats.Msg) {
	ev, err := protocol.Unmarshal(msg.Data)
	if err != nil {
		log.Debug().Err(err).Str("subject", c.subject).Msg("dropping undecodable message")
		return
	}
	c.handlers.Dispatch(ev)
}

func (c *channel) Publish(_ context.Context, ev protocol.Event) error {
	data, err := protocol.Marshal(ev)
	if err != nil {
		return err
	}
	return c.nc.Publish(c.subject, data)
}

func (c *channel) Subscribe(handler app.Handler) func() {
	return c.handlers.Add(handler)
}

func (c *channel) Close() error {
	var err error
	c.once.Do(func() {
		err = c.sub.Unsubscribe()
	})
	return err
}
