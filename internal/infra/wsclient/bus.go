package wsclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/protocol"
)

const writeWait = 10 * time.Second

// Bus connects to a relay server's /ws endpoint, one websocket per room.
type Bus struct {
	baseURL string
	dialer  *websocket.Dialer
}

// NewBus accepts http(s) or ws(s) base URLs, e.g. http://localhost:8080.
func NewBus(baseURL string) *Bus {
	return &Bus{baseURL: baseURL, dialer: websocket.DefaultDialer}
}

func (b *Bus) Open(ctx context.Context, roomCode string) (app.Channel, error) {
	target, err := roomURL(b.baseURL, roomCode)
	if err != nil {
		return nil, err
	}
	conn, _, err := b.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", target, err)
	}

	ch := &channel{
		conn:     conn,
		room:     roomCode,
		handlers: app.NewHandlerSet(),
		done:     make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

func roomURL(base, roomCode string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported relay url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"room": {roomCode}}.Encode()
	return u.String(), nil
}

type channel struct {
	conn     *websocket.Conn
	room     string
	handlers *app.HandlerSet
	done     chan struct{}

	writeMu sync.Mutex
	once    sync.Once
}

func (c *channel) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("room", c.room).Msg("relay read ended")
			}
			return
		}
		ev, err := protocol.Unmarshal(data)
		if err != nil {
			log.Debug().Err(err).Str("room", c.room).Msg("dropping undecodable frame")
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
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *channel) Subscribe(handler app.Handler) func() {
	return c.handlers.Add(handler)
}

func (c *channel) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
		<-c.done
	})
	return err
}
