package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/protocol"
)

const writeWait = 10 * time.Second

// KindError is sent only to the connection whose frame could not be relayed.
const KindError protocol.Kind = "error"

type WSHandler struct {
	relay    *app.RelayService
	upgrader websocket.Upgrader
}

func NewWSHandler(relay *app.RelayService) *WSHandler {
	return &WSHandler{
		relay: relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and joins the connection to a room. Every well-formed envelope the
// connection sends is fanned out to the whole room, the sender included.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("room", room).Str("conn_id", uuid.NewString()).Logger()
	events, cancel, err := h.relay.Subscribe(r.Context(), room)
	if err != nil {
		_ = writeError(conn, err.Error())
		return
	}
	defer cancel()
	logger.Debug().Msg("relay connection opened")

	send := make(chan []byte, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Single writer: gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := protocol.Marshal(ev)
				if err != nil {
					continue
				}
				select {
				case send <- data:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		ev, err := protocol.Unmarshal(data)
		if err != nil {
			if msg, encErr := errorFrame(err.Error()); encErr == nil {
				select {
				case send <- msg:
				default:
				}
			}
			continue
		}
		if _, err := h.relay.Publish(r.Context(), room, ev); err != nil {
			logger.Warn().Err(err).Str("event_type", string(ev.Type)).Msg("relay publish failed")
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
	logger.Debug().Msg("relay connection closed")
}

func errorFrame(message string) ([]byte, error) {
	payload, err := json.Marshal(errorPayload{Message: message})
	if err != nil {
		return nil, err
	}
	return protocol.Marshal(protocol.Event{Type: KindError, Payload: payload})
}

func writeError(conn *websocket.Conn, message string) error {
	msg, err := errorFrame(message)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, msg)
}
