package http

import (
	"net/http"
	"time"

	"scenario-quiz/internal/app"
)

type RoomsHandler struct {
	relay *app.RelayService
}

func NewRoomsHandler(relay *app.RelayService) *RoomsHandler {
	return &RoomsHandler{relay: relay}
}

type roomStatus struct {
	Room        string     `json:"room"`
	Active      bool       `json:"active"`
	Subscribers int        `json:"subscribers"`
	Dropped     int        `json:"dropped"`
	LastEventAt *time.Time `json:"last_event_at,omitempty"`
}

// ServeRoom reports whether a room code currently has relay subscribers, and how many events were
// dropped for slow ones.
func (h *RoomsHandler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	st, ok := h.relay.Stats(code)
	if !ok {
		writeJSON(w, roomStatus{Room: code})
		return
	}
	last := st.LastEventAt.UTC()
	writeJSON(w, roomStatus{
		Room:        st.Code,
		Active:      st.Subscribers > 0,
		Subscribers: st.Subscribers,
		Dropped:     st.Dropped,
		LastEventAt: &last,
	})
}

// NewMux wires the relay routes. Deck routes are only mounted when decks is non-nil.
func NewMux(relay *app.RelayService, decks *DecksHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", NewWSHandler(relay).ServeWS)
	mux.HandleFunc("GET /rooms/{code}", NewRoomsHandler(relay).ServeRoom)
	if decks != nil {
		mux.HandleFunc("GET /decks", decks.ServeList)
		mux.HandleFunc("GET /decks/{id}", decks.ServeDeck)
	}
	return mux
}
