package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/domain"
)

// DeckLister lists stored decks without their scenarios.
type DeckLister interface {
	ListDecks(ctx context.Context) ([]domain.Deck, error)
}

type DecksHandler struct {
	decks  app.DeckRepository
	lister DeckLister
}

func NewDecksHandler(decks app.DeckRepository, lister DeckLister) *DecksHandler {
	return &DecksHandler{decks: decks, lister: lister}
}

// ServeDeck returns one deck with its scenarios.
func (h *DecksHandler) ServeDeck(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	deck, err := h.decks.GetDeck(r.Context(), id)
	if errors.Is(err, domain.ErrDeckNotFound) {
		http.Error(w, "deck not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("deck_id", id).Msg("load deck")
		http.Error(w, "failed to load deck", http.StatusInternalServerError)
		return
	}
	writeJSON(w, deck)
}

// ServeList returns deck ids and titles.
func (h *DecksHandler) ServeList(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		writeJSON(w, []domain.Deck{})
		return
	}
	decks, err := h.lister.ListDecks(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("list decks")
		http.Error(w, "failed to list decks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, decks)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
