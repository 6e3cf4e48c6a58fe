package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/infra/memory"
)

type staticLister []domain.Deck

func (l staticLister) ListDecks(context.Context) ([]domain.Deck, error) { return l, nil }

func TestDeckRoutes(t *testing.T) {
	deck := domain.Deck{ID: "office", Title: "Office", Scenarios: []domain.ScenarioNode{{ID: "s1", OpponentName: "Boss"}}}
	repo := memory.NewDeckRepository(memory.NewStaticDeckLoader(map[string]domain.Deck{"office": deck}), time.Minute)
	decks := NewDecksHandler(repo, staticLister{{ID: "office", Title: "Office"}})
	server := httptest.NewServer(NewMux(app.NewRelayService(memory.NewRoomStore()), decks))
	defer server.Close()

	resp, err := http.Get(server.URL + "/decks/office")
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	var got domain.Deck
	err = json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if err != nil || got.Title != "Office" || len(got.Scenarios) != 1 {
		t.Fatalf("unexpected deck %+v %v", got, err)
	}

	resp, err = http.Get(server.URL + "/decks/missing")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/decks")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list []domain.Deck
	err = json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if err != nil || len(list) != 1 || list[0].ID != "office" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
}
