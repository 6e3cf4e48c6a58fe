package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"scenario-quiz/internal/domain"
)

type deckRow struct {
	bun.BaseModel `bun:"table:decks"`

	ID        string          `bun:"id,pk"`
	Title     string          `bun:"title,notnull"`
	Data      json.RawMessage `bun:"data,type:jsonb,notnull"`
	CreatedAt time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// OpenDB opens a bun handle over pgdriver.
func OpenDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// DeckStore writes imported decks.
type DeckStore struct {
	db *bun.DB
}

func NewDeckStore(db *bun.DB) *DeckStore {
	return &DeckStore{db: db}
}

// SaveDeck inserts or replaces a deck by id.
func (s *DeckStore) SaveDeck(ctx context.Context, deck domain.Deck) error {
	data, err := json.Marshal(deck.Scenarios)
	if err != nil {
		return fmt.Errorf("marshal deck: %w", err)
	}
	row := &deckRow{ID: deck.ID, Title: deck.Title, Data: data, UpdatedAt: time.Now()}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save deck %s: %w", deck.ID, err)
	}
	return nil
}

// ListDecks returns deck ids and titles, newest first.
func (s *DeckStore) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	var rows []deckRow
	if err := s.db.NewSelect().Model(&rows).Column("id", "title").Order("updated_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	decks := make([]domain.Deck, 0, len(rows))
	for _, r := range rows {
		decks = append(decks, domain.Deck{ID: r.ID, Title: r.Title})
	}
	return decks, nil
}
