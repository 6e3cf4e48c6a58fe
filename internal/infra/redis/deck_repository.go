package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"scenario-quiz/internal/domain"
)

// DeckLoader fetches decks from a backing store (e.g. Postgres).
type DeckLoader interface {
	LoadDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// DeckRepository caches whole decks as JSON under deck:{deckID} and falls back to a loader on a
// miss. Cache write failures are logged and do not fail the read.
type DeckRepository struct {
	client *redis.Client
	loader DeckLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDeckRepository(client *redis.Client, loader DeckLoader, ttl time.Duration) *DeckRepository {
	return &DeckRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DeckRepository) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	if deck, ok := r.cached(ctx, deckID); ok {
		return deck, nil
	}

	result, err, _ := r.sf.Do(deckID, func() (interface{}, error) {
		// Re-check in case another caller filled it.
		if deck, ok := r.cached(ctx, deckID); ok {
			return deck, nil
		}
		deck, err := r.loader.LoadDeck(ctx, deckID)
		if err != nil {
			return domain.Deck{}, err
		}
		data, err := json.Marshal(deck)
		if err == nil {
			err = r.client.Set(ctx, deckKey(deckID), data, r.ttlWithJitter()).Err()
		}
		if err != nil {
			log.Warn().Err(err).Str("deck_id", deckID).Msg("cache deck")
		}
		return deck, nil
	})
	if err != nil {
		return domain.Deck{}, err
	}
	return result.(domain.Deck), nil
}

// Invalidate removes a cached deck, e.g. after it was re-imported.
func (r *DeckRepository) Invalidate(ctx context.Context, deckID string) error {
	return r.client.Del(ctx, deckKey(deckID)).Err()
}

func (r *DeckRepository) cached(ctx context.Context, deckID string) (domain.Deck, bool) {
	data, err := r.client.Get(ctx, deckKey(deckID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Debug().Err(err).Str("deck_id", deckID).Msg("deck cache read")
		}
		return domain.Deck{}, false
	}
	var deck domain.Deck
	if err := json.Unmarshal(data, &deck); err != nil {
		return domain.Deck{}, false
	}
	return deck, true
}

func deckKey(deckID string) string {
	return "deck:" + deckID
}

func (r *DeckRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
