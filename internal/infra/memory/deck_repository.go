package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"scenario-quiz/internal/domain"
)

// DeckLoader fetches decks from a backing store (e.g. Postgres).
type DeckLoader interface {
	LoadDeck(ctx context.Context, deckID string) (domain.Deck, error)
}

// DeckRepository caches decks in process with a jittered TTL. Concurrent misses for the same deck
// share one load.
type DeckRepository struct {
	loader DeckLoader
	ttl    time.Duration
	clock  clockwork.Clock
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedDeck
}

type cachedDeck struct {
	deck      domain.Deck
	expiresAt time.Time
}

func NewDeckRepository(loader DeckLoader, ttl time.Duration) *DeckRepository {
	return NewDeckRepositoryWithClock(loader, ttl, clockwork.NewRealClock())
}

func NewDeckRepositoryWithClock(loader DeckLoader, ttl time.Duration, clock clockwork.Clock) *DeckRepository {
	return &DeckRepository{
		loader: loader,
		ttl:    ttl,
		clock:  clock,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDeck),
	}
}

func (r *DeckRepository) GetDeck(ctx context.Context, deckID string) (domain.Deck, error) {
	if deck, ok := r.cached(deckID); ok {
		return deck, nil
	}

	result, err, _ := r.sf.Do(deckID, func() (interface{}, error) {
		if deck, ok := r.cached(deckID); ok {
			return deck, nil
		}
		deck, err := r.loader.LoadDeck(ctx, deckID)
		if err != nil {
			return domain.Deck{}, err
		}

		r.mu.Lock()
		r.cache[deckID] = cachedDeck{deck: deck, expiresAt: r.clock.Now().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return deck, nil
	})
	if err != nil {
		return domain.Deck{}, err
	}
	return result.(domain.Deck), nil
}

// Invalidate drops a cached deck so the next read reloads it.
func (r *DeckRepository) Invalidate(deckID string) {
	r.mu.Lock()
	delete(r.cache, deckID)
	r.mu.Unlock()
}

func (r *DeckRepository) cached(deckID string) (domain.Deck, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[deckID]
	if !ok || !entry.expiresAt.After(r.clock.Now()) {
		return domain.Deck{}, false
	}
	return entry.deck, true
}

// ttlWithJitter adds up to 10% to the TTL. Callers hold r.mu.
func (r *DeckRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticDeckLoader serves decks from a map; used for demos, tests and file-loaded decks.
type StaticDeckLoader struct {
	mu    sync.RWMutex
	decks map[string]domain.Deck
}

func NewStaticDeckLoader(decks map[string]domain.Deck) *StaticDeckLoader {
	if decks == nil {
		decks = make(map[string]domain.Deck)
	}
	return &StaticDeckLoader{decks: decks}
}

func (l *StaticDeckLoader) LoadDeck(_ context.Context, deckID string) (domain.Deck, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if deck, ok := l.decks[deckID]; ok {
		return deck, nil
	}
	return domain.Deck{}, domain.ErrDeckNotFound
}

// SaveDeck stores or replaces a deck.
func (l *StaticDeckLoader) SaveDeck(_ context.Context, deck domain.Deck) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decks[deck.ID] = deck
	return nil
}
