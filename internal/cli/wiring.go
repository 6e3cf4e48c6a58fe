package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/config"
	"scenario-quiz/internal/infra/memory"
	natsbus "scenario-quiz/internal/infra/nats"
	pgstore "scenario-quiz/internal/infra/postgres"
	redisstore "scenario-quiz/internal/infra/redis"
	"scenario-quiz/internal/infra/wsclient"
)

func newRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// openBus picks the room transport from config. The returned cleanup releases shared clients.
func openBus(ctx context.Context, cfg config.Config) (app.Bus, func(), error) {
	noop := func() {}
	switch kind := strings.ToLower(cfg.Transport.Kind); kind {
	case "", "ws":
		return wsclient.NewBus(cfg.Transport.RelayURL), noop, nil
	case "memory":
		log.Warn().Msg("memory transport only reaches participants in this process")
		return memory.NewLocalBus(), noop, nil
	case "redis":
		client, err := newRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("redis transport selected but redis.addr is empty")
		}
		return redisstore.NewBus(client), func() { _ = client.Close() }, nil
	case "nats":
		natsCfg := natsbus.DefaultConfig()
		if cfg.Transport.NATSURL != "" {
			natsCfg.URL = cfg.Transport.NATSURL
		}
		if cfg.Transport.NATSPrefix != "" {
			natsCfg.SubjectPrefix = cfg.Transport.NATSPrefix
		}
		nc, err := natsbus.Connect(natsCfg)
		if err != nil {
			return nil, nil, err
		}
		return natsbus.NewBus(nc, natsCfg.SubjectPrefix), func() { _ = nc.Drain() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}

// deckBackend bundles the deck repository with what must be closed afterwards.
type deckBackend struct {
	repo    app.DeckRepository
	store   *pgstore.DeckStore
	cleanup func()
}

// openDecks builds the deck repository: Postgres when configured (else a static
// loader seeded with the bundled sample), cached in Redis when configured (else in memory).
func openDecks(ctx context.Context, cfg config.Config) (deckBackend, error) {
	var closers []func()
	backend := deckBackend{}

	var loader memory.DeckLoader = memory.NewStaticDeckLoader(sampleDecks())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return backend, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		loader = pgstore.NewDeckLoader(pool)

		db := pgstore.OpenDB(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		backend.store = pgstore.NewDeckStore(db)
	}

	ttl := config.TTLDuration(cfg.Deck.TTL, 10*time.Minute)
	client, err := newRedisClient(ctx, cfg)
	if err != nil {
		for _, c := range closers {
			c()
		}
		return backend, err
	}
	if client != nil {
		closers = append(closers, func() { _ = client.Close() })
		backend.repo = redisstore.NewDeckRepository(client, loader, ttl)
	} else {
		backend.repo = memory.NewDeckRepository(loader, ttl)
	}

	backend.cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return backend, nil
}

func hostConfig(cfg config.Config) app.HostConfig {
	def := app.DefaultHostConfig()
	return app.HostConfig{
		TickInterval:   config.Duration(cfg.Game.TickInterval, def.TickInterval),
		RevealGrace:    config.Duration(cfg.Game.RevealGrace, def.RevealGrace),
		TickWindow:     config.Duration(cfg.Game.TickWindow, def.TickWindow),
		TickEveryFrame: cfg.Game.TickEveryFrame,
	}
}

func participantConfig(cfg config.Config, avatarID int) app.ParticipantConfig {
	def := app.DefaultParticipantConfig()
	return app.ParticipantConfig{
		RequestStateDelay: config.Duration(cfg.Game.RequestStateDelay, def.RequestStateDelay),
		AvatarID:          avatarID,
	}
}

func defaultTimeLimit(cfg config.Config) int {
	if cfg.Game.DefaultTimeLimit > 0 {
		return cfg.Game.DefaultTimeLimit
	}
	return app.DefaultTimeLimit
}
