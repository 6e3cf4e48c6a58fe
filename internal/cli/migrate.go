package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/config"
	"scenario-quiz/internal/domain"
	pgstore "scenario-quiz/internal/infra/postgres"
	redisstore "scenario-quiz/internal/infra/redis"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrationsWithConfig(cmd.Context(), cfg)
		},
	}
}

func runMigrationsWithConfig(ctx context.Context, cfg config.Config) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	db := pgstore.OpenDB(cfg.Postgres.URL)
	defer db.Close()
	return pgstore.Migrate(ctx, db)
}

// NewImportDeckCmd validates a scenario file and stores it as a deck.
func NewImportDeckCmd() *cobra.Command {
	var id, title string
	cmd := &cobra.Command{
		Use:   "import-deck <file.json>",
		Short: "Validate a scenario JSON file and store it as a deck",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return importDeck(cmd.Context(), cfg, args[0], id, title)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "deck id (defaults to the file name)")
	cmd.Flags().StringVar(&title, "title", "", "deck title (defaults to the id)")
	return cmd
}

func importDeck(ctx context.Context, cfg config.Config, path, id, title string) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	deck, err := readDeck(path, id, title, defaultTimeLimit(cfg))
	if err != nil {
		return err
	}

	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}
	db := pgstore.OpenDB(cfg.Postgres.URL)
	defer db.Close()
	if err := pgstore.NewDeckStore(db).SaveDeck(ctx, deck); err != nil {
		return err
	}

	client, err := newRedisClient(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("deck cache not invalidated")
	} else if client != nil {
		defer client.Close()
		cache := redisstore.NewDeckRepository(client, nil, 0)
		if err := cache.Invalidate(ctx, deck.ID); err != nil {
			log.Warn().Err(err).Str("deck_id", deck.ID).Msg("deck cache not invalidated")
		}
	}

	log.Info().Str("deck_id", deck.ID).Int("scenarios", len(deck.Scenarios)).Msg("deck imported")
	return nil
}

// readDeck parses a scenario file into a deck. Any malformed record rejects the whole file.
func readDeck(path, id, title string, timeLimit int) (domain.Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Deck{}, err
	}
	scenarios, err := app.ParseScenarios(data, timeLimit)
	if err != nil {
		return domain.Deck{}, fmt.Errorf("%s: %w", path, err)
	}
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if title == "" {
		title = id
	}
	return domain.Deck{ID: id, Title: title, Scenarios: scenarios}, nil
}
