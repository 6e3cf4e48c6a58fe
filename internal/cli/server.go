package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/config"
	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/infra/memory"
	pgstore "scenario-quiz/internal/infra/postgres"
	redisstore "scenario-quiz/internal/infra/redis"
	transport "scenario-quiz/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand that runs the websocket relay.
func NewStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the room relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, port)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string) error {
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	redisClient, err := newRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	roomTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	var (
		rooms      app.RoomRepository
		redisRooms *redisstore.RoomStore
	)
	if redisClient != nil {
		defer redisClient.Close()
		redisRooms = redisstore.NewRoomStore(redisClient, roomTTL)
		rooms = redisRooms
	} else {
		rooms = memory.NewRoomStore()
	}

	decks, err := openDecks(ctx, cfg)
	if err != nil {
		return err
	}
	defer decks.cleanup()
	var lister transport.DeckLister
	if decks.store != nil {
		lister = decks.store
	}

	relay := app.NewRelayService(rooms)
	mux := transport.NewMux(relay, transport.NewDecksHandler(decks.repo, lister))
	handler := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedHeaders: []string{"*"},
	}).Handler(mux)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting relay server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if redisRooms != nil {
		g.Go(func() error {
			keepRoomsLive(gctx, clockwork.NewRealClock(), redisRooms, roomTTL/2)
			return nil
		})
	}
	return g.Wait()
}

type roomMarkers interface {
	Codes() []string
	Touch(ctx context.Context, code string) error
}

// keepRoomsLive refreshes the liveness marker of every room this instance relays until ctx ends.
func keepRoomsLive(ctx context.Context, clock clockwork.Clock, rooms roomMarkers, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			for _, code := range rooms.Codes() {
				if err := rooms.Touch(ctx, code); err != nil {
					log.Warn().Err(err).Str("room", code).Msg("refresh room marker")
				}
			}
		}
	}
}

// sampleDecks provides a bundled deck; swap in the Postgres loader for real content.
func sampleDecks() map[string]domain.Deck {
	return map[string]domain.Deck{
		"sample": {
			ID:    "sample",
			Title: "Workplace conflicts",
			Scenarios: []domain.ScenarioNode{
				{
					ID:               "late-report",
					OpponentName:     "Manager",
					OpponentAvatarID: 2,
					SituationContext: "Your weekly report arrived an hour after the deadline.",
					NPCDialogue:      "Why am I only getting this now?",
					TimeLimit:        30,
					Options: []domain.Option{
						{ID: "a", Text: "My laptop kept freezing.", Strategy: "Avoid", TensionChange: 10, TrustChange: -10, NPCReaction: "That's the third time this month.", Explanation: "Deflecting blame erodes trust."},
						{ID: "b", Text: "I'm sorry, I underestimated the data checks. I'll send drafts earlier next week.", Strategy: "Collaborate", IsOptimal: true, TensionChange: -20, TrustChange: 15, NPCReaction: "Okay, thanks for owning it.", Explanation: "Owning the miss and proposing a fix lowers tension."},
						{ID: "c", Text: "Everyone else was late too.", Strategy: "Compete", TensionChange: 25, TrustChange: -20, NPCReaction: "I'm talking about your report.", Explanation: "Comparisons escalate the conflict."},
					},
				},
				{
					ID:               "shared-fridge",
					OpponentName:     "Roommate",
					OpponentAvatarID: 5,
					SituationContext: "Your roommate's leftovers disappeared and they think you ate them.",
					NPCDialogue:      "Did you eat my noodles again?",
					TimeLimit:        20,
					Options: []domain.Option{
						{ID: "a", Text: "Yes, sorry. I'll replace them tonight and label mine.", Strategy: "Accommodate", IsOptimal: true, TensionChange: -15, TrustChange: 10, NPCReaction: "Fine, labels are a good idea.", Explanation: "Admitting and repairing restores fairness."},
						{ID: "b", Text: "Prove it.", Strategy: "Compete", TensionChange: 20, TrustChange: -15, NPCReaction: "Wow. Okay.", Explanation: "Defensiveness turns a small issue into a fight."},
					},
				},
			},
		},
	}
}

var _ transport.DeckLister = (*pgstore.DeckStore)(nil)
