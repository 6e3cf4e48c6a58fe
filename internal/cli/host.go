package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/config"
	"scenario-quiz/internal/domain"
)

// NewHostCmd opens a room and drives it from stdin.
func NewHostCmd() *cobra.Command {
	var deckFile, deckID, room string
	var timeLimit int
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Open a room and run the game as host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runHost(ctx, cfg, hostOptions{deckFile: deckFile, deckID: deckID, room: room, timeLimit: timeLimit})
		},
	}
	cmd.Flags().StringVar(&deckFile, "deck-file", "", "scenario JSON file to load")
	cmd.Flags().StringVar(&deckID, "deck", "", "stored deck id to load (e.g. sample)")
	cmd.Flags().StringVar(&room, "room", "", "fixed room code (random when empty)")
	cmd.Flags().IntVar(&timeLimit, "time", 0, "seconds per round, overriding the deck")
	return cmd
}

type hostOptions struct {
	deckFile  string
	deckID    string
	room      string
	timeLimit int
}

func runHost(ctx context.Context, cfg config.Config, opts hostOptions) error {
	scenarios, err := initialScenarios(ctx, cfg, opts)
	if err != nil {
		return err
	}

	bus, closeBus, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	con := newConsole(os.Stdout)
	hostOpts := []app.HostOption{
		app.WithHostFeedback(app.FeedbackFunc(con.sound)),
		app.WithSnapshotHook(func(s domain.GameState) { con.snapshot(s, "") }),
	}
	if opts.room != "" {
		hostOpts = append(hostOpts, app.WithRoomCode(opts.room))
	}
	host := app.NewHost(bus, hostConfig(cfg), hostOpts...)
	code, err := host.Open(ctx)
	if err != nil {
		return err
	}
	defer host.Close()

	if len(scenarios) > 0 {
		if err := host.LoadScenarios(scenarios); err != nil {
			return err
		}
	}
	if opts.timeLimit > 0 {
		if err := host.SetTimeLimit(opts.timeLimit); err != nil {
			return err
		}
	}

	con.printf("room code: %s\n%s\n", code, hostHelp)
	log.Info().Str("room", code).Str("transport", cfg.Transport.Kind).Msg("hosting")
	readCommands(ctx, os.Stdin, func(line string) bool {
		return hostCommand(host, con, line, defaultTimeLimit(cfg))
	})
	return nil
}

func initialScenarios(ctx context.Context, cfg config.Config, opts hostOptions) ([]domain.ScenarioNode, error) {
	switch {
	case opts.deckFile != "":
		deck, err := readDeck(opts.deckFile, "", "", defaultTimeLimit(cfg))
		if err != nil {
			return nil, err
		}
		return deck.Scenarios, nil
	case opts.deckID != "":
		decks, err := openDecks(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer decks.cleanup()
		deck, err := decks.repo.GetDeck(ctx, opts.deckID)
		if err != nil {
			return nil, fmt.Errorf("load deck %s: %w", opts.deckID, err)
		}
		return deck.Scenarios, nil
	}
	return nil, nil
}
