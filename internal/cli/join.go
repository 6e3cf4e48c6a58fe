package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/config"
	"scenario-quiz/internal/domain"
)

// NewJoinCmd joins a room as a participant and reads answers from stdin.
func NewJoinCmd() *cobra.Command {
	var avatarID int
	cmd := &cobra.Command{
		Use:   "join <room> <name>",
		Short: "Join a room as a participant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, cfg, args[0], args[1], avatarID)
		},
	}
	cmd.Flags().IntVar(&avatarID, "avatar", 0, "avatar id shown to other players")
	return cmd
}

func runJoin(ctx context.Context, cfg config.Config, room, name string, avatarID int) error {
	bus, closeBus, err := openBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	con := newConsole(os.Stdout)
	var player *app.Participant
	player = app.NewParticipant(bus, participantConfig(cfg, avatarID),
		app.WithParticipantFeedback(app.FeedbackFunc(con.sound)),
		app.WithSyncHook(func(s domain.GameState) { con.snapshot(s, player.PlayerID()) }),
	)
	if err := player.Join(ctx, room, name); err != nil {
		return err
	}
	defer player.Close()

	con.printf("joined room %s as %s\n%s\n", room, name, joinHelp)
	readCommands(ctx, os.Stdin, func(line string) bool {
		return joinCommand(ctx, player, con, line)
	})
	return nil
}
