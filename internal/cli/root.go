package cli

import (
	"os"

	"github.com/spf13/cobra"

	"scenario-quiz/internal/config"
	"scenario-quiz/internal/logging"
)

var (
	port       string
	configPath string
	logLevel   string
	cfg        config.Config
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	// .env must be loaded before the env-seeded flag defaults are read.
	_ = config.LoadDotEnv()

	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:           "scenario-quiz",
		Short:         "Host-authoritative multiplayer scenario quiz",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				loaded.Log.Level = logLevel
			}
			cfg = loaded
			logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&port, "port", envPort, "port to listen on (overrides config)")
	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level (debug, info, warn, error)")
	cmd.AddCommand(NewStartCmd())
	cmd.AddCommand(NewHostCmd())
	cmd.AddCommand(NewJoinCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewImportDeckCmd())
	return cmd
}
