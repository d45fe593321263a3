package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/plugbot/plugbot/internal/config"
	"github.com/plugbot/plugbot/internal/db"
)

// Set by the linker: -ldflags "-X main.version=v1.2.3".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:          "plugbot",
		Short:        "Telegram and Discord bridge for Dify applications",
		SilenceUsage: true,
	}
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; the environment may already be set.
		_ = godotenv.Load()
		if configPath != "" {
			_ = os.Setenv("CONFIG_PATH", configPath)
		}
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default $CONFIG_PATH or config.toml)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the management API and all active bots",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadForCLI()
			if err != nil {
				return err
			}
			return db.Migrate(log, cfg.Postgres)
		},
	}
	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			cfg, log, err := loadForCLI()
			if err != nil {
				return err
			}
			return db.MigrateDown(log, cfg.Postgres, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")
	cmd.AddCommand(up, down)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("plugbot %s (%s)", version, commit)
}

func loadForCLI() (config.Config, *slog.Logger, error) {
	cfg, err := provideConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, provideLogger(cfg), nil
}
