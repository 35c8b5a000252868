// Command equipctl is the admin CLI for the equipment analytics service.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/JonMunkholm/equipment-analytics/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cfg is loaded once before any subcommand runs.
var cfg *config.Config

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "equipctl",
		Short:         "Administer the equipment analytics service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Variables already set in the environment win over .env
			if err := godotenv.Load(); err == nil {
				slog.Debug("loaded .env file")
			}

			loaded, err := config.Load()
			if err != nil {
				return err
			}
			cfg = loaded
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}

	root.AddCommand(newMigrateCmd(), newPurgeCmd(), newSweepCmd(), newTokenCmd())
	return root
}

// printError writes the technical error and, for known failures, the
// support message with its code.
func printError(w io.Writer, err error) {
	fmt.Fprintln(w, "error:", err)
	if core.IsUserFacing(err) {
		fmt.Fprintln(w, "hint:", core.FormatUserError(err))
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}
