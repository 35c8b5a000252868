package main

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/equipment-analytics/internal/admin"
	"github.com/JonMunkholm/equipment-analytics/internal/application"
	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/spf13/cobra"
)

var _ admin.Maintainer = (*core.Service)(nil)

func newMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending schema migrations for the configured DB_DRIVER.

With --down every migration is reverted, dropping all data.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := application.Migrate(cmd.Context(), cfg.Database, down); err != nil {
				return err
			}
			direction := "up"
			if down {
				direction = "down"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations %s: ok\n", direction)
			return nil
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Revert all migrations")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var (
		deleteMedia bool
		yes         bool
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every dataset, row and report",
		Long: `Delete every dataset together with its rows and report.

With --delete-media the stored raw uploads are removed as well.
Requires --yes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to purge without --yes")
			}

			app, err := application.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := admin.ResetAll(cmd.Context(), app.Service, deleteMedia)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deleted %d datasets, %d rows, %d reports\n", res.Datasets, res.Rows, res.Reports)
			if deleteMedia {
				fmt.Fprintf(out, "deleted %d raw files (%d failed)\n", res.MediaDeleted, res.MediaFailed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&deleteMedia, "delete-media", false, "Also delete stored raw uploads")
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the purge")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Apply the retention window to every user now",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := application.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			res, err := admin.Sweep(cmd.Context(), app.Service)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d users: %d datasets deleted, %d users failed\n",
				res.Users, res.Datasets, res.Failed)
			return nil
		},
	}
}
