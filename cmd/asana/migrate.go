package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ayusman/asana/internal/store"
)

func newMigrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending leaderboard migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			st, err := store.Connect(cmd.Context(), cfg.Leaderboard.Driver, cfg.Leaderboard.DSN)
			if err != nil {
				return err
			}
			defer st.Close()

			applied, err := st.Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			logger.WithField("driver", cfg.Leaderboard.Driver).Infof("applied %d migration(s): %v", len(applied), applied)
			return nil
		},
	}
}
