package main

import (
	"context"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// newApp migrates on open
			a, err := newApp(context.Background())
			if err != nil {
				return err
			}
			defer a.close()

			a.log.WithField("driver", a.cfg.Database.Driver).Info("Database schema is up to date")
			return nil
		},
	}
}
