package main

import (
	"context"

	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "run the enrichment worker",
		Long: `run the enrichment worker without the HTTP API. Standalone workers
have no WebSocket clients, so finished jobs are not pushed to subscribers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(context.Background())
			if err != nil {
				return err
			}
			defer a.close()

			w := a.worker(nil)
			if err := w.Start(); err != nil {
				return err
			}

			waitForSignal()
			w.Stop()
			return nil
		},
	}
}
