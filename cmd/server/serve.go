package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linkshelf/server/internal/handlers"
	"github.com/linkshelf/server/internal/observability"
	"github.com/linkshelf/server/internal/services"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var noWorker bool

	command := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		Long:  `run the HTTP API and, unless disabled, the embedded enrichment worker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return serve(ctx, a, a.cfg.Worker.Embedded && !noWorker)
		},
	}

	command.Flags().BoolVar(&noWorker, "no-worker", false, "do not run the embedded enrichment worker")
	return command
}

func serve(ctx context.Context, a *app, embedded bool) error {
	log := a.log.Component("server")

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := services.NewWebSocketHub()
	go hub.Run(hubCtx)

	collectionService := services.NewCollectionService(a.store, a.queue, a.attachments, a.metrics, a.cfg.Server.BaseURL)

	if embedded {
		w := a.worker(hub)
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
	}

	httpMetrics, err := observability.NewHTTPMetrics()
	if err != nil {
		log.WithError(err).Warn("Failed to create HTTP metrics")
	}

	if a.cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwt_secret is empty, every request is anonymous")
	}

	srv := &http.Server{
		Addr: a.cfg.Server.Address,
		Handler: handlers.NewRouter(handlers.RouterDeps{
			CollectionService: collectionService,
			Attachments:       a.attachments,
			Hub:               hub,
			DB:                a.store,
			HTTPMetrics:       httpMetrics,
			JWTSecret:         []byte(a.cfg.Auth.JWTSecret),
			BaseURL:           a.cfg.Server.BaseURL,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("address", srv.Addr).
			WithField("base_url", a.cfg.Server.BaseURL).
			WithField("embedded_worker", embedded).
			Info("Linkshelf server starting")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
		return err
	}

	log.Info("Server stopped")
	return nil
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
