package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/pytestify/internal/api"
	"github.com/QTest-hq/pytestify/internal/config"
)

func serveCmd() *cobra.Command {
	var (
		port      int
		configDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the conversion HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if port != 0 {
				cfg.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			project, err := config.LoadProjectConfig(configDir)
			if err != nil {
				return fmt.Errorf("failed to load project config: %w", err)
			}

			srv, err := api.NewServer(cfg, project)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			httpServer := &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Port),
				Handler:      srv.Router(),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 75 * time.Second,
				IdleTimeout:  60 * time.Second,
			}
			httpServer.RegisterOnShutdown(srv.Drain)
			return serve(ctx, httpServer)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default: PORT or 8080)")
	cmd.Flags().StringVar(&configDir, "config", ".", "Directory holding .pytestify.yaml")

	return cmd
}

// serve runs httpServer until ctx is cancelled, then shuts it down.
func serve(ctx context.Context, httpServer *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("starting API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("server is shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
