package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferrow/designvault/internal/config"
	"github.com/ferrow/designvault/internal/database"
	"github.com/ferrow/designvault/internal/logger"
	"github.com/ferrow/designvault/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the DesignVault HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := database.Initialize(); err != nil {
				return fmt.Errorf("database initialization failed: %w", err)
			}

			router, err := server.SetupRouter()
			if err != nil {
				return fmt.Errorf("server initialization failed: %w", err)
			}

			cfg := config.Get()
			srv := &http.Server{
				Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("DesignVault listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}

			logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP shutdown error: %v", err)
			}
			return server.Shutdown()
		},
	}
}
