package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clintrovert/tpsync/internal/api/rest"
	"github.com/clintrovert/tpsync/internal/audit"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only HTTP view of the sync audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := audit.Open(cfg.AuditDB, logger)
			if err != nil {
				return err
			}
			handler := rest.NewHandler(store, logger)

			router := chi.NewRouter()
			router.Route("/api/v1", func(r chi.Router) {
				handler.RegisterRoutes(r)
			})
			router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			server := &http.Server{
				Addr:    cfg.ListenAddr,
				Handler: router,
			}

			go func() {
				logger.Info("starting audit API server", zap.String("address", cfg.ListenAddr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("failed to start server", zap.Error(err))
				}
			}()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}
