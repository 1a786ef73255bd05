package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/api"
	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the record service",
	Long:  "Serve the owner-scoped encounter, profile and summary tables over HTTP.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	db, err := store.Open(ctx, store.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return err
	}
	slog.Info("store initialized", "driver", db.Driver())

	router := api.NewRouter(api.NewHandler(db, cfg.Auth.APIKey, Version))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr, "version", Version)
		// ErrServerClosed follows a graceful Shutdown; anything else is fatal.
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
