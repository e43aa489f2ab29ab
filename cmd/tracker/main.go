// Command warpchat-tracker pairs strangers for "warpchat match" and relays
// their connection setup until the direct link is up.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioHazard786/Warpchat/internal/logging"
	"github.com/BioHazard786/Warpchat/internal/tracker"
	"github.com/BioHazard786/Warpchat/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagAddr  string
	flagDebug bool
)

var rootCmd = &cobra.Command{
	Use:     "warpchat-tracker",
	Short:   "Matchmaking tracker for warpchat match",
	Version: version.Version,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func main() {
	rootCmd.Flags().StringVarP(&flagAddr, "addr", "a", envOr("TRACKER_ADDR", ":8080"), "Listen address")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Run gin in debug mode")
	rootCmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	logger := logging.InitWithDefault(os.Stderr, slog.LevelInfo)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := tracker.NewHub(logger)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              flagAddr,
		Handler:           tracker.NewRouter(hub, logger, flagDebug),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("tracker started", "addr", flagAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen on %s: %w", flagAddr, err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("tracker exited")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
