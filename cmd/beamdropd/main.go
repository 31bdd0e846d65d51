package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/beamdrop/beamdrop/internal/config"
	"github.com/beamdrop/beamdrop/internal/coordinator"
	"github.com/beamdrop/beamdrop/internal/history"
	"github.com/beamdrop/beamdrop/internal/httpapi"
	"github.com/beamdrop/beamdrop/internal/hub"
	"github.com/beamdrop/beamdrop/internal/logging"
	"github.com/beamdrop/beamdrop/internal/names"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/internal/ws"
)

const serverVersion = "v0.1.0"

func main() {
	if hasVersionFlag(os.Args[1:]) {
		fmt.Println(serverVersion)
		return
	}

	cfg := config.ParseServerConfig()
	logger := logging.New("beamdropd", cfg.LogLevel, cfg.LogFile)

	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.UploadsDir).Msg("create uploads dir")
	}

	nameStore, err := names.Open(cfg.NamesFile)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.NamesFile).Msg("open device name store")
	}

	reg := session.NewRegistry(cfg.PinTTL)
	connHub := hub.NewHub()
	hist := history.NewStore(cfg.RecentTransfersCap)
	coord := coordinator.New(cfg, logger, reg, connHub, nameStore, hist)
	wsServer := ws.NewServer(logger, connHub, coord)

	staticDir := cfg.StaticDir
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err != nil {
			logger.Warn().Str("dir", staticDir).Msg("static dir not found, pages disabled")
			staticDir = ""
		}
	}

	shutdownCh := make(chan struct{}, 1)
	requestShutdown := func() {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
	}

	api := httpapi.NewServer(cfg, logger, coord, nameStore, hist, staticDir, wsServer.Handle, requestShutdown)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Router(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coord.RunSweeper(ctx)
	go runNameCleanup(ctx, cfg.NameCleanupInterval, nameStore, reg, logger)

	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			requestShutdown()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		coord.AnnounceShutdown()
	case <-shutdownCh:
		logger.Info().Msg("shutdown requested over the API")
	}

	cancel()
	connHub.CloseAll()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
}

// runNameCleanup periodically drops stored device names whose peers are no
// longer part of any live session.
func runNameCleanup(ctx context.Context, interval time.Duration, store *names.Store, reg *session.Registry, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.PurgeExcept(reg.ActivePeerIDs()); n > 0 {
				logger.Debug().Int("purged", n).Msg("orphaned device names removed")
			}
		}
	}
}

func hasVersionFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--version" || arg == "-v" {
			return true
		}
	}
	return false
}
