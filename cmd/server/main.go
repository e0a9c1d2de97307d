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

	"github.com/DoyleJ11/tap-race-backend/internal/config"
	"github.com/DoyleJ11/tap-race-backend/internal/engine"
	"github.com/DoyleJ11/tap-race-backend/internal/httpapi"
	"github.com/DoyleJ11/tap-race-backend/internal/lobby"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

// serve runs the lobby and the HTTP server until ctx is cancelled or the
// listener fails, whichever comes first.
func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	// The lobby lives on gctx so a failed listener stops it too.
	session := engine.NewSession(cfg.RequiredPlayers, cfg.RoundDuration)
	lb := lobby.NewLobby(gctx, session, lobby.WithLogger(log.Named("lobby")))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(lb, log, httpapi.Options{AllowedOrigins: cfg.AllowedOrigins}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.Int("required_players", cfg.RequiredPlayers),
			zap.Duration("round_duration", cfg.RoundDuration),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// The lobby stops with gctx and closes every outbox, so open
		// sockets are already hanging up.
		<-lb.Done()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
