package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripdesk/tripdesk-server/internal/auth"
	"github.com/tripdesk/tripdesk-server/internal/config"
	"github.com/tripdesk/tripdesk-server/internal/core"
	"github.com/tripdesk/tripdesk-server/internal/fanout"
	"github.com/tripdesk/tripdesk-server/internal/store"
	"github.com/tripdesk/tripdesk-server/internal/store/sqlite"
	transporthttp "github.com/tripdesk/tripdesk-server/internal/transport/http"
)

// App wires together store, hub, fanout and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	bridge          *fanout.RedisBridge
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, st, jwtConfig)

	// The fanout bridge is only needed when several processes share
	// the room namespace.
	var bridge *fanout.RedisBridge
	if cfg.RedisURL != "" {
		bridge, err = fanout.NewRedisBridge(ctx, cfg.RedisURL, logger)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("init fanout: %w", err)
		}
		logger.Info().Msg("redis fanout connected")
	}

	var hubFanout core.Fanout
	if bridge != nil {
		hubFanout = bridge
	}
	hub := core.NewHub(st, hubFanout, logger)
	server := transporthttp.NewServer(hub, st, authService, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		bridge:          bridge,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)
	if a.bridge != nil {
		go a.bridge.Run(ctx, a.hub)
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the database and the fanout bridge.
func (a *App) cleanup() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close fanout bridge")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
