// Package app wires configuration, credentials, cache, REST client,
// transport, and the chat service into one runnable unit for the CLI.
package app

import (
	"context"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/examchat/internal/cache"
	"github.com/vovakirdan/examchat/internal/chat"
	"github.com/vovakirdan/examchat/internal/config"
	"github.com/vovakirdan/examchat/internal/creds"
	"github.com/vovakirdan/examchat/internal/log"
	"github.com/vovakirdan/examchat/internal/rest"
	"github.com/vovakirdan/examchat/internal/transport"
)

// App owns the assembled chat service and its resources.
type App struct {
	cfg     config.Config
	log     *zerolog.Logger
	svc     *chat.Service
	cache   io.Closer
	metrics *stdhttp.Server
}

// New constructs the application from configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	var store creds.Store
	if cfg.Token != "" {
		store = creds.Static{cfg.TokenKey: cfg.Token}
	} else {
		// No configured token: read it from the environment on demand.
		store = creds.Env{}
	}
	provider := creds.NewProvider(store, cfg.TokenKey)

	var (
		c      chat.Cache
		closer io.Closer
	)
	switch cfg.CacheBackend {
	case "sqlite", "":
		sq, err := cache.NewSQLite(cfg.CachePath, log.Component(logger, "cache"))
		if err != nil {
			return nil, fmt.Errorf("init sqlite cache: %w", err)
		}
		c, closer = sq, sq
	case "redis":
		rd, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log.Component(logger, "cache"))
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		c, closer = rd, rd
	case "none":
		c = cache.Noop{}
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}

	api := rest.NewClient(cfg.ServerURL, provider, cfg.RequestTimeout, log.Component(logger, "rest"))

	svc := chat.NewService(chat.Options{
		API:   api,
		Cache: c,
		Creds: provider,
		NewTransport: func() transport.Transport {
			return transport.NewWS(cfg.WSURL, provider, log.Component(logger, "transport"))
		},
		TypingDebounce: cfg.TypingDebounce,
		TypingTTL:      cfg.TypingTTL,
		Logger:         logger,
	})

	a := &App{cfg: cfg, log: logger, svc: svc, cache: closer}

	if cfg.MetricsAddr != "" {
		a.metrics = &stdhttp.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				logger.Warn().Err(err).Msg("metrics server exited")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
	}

	return a, nil
}

// Service returns the assembled chat service.
func (a *App) Service() *chat.Service {
	return a.svc
}

// Close disconnects and releases resources.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.svc.Disconnect(ctx); err != nil {
		a.log.Warn().Err(err).Msg("failed to disconnect")
	}
	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop metrics server")
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close cache")
		}
	}
}
