package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"matchfund/internal/auth"
	"matchfund/internal/backend"
	"matchfund/internal/cache"
	"matchfund/internal/cli"
	"matchfund/internal/core"
	apphttp "matchfund/internal/http"
	"matchfund/internal/log"
	"matchfund/internal/services"
)

const (
	summaryCacheSize     = 256
	summaryCacheTTL      = 24 * time.Hour
	cacheCleanupInterval = 10 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, nil)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	summaries := cache.NewLRUCache[core.FinancialSummary](summaryCacheSize, summaryCacheTTL)
	caches := cache.NewManager()
	caches.Register(summaries)
	caches.StartCleanup(cacheCleanupInterval)

	opts := []services.Option{services.WithSummaryCache(summaries)}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	ledger := services.NewLedgerService(res.Store, opts...)

	var (
		tokens *auth.TokenManager
		google *auth.GoogleAuthenticator
	)
	if cfg.SessionSecret != "" {
		tokens = auth.NewTokenManager(cfg.SessionSecret, cfg.TokenTTL)
	}
	if cfg.GoogleLoginEnabled() {
		google = auth.NewGoogleAuthenticator(auth.GoogleConfig{
			ClientID:      cfg.GoogleClientID,
			ClientSecret:  cfg.GoogleClientSecret,
			ServerURL:     cfg.ServerURL,
			AllowedDomain: cfg.AllowedDomain,
		})
	} else {
		logger.Info("Google login disabled - no GOOGLE_CLIENT_ID provided")
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               net.JoinHostPort("", cfg.Port),
		ClientURL:          cfg.ClientURL,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		AuthDisabled:       cfg.AuthDisabled,
	}, apphttp.Deps{
		Ledger:        ledger,
		Tokens:        tokens,
		Google:        google,
		AllowedDomain: cfg.AllowedDomain,
		Exports:       res.Store,
		Ready:         res.Ready,
		Logger:        logger,
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting matchfund server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", res.Publisher != nil,
		"auth_enabled", !cfg.AuthDisabled)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
