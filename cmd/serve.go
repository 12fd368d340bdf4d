package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wcallahan/searchai/api"
	"github.com/wcallahan/searchai/internal/config"
	"github.com/wcallahan/searchai/internal/enhance"
	"github.com/wcallahan/searchai/internal/generate"
	"github.com/wcallahan/searchai/internal/log"
	"github.com/wcallahan/searchai/internal/observability"
	"github.com/wcallahan/searchai/internal/scrape"
	"github.com/wcallahan/searchai/internal/search"
	"github.com/wcallahan/searchai/internal/store"
)

const shutdownTimeout = 30 * time.Second

func runServe() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		return 1
	}

	logger := log.New(log.Config{JSON: true})
	logger.Info("starting searchai", "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Telemetry.Environment,
	})
	if err != nil {
		logger.Error("telemetry setup failed", "error", err)
		return 1
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	server, cleanup, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("server setup failed", "error", err)
		return 1
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: server.Handler(),

		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Write timeout covers the whole response; streams need the full
		// inactivity window plus slack.
		WriteTimeout: time.Duration(cfg.Stream.InactivityTimeoutMs)*time.Millisecond + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return 1
	}
	logger.Info("shutdown complete")
	return 0
}

// buildServer wires the pipeline components from configuration. A missing
// credential disables its provider rather than failing startup; an
// unreachable database disables persistence the same way.
func buildServer(ctx context.Context, cfg *config.Config, logger log.Logger) (*api.Server, func(), error) {
	engine, err := enhance.NewEngine(enhance.EngineConfig{Logger: logger})
	if err != nil {
		return nil, nil, fmt.Errorf("rule engine: %w", err)
	}

	searchClient, err := search.NewClient(search.ClientConfig{
		APIKey:     cfg.Search.APIKey,
		BaseURL:    cfg.Search.BaseURL,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    time.Duration(cfg.Search.TimeoutMs) * time.Millisecond,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("search client: %w", err)
	}

	scraper, err := scrape.New(scrape.Config{
		Parallelism: cfg.Scraper.Parallelism,
		Delay:       time.Duration(cfg.Scraper.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond,
		MaxSources:  cfg.Scraper.MaxSources,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("scraper: %w", err)
	}

	var primary generate.StreamProvider
	if cfg.OpenRouterAPIKey != "" {
		p, err := generate.NewOpenRouter(generate.OpenRouterConfig{
			APIKey:  cfg.OpenRouterAPIKey,
			BaseURL: cfg.OpenRouterBaseURL,
			Model:   cfg.OpenRouterModel,
			Timeout: time.Duration(cfg.GenerationTimeoutMs) * time.Millisecond,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openrouter provider: %w", err)
		}
		primary = p
	} else {
		logger.Warn("OPENROUTER_API_KEY not set, primary provider disabled")
	}

	var secondary generate.CompletionProvider
	if cfg.GeminiAPIKey != "" {
		g, err := generate.NewGemini(ctx, generate.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: time.Duration(cfg.GenerationTimeoutMs) * time.Millisecond,
			Logger:  logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("gemini provider: %w", err)
		}
		secondary = g
	} else {
		logger.Warn("GEMINI_API_KEY not set, secondary provider disabled")
	}

	chain := generate.NewChain(generate.ChainConfig{
		Primary:   primary,
		Secondary: secondary,
		Logger:    logger,
	})

	cleanup := func() {}
	var st *store.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, persistence disabled")
	} else if s, err := store.New(ctx, cfg.DatabaseURL, logger); err != nil {
		logger.Warn("database unavailable, persistence disabled", "error", err)
	} else {
		st = s
		cleanup = s.Close
	}

	server, err := api.NewServer(api.ServerConfig{
		Engine:            engine,
		Search:            searchClient,
		Scraper:           scraper,
		Chain:             chain,
		Store:             st,
		InactivityTimeout: time.Duration(cfg.Stream.InactivityTimeoutMs) * time.Millisecond,
		KeepaliveInterval: time.Duration(cfg.Stream.KeepaliveIntervalMs) * time.Millisecond,
		Logger:            logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("api server: %w", err)
	}
	return server, cleanup, nil
}
