// crewd is the multi-agent goal orchestration daemon. It listens for goal
// submissions on the message queue, forms a worker team per goal, and drives
// the tasks to completion under manager review.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/crewforge/crewd/internal/adapter/litellm" // registers the litellm reasoning provider
	crewdnats "github.com/crewforge/crewd/internal/adapter/nats"
	crewdotel "github.com/crewforge/crewd/internal/adapter/otel"
	"github.com/crewforge/crewd/internal/adapter/postgres"
	"github.com/crewforge/crewd/internal/adapter/ristretto"
	"github.com/crewforge/crewd/internal/config"
	"github.com/crewforge/crewd/internal/domain/prompt"
	"github.com/crewforge/crewd/internal/logger"
	"github.com/crewforge/crewd/internal/port/reasoning"
	"github.com/crewforge/crewd/internal/resilience"
	"github.com/crewforge/crewd/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"log_level", cfg.Logging.Level,
		"llm_provider", cfg.LLM.Provider,
		"pg_max_conns", cfg.Postgres.MaxConns,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := crewdotel.Setup(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := crewdotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	// NATS
	queue, err := crewdnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()

	// Reasoning cache
	responseCache, err := ristretto.New(cfg.Cache.MaxBytes)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer responseCache.Close()

	// --- Reasoning provider ---
	rs, err := reasoning.New(cfg.LLM.Provider, map[string]string{
		"base_url":    cfg.LLM.URL,
		"master_key":  cfg.LLM.MasterKey,
		"model":       cfg.LLM.Model,
		"temperature": strconv.FormatFloat(cfg.LLM.Temperature, 'f', -1, 64),
		"max_tokens":  strconv.Itoa(cfg.LLM.MaxTokens),
	})
	if err != nil {
		return fmt.Errorf("reasoning provider: %w", err)
	}

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	if bs, ok := rs.(interface{ SetBreaker(*resilience.Breaker) }); ok {
		bs.SetBreaker(breaker)
	}
	cachedRS := service.NewCachedReasoning(rs, responseCache, cfg.Cache.TTL, log)

	// --- Services ---
	prompts := prompt.DefaultLibrary()
	if err := prompts.Validate(); err != nil {
		return fmt.Errorf("prompt library: %w", err)
	}

	store := postgres.NewStore(pool)
	bus := service.NewBus(queue, log)
	engine := service.NewEngine(store, bus, cachedRS, prompts, cfg.Orchestrator, log, metrics)

	cancelGoals, err := engine.SubscribeGoals(ctx)
	if err != nil {
		return fmt.Errorf("goal subscriber: %w", err)
	}
	defer cancelGoals()

	slog.Info("crewd ready",
		"providers", reasoning.Available(),
		"max_attempts", cfg.Orchestrator.MaxAttempts,
		"task_timeout", cfg.Orchestrator.TaskTimeout.String(),
	)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done

	slog.Info("shutting down")
	if err := queue.Drain(); err != nil {
		slog.Error("nats drain failed", "error", err)
	}
	return nil
}
