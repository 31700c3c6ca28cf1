// Package main is the entry point for the Discord economy bot.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"discord-economy-bot/internal/api"
	"discord-economy-bot/internal/bot"
	"discord-economy-bot/internal/config"
	"discord-economy-bot/internal/game/rob"
	"discord-economy-bot/internal/pkg/clock"
	"discord-economy-bot/internal/pkg/db"
	"discord-economy-bot/internal/pkg/metrics"
	"discord-economy-bot/internal/pkg/ratelimit"
	"discord-economy-bot/internal/pkg/rng"
	"discord-economy-bot/internal/repository"
	"discord-economy-bot/internal/service"
	"discord-economy-bot/internal/shop"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("storage", cfg.Storage.Driver).Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	clk := clock.Real{}
	m := metrics.New()
	store, err := openStore(ctx, cfg, clk, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open account store")
	}
	defer store.Close()

	catalog, err := shop.FromConfig(cfg.Protection)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid protection tiers")
	}

	src := rng.New()

	// Initialize services
	accountService := service.NewAccountService(store, clk, src, service.DailyPolicyFromConfig(cfg.Daily), m)
	transferService := service.NewTransferService(store, clk, cfg.Economy.MinTransfer, m)
	rankingService := service.NewRankingService(store)
	protectionService := service.NewProtectionService(store, clk, catalog, m)
	robGame := rob.NewRobGame(store, clk, src, rob.NewPolicy(cfg.Theft), cfg.Economy.ServiceAccounts, m)

	log.Info().
		Strs("tiers", catalog.Keys()).
		Int64("min_transfer", cfg.Economy.MinTransfer).
		Int64("daily_reward", cfg.Daily.Reward).
		Msg("Economy configured")

	janitor := service.NewJanitor(store, clk, cfg.Janitor.Interval, m)
	go janitor.Run(ctx)

	limiter, closeLimiter := ratelimit.New(ctx, cfg.Redis, cfg.RateLimit)
	defer closeLimiter()

	var ops *api.Server
	if cfg.HTTP.Addr != "" {
		ops = api.NewServer(cfg.HTTP.Addr, store, rankingService, m.Registry())
		go func() {
			if err := ops.Start(); err != nil {
				log.Error().Err(err).Msg("Ops server failed")
			}
		}()
	}

	discordBot, err := bot.New(&bot.Dependencies{
		Config:     cfg,
		Accounts:   accountService,
		Transfers:  transferService,
		Ranking:    rankingService,
		Protection: protectionService,
		RobGame:    robGame,
		Limiter:    limiter,
		Metrics:    m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	if err := discordBot.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start bot")
	}

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	// Graceful shutdown
	discordBot.Stop()
	if ops != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ops.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Ops server shutdown failed")
		}
		done()
	}
	log.Info().Msg("Bot stopped gracefully")
}

// openStore connects the configured account store. An unreachable database
// is an error; the memory driver is never chosen as a fallback.
func openStore(ctx context.Context, cfg *config.Config, clk clock.Clock, m *metrics.Metrics) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory store: balances are lost on restart")
		return repository.NewMemoryStore(clk, cfg.Economy.InitialBalance), nil

	case config.DriverPostgres:
		pool, err := db.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, err
		}
		m.MustRegister(db.PoolCollectors(pool)...)
		return repository.NewPostgresStore(pool, clk, cfg.Economy.InitialBalance), nil
	}
	return nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
}
