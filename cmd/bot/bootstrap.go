package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"trading-agent/internal/broker/brokerobs"
	"trading-agent/internal/broker/recall"
	"trading-agent/internal/confirm"
	"trading-agent/internal/engine"
	"trading-agent/internal/engine/engineobs"
	"trading-agent/internal/eod"
	"trading-agent/internal/eod/eodobs"
	"trading-agent/internal/interfaces"
	"trading-agent/internal/logger"
	"trading-agent/internal/market/coingecko"
	"trading-agent/internal/market/marketobs"
	"trading-agent/internal/metrics"
	"trading-agent/internal/store"
	"trading-agent/internal/tradelog"
)

// initializeSystem loads .env and sets up logging and tracing
func initializeSystem() error {
	_ = godotenv.Load()
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// initializeJournal opens the trade journal and compresses expired days
func initializeJournal(ctx context.Context, cfg *store.Config) *tradelog.Journal {
	j := tradelog.New(cfg.Journal.Dir)
	if err := j.CompressOlder(cfg.Journal.RetentionDays); err != nil {
		logger.Warn(ctx, "Failed to compress old journals", "error", err)
	}
	return j
}

func initializeMarket(cfg *store.Config) interfaces.MarketData {
	return marketobs.Wrap(coingecko.New(coingecko.Params{
		BaseURL:       cfg.Env.CoinGeckoAPIURL,
		APIKey:        cfg.Env.CoinGeckoAPIKey,
		RatePerMinute: cfg.Market.RatePerMinute,
	}))
}

func initializeBroker(ctx context.Context, cfg *store.Config) interfaces.Broker {
	brk := recall.New(recall.Params{
		Mode:    cfg.Mode,
		APIKey:  cfg.Env.RecallAPIKey,
		BaseURL: cfg.Env.RecallAPIURL,
		Chain:   cfg.Recall.Chain,
		Tokens:  cfg.Recall.Tokens,
	})
	if brk.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - trades will be simulated")
	}
	if cfg.Env.RecallAPIKey == "" {
		logger.Warn(ctx, "RECALL_API_KEY is not set - portfolio requests will be rejected")
	}
	return brokerobs.Wrap(brk)
}

func initializeConfirmer(cfg *store.Config) (interfaces.Confirmer, error) {
	return confirm.New(cfg.Confirm.Mode, os.Stdin, os.Stdout)
}

func initializeEngine(cfg *store.Config, deps engine.Deps) (interfaces.Engine, error) {
	eng, err := engine.New(cfg, deps)
	if err != nil {
		return nil, err
	}
	return engineobs.Wrap(eng), nil
}

func initializeEOD(cfg *store.Config, j *tradelog.Journal) (interfaces.EodSummarizer, error) {
	s, err := eod.NewSummarizer(j, cfg.EOD.Dir, cfg.EOD.Cutoff)
	if err != nil {
		return nil, err
	}
	return eodobs.Wrap(s), nil
}

// app is the wired agent.
type app struct {
	cfg     *store.Config
	journal *tradelog.Journal
	metrics *metrics.Metrics
	engine  interfaces.Engine
	eod     interfaces.EodSummarizer
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return nil, err
	}
	journal := initializeJournal(ctx, cfg)
	m := metrics.New()
	confirmer, err := initializeConfirmer(cfg)
	if err != nil {
		return nil, err
	}
	eng, err := initializeEngine(cfg, engine.Deps{
		Market:    initializeMarket(cfg),
		Broker:    initializeBroker(ctx, cfg),
		Confirmer: confirmer,
		Journal:   journal,
		Metrics:   m,
	})
	if err != nil {
		return nil, err
	}
	summarizer, err := initializeEOD(cfg, journal)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, journal: journal, metrics: m, engine: eng, eod: summarizer}, nil
}
