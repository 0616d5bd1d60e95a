package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielgvb/betting-app/params"
	"github.com/danielgvb/betting-app/pkg/api"
	"github.com/danielgvb/betting-app/pkg/engine"
	"github.com/danielgvb/betting-app/pkg/feed"
	"github.com/danielgvb/betting-app/pkg/ledger"
	"github.com/danielgvb/betting-app/pkg/market"
	"github.com/danielgvb/betting-app/pkg/storage"
	"github.com/danielgvb/betting-app/pkg/util"
)

func main() {
	cfg, err := params.LoadFromEnv("") // "" means load .env from current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := util.NewLoggerWithFile(cfg.Server.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Server.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Ledger ----
	var led ledger.Ledger
	switch cfg.Ledger.Backend {
	case "pebble":
		led, err = storage.OpenPebble(cfg.Ledger.Path)
		if err != nil {
			sugar.Fatalw("ledger_open_failed", "backend", "pebble", "path", cfg.Ledger.Path, "err", err)
		}
	case "postgres":
		pool, perr := storage.NewPool(ctx, storage.PoolConfig{
			Host:     cfg.Ledger.PGHost,
			Port:     cfg.Ledger.PGPort,
			User:     cfg.Ledger.PGUser,
			Password: cfg.Ledger.PGPassword,
			Database: cfg.Ledger.PGDatabase,
			PoolSize: cfg.Ledger.PGPoolSize,
			SSLMode:  cfg.Ledger.PGSSLMode,
		})
		if perr != nil {
			sugar.Fatalw("ledger_open_failed", "backend", "postgres", "err", perr)
		}
		led, err = storage.NewPostgresLedger(ctx, pool)
		if err != nil {
			sugar.Fatalw("ledger_open_failed", "backend", "postgres", "err", err)
		}
	case "memory":
		led = ledger.NewMemoryLedger()
	}
	defer led.Close()
	sugar.Infow("ledger_opened", "backend", cfg.Ledger.Backend)

	// ---- Trade feed (optional) ----
	var pub *feed.KafkaPublisher
	if cfg.Feed.Enabled {
		pub = feed.NewKafkaPublisher(cfg.Feed.Brokers, cfg.Feed.Topic)
		defer pub.Close()
		sugar.Infow("feed_enabled", "brokers", cfg.Feed.Brokers, "topic", cfg.Feed.Topic)
	}

	// ---- Markets & engines ----
	registry := market.NewRegistry()
	engines := make(map[string]*engine.Engine)
	for _, def := range cfg.Markets {
		mech, merr := market.ParseMechanism(def.Mechanism)
		if merr != nil {
			sugar.Fatalw("market_config_invalid", "symbol", def.Symbol, "err", merr)
		}

		var mkt *market.Market
		if mech == market.AMM {
			mkt, merr = market.NewAMMMarket(def.Symbol, def.Question, def.LiquidityB)
		} else {
			mkt, merr = market.NewBookMarket(def.Symbol, def.Question)
		}
		if merr != nil {
			sugar.Fatalw("market_config_invalid", "symbol", def.Symbol, "err", merr)
		}
		if merr := registry.Register(mkt); merr != nil {
			sugar.Fatalw("market_register_failed", "symbol", def.Symbol, "err", merr)
		}

		eng, eerr := engine.New(mkt, led, sugar)
		if eerr != nil {
			sugar.Fatalw("engine_init_failed", "symbol", def.Symbol, "err", eerr)
		}
		if pub != nil {
			eng.Feed = pub
		}

		// State must be rebuilt from the ledger before traffic arrives.
		if rerr := eng.Reload(ctx); rerr != nil {
			sugar.Fatalw("state_reload_failed", "symbol", def.Symbol, "err", rerr)
		}
		engines[def.Symbol] = eng
	}
	sugar.Infow("markets_ready", "count", registry.Count())

	// ---- API ----
	srv := api.NewServer(registry, engines)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(cfg.Server.Addr) }()

	select {
	case err := <-errCh:
		sugar.Fatalw("api_server_failed", "err", err)
	case <-ctx.Done():
		sugar.Info("shutting down")
	}
}
