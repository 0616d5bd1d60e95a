package params

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Ledger.Backend != "pebble" {
		t.Errorf("default backend = %s", cfg.Ledger.Backend)
	}
	if len(cfg.Markets) == 0 {
		t.Error("default config has no markets")
	}
}

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Ledger.Backend = "flatfile" }},
		{"pebble without path", func(c *Config) { c.Ledger.Path = "" }},
		{"postgres without host", func(c *Config) { c.Ledger.Backend = "postgres"; c.Ledger.PGDatabase = "x" }},
		{"postgres without database", func(c *Config) { c.Ledger.Backend = "postgres"; c.Ledger.PGHost = "x" }},
		{"feed without brokers", func(c *Config) { c.Feed.Enabled = true; c.Feed.Brokers = nil }},
		{"no markets", func(c *Config) { c.Markets = nil }},
		{"market without symbol", func(c *Config) { c.Markets = []MarketDef{{Question: "q", Mechanism: "book"}} }},
		{"duplicate symbol", func(c *Config) {
			c.Markets = []MarketDef{
				{Symbol: "A", Mechanism: "book"},
				{Symbol: "A", Mechanism: "book"},
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMarketsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markets.yaml")
	doc := `markets:
  - symbol: RAIN-SAT
    question: Will it rain on Saturday?
    mechanism: book
  - symbol: BTC-100K
    question: Will BTC close the year above $100k?
    mechanism: amm
    liquidity_b: 250
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	markets, err := LoadMarketsFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets))
	}
	if markets[0].Symbol != "RAIN-SAT" || markets[0].Mechanism != "book" {
		t.Errorf("first market: %+v", markets[0])
	}
	if markets[1].LiquidityB != 250 {
		t.Errorf("liquidity_b = %v, want 250", markets[1].LiquidityB)
	}

	if _, err := LoadMarketsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(empty, []byte("markets: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadMarketsFile(empty); err == nil {
		t.Error("empty markets file accepted")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("DATA_DIR", "/tmp/betting-test")
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("FEED_ENABLED", "true")
	t.Setenv("FEED_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("FEED_TOPIC", "executions")

	cfg, err := LoadFromEnv("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Server.LogFile != "/tmp/betting-test/server.log" {
		t.Errorf("log file = %s", cfg.Server.LogFile)
	}
	if cfg.Ledger.Backend != "memory" {
		t.Errorf("backend = %s", cfg.Ledger.Backend)
	}
	if !cfg.Feed.Enabled || len(cfg.Feed.Brokers) != 2 || cfg.Feed.Topic != "executions" {
		t.Errorf("feed config: %+v", cfg.Feed)
	}
}
