package params

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Server struct {
	Addr    string
	DataDir string
	LogFile string
}

type Ledger struct {
	Backend string // "pebble", "postgres" or "memory"
	Path    string // pebble only

	// Postgres settings, used when Backend == "postgres".
	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDatabase string
	PGPoolSize int
	PGSSLMode  string
}

type Feed struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// MarketDef declares one market in the markets file.
type MarketDef struct {
	Symbol     string  `yaml:"symbol"`
	Question   string  `yaml:"question"`
	Mechanism  string  `yaml:"mechanism"`   // "book" or "amm"
	LiquidityB float64 `yaml:"liquidity_b"` // amm only
}

type Config struct {
	Server  Server
	Ledger  Ledger
	Feed    Feed
	Markets []MarketDef
}

func Default() Config {
	return Config{
		Server: Server{
			Addr:    ":8080",
			DataDir: "data",
			LogFile: "data/server.log",
		},
		Ledger: Ledger{
			Backend: "pebble",
			Path:    "data/ledger",
		},
		Feed: Feed{
			Topic: "trades",
		},
		Markets: []MarketDef{
			{Symbol: "RAIN-SAT", Question: "Will it rain on Saturday?", Mechanism: "book"},
			{Symbol: "BTC-100K", Question: "Will BTC close the year above $100k?", Mechanism: "amm", LiquidityB: 100},
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults. A
// MARKETS_FILE env var points at a YAML file replacing the default
// market set.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Server.DataDir = dir
		cfg.Server.LogFile = dir + "/server.log"
		cfg.Ledger.Path = dir + "/ledger"
	}
	if f := os.Getenv("LOG_FILE"); f != "" {
		cfg.Server.LogFile = f
	}

	if b := os.Getenv("LEDGER_BACKEND"); b != "" {
		cfg.Ledger.Backend = b
	}
	if p := os.Getenv("LEDGER_PATH"); p != "" {
		cfg.Ledger.Path = p
	}
	if h := os.Getenv("PG_HOST"); h != "" {
		cfg.Ledger.PGHost = h
	}
	if p := os.Getenv("PG_PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			cfg.Ledger.PGPort = n
		}
	}
	if u := os.Getenv("PG_USER"); u != "" {
		cfg.Ledger.PGUser = u
	}
	if p := os.Getenv("PG_PASSWORD"); p != "" {
		cfg.Ledger.PGPassword = p
	}
	if d := os.Getenv("PG_DATABASE"); d != "" {
		cfg.Ledger.PGDatabase = d
	}
	if p := os.Getenv("PG_POOL_SIZE"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			cfg.Ledger.PGPoolSize = n
		}
	}
	if m := os.Getenv("PG_SSL_MODE"); m != "" {
		cfg.Ledger.PGSSLMode = m
	}

	if os.Getenv("FEED_ENABLED") == "true" {
		cfg.Feed.Enabled = true
	}
	if brokers := os.Getenv("FEED_BROKERS"); brokers != "" {
		cfg.Feed.Brokers = strings.Split(brokers, ",")
	}
	if topic := os.Getenv("FEED_TOPIC"); topic != "" {
		cfg.Feed.Topic = topic
	}

	if path := os.Getenv("MARKETS_FILE"); path != "" {
		markets, err := LoadMarketsFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.Markets = markets
	}

	return cfg, cfg.Validate()
}

// LoadMarketsFile reads market definitions from a YAML file of the form
//
//	markets:
//	  - symbol: RAIN-SAT
//	    question: Will it rain on Saturday?
//	    mechanism: book
func LoadMarketsFile(path string) ([]MarketDef, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read markets file %s: %w", path, err)
	}

	var doc struct {
		Markets []MarketDef `yaml:"markets"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("couldn't parse markets file: %w", err)
	}
	if len(doc.Markets) == 0 {
		return nil, fmt.Errorf("markets file %s defines no markets", path)
	}
	return doc.Markets, nil
}

// Validate checks config sanity before the process wires anything up.
func (c Config) Validate() error {
	switch c.Ledger.Backend {
	case "pebble":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger path is required for the pebble backend")
		}
	case "postgres":
		if c.Ledger.PGHost == "" {
			return fmt.Errorf("PG_HOST is required for the postgres backend")
		}
		if c.Ledger.PGDatabase == "" {
			return fmt.Errorf("PG_DATABASE is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}

	if c.Feed.Enabled && len(c.Feed.Brokers) == 0 {
		return fmt.Errorf("FEED_BROKERS is required when the feed is enabled")
	}

	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one market must be configured")
	}
	seen := make(map[string]bool)
	for _, m := range c.Markets {
		if m.Symbol == "" {
			return fmt.Errorf("market symbol is required")
		}
		if seen[m.Symbol] {
			return fmt.Errorf("market %s configured twice", m.Symbol)
		}
		seen[m.Symbol] = true
	}
	return nil
}
