// Package config parses forecaster configuration.
//
// Values come from command-line flags, then environment variables, then
// defaults. An optional dotenv file (ENV_FILE, default ".env") is loaded
// first without overriding the existing environment.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	grid, _ := cfg.Grid()
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/HatiCode/linecast/pkg/forecast"
	"github.com/HatiCode/linecast/pkg/models"
	"github.com/HatiCode/linecast/pkg/storage"
	"github.com/HatiCode/linecast/pkg/tls"
)

// Model names accepted by -model.
const (
	ModelForest   = "forest"
	ModelBaseline = "baseline"
	ModelRemote   = "remote"
)

// Config holds all forecaster configuration.
type Config struct {
	LogFormat string
	LogLevel  string

	Storage       string
	StoreURL      string
	StoreAuth     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	SQLitePath    string
	TLS           tls.Config
	LoadTimeout   time.Duration

	Model         string
	Trees         int
	Seed          int64
	MaxDepth      int
	MinLeaf       int
	SlotMinutes   int
	RemoteURL     string
	RemoteTimeout time.Duration
	MinSamples    int
	Band          string

	GridStart string
	GridEnd   string
	GridStep  time.Duration
	TZName    string

	ChartPNG       string
	ChartHTML      string
	PushgatewayURL string
}

// LoadEnvFile loads KEY=VALUE pairs from path. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ParseFlags loads the env file, parses os.Args and exits on invalid
// configuration.
func ParseFlags() *Config {
	if err := LoadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	cfg, err := Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	return cfg
}

// Parse builds a Config from args with environment fallbacks and
// validates it.
func Parse(args []string) (*Config, error) {
	cfg := &Config{}
	set := flag.NewFlagSet("forecaster", flag.ContinueOnError)

	set.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	set.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	set.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", storage.BackendREST), "Storage backend: rest, redis, sqlite or memory")
	set.StringVar(&cfg.StoreURL, "store-url", getEnv("STORE_URL", ""), "REST store base URL")
	set.StringVar(&cfg.StoreAuth, "store-auth", getEnv("STORE_AUTH", ""), "REST store auth token")
	set.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	set.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	set.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	set.StringVar(&cfg.RedisPrefix, "redis-prefix", getEnv("REDIS_PREFIX", storage.DefaultRedisPrefix), "Redis key prefix")
	set.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", "linecast.db"), "SQLite database file")
	set.DurationVar(&cfg.LoadTimeout, "load-timeout", getEnvDuration("LOAD_TIMEOUT", 30*time.Second), "Timeout for loading history")

	set.BoolVar(&cfg.TLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Use custom TLS settings for outbound HTTP")
	set.StringVar(&cfg.TLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "Client certificate file")
	set.StringVar(&cfg.TLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "Client private key file")
	set.StringVar(&cfg.TLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA for server verification")

	set.StringVar(&cfg.Model, "model", getEnv("MODEL", ModelForest), "Model: forest, baseline or remote")
	set.IntVar(&cfg.Trees, "trees", getEnvInt("TREES", models.DefaultTrees), "Forest size")
	set.Int64Var(&cfg.Seed, "seed", int64(getEnvInt("SEED", models.DefaultSeed)), "Forest bootstrap seed")
	set.IntVar(&cfg.MaxDepth, "max-depth", getEnvInt("MAX_DEPTH", 0), "Maximum tree depth (0 = unlimited)")
	set.IntVar(&cfg.MinLeaf, "min-leaf", getEnvInt("MIN_LEAF", 1), "Minimum samples per leaf")
	set.IntVar(&cfg.SlotMinutes, "slot-minutes", getEnvInt("SLOT_MINUTES", 10), "Baseline bucket width in minutes")
	set.StringVar(&cfg.RemoteURL, "remote-url", getEnv("REMOTE_URL", ""), "Remote model endpoint (model=remote)")
	set.DurationVar(&cfg.RemoteTimeout, "remote-timeout", getEnvDuration("REMOTE_TIMEOUT", 30*time.Second), "Remote model request timeout")
	set.IntVar(&cfg.MinSamples, "min-samples", getEnvInt("MIN_SAMPLES", 10), "Refuse to fit with this many samples or fewer")

	set.StringVar(&cfg.Band, "band", getEnv("BAND", forecast.DefaultBand.String()), "Prediction band quantiles (low,high)")

	set.StringVar(&cfg.GridStart, "grid-start", getEnv("GRID_START", "11:00"), "First prediction time (HH:MM)")
	set.StringVar(&cfg.GridEnd, "grid-end", getEnv("GRID_END", "14:00"), "Last prediction time (HH:MM)")
	set.DurationVar(&cfg.GridStep, "grid-step", getEnvDuration("GRID_STEP", 10*time.Minute), "Prediction spacing")
	set.StringVar(&cfg.TZName, "tz", getEnv("TZ_NAME", "Asia/Tokyo"), "IANA timezone of the cafeteria")

	set.StringVar(&cfg.ChartPNG, "chart-png", getEnv("CHART_PNG", ""), "Write a PNG chart to this path")
	set.StringVar(&cfg.ChartHTML, "chart-html", getEnv("CHART_HTML", ""), "Write an HTML chart to this path")
	set.StringVar(&cfg.PushgatewayURL, "pushgateway-url", getEnv("PUSHGATEWAY_URL", ""), "Push run metrics to this Prometheus Pushgateway")

	if err := set.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Storage {
	case storage.BackendREST:
		if c.StoreURL == "" {
			return errors.New("store-url is required for rest storage")
		}
	case storage.BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("redis-addr is required for redis storage")
		}
	case storage.BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite-path is required for sqlite storage")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("invalid storage %q (must be rest, redis, sqlite or memory)", c.Storage)
	}

	switch c.Model {
	case ModelForest:
		if c.Trees <= 0 {
			return fmt.Errorf("trees must be > 0, got %d", c.Trees)
		}
	case ModelBaseline:
		if c.SlotMinutes <= 0 || c.SlotMinutes > 60 {
			return fmt.Errorf("slot-minutes must be in 1..60, got %d", c.SlotMinutes)
		}
	case ModelRemote:
		if c.RemoteURL == "" {
			return errors.New("remote-url is required when model=remote")
		}
	default:
		return fmt.Errorf("invalid model %q (must be forest, baseline or remote)", c.Model)
	}

	if c.MinSamples < 0 {
		return errors.New("min-samples cannot be negative")
	}
	if c.LoadTimeout <= 0 {
		return errors.New("load-timeout must be > 0")
	}
	if _, err := c.PredictionBand(); err != nil {
		return err
	}
	if _, err := c.Grid(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	return nil
}

// Grid returns the prediction grid.
func (c *Config) Grid() (forecast.Grid, error) {
	start, err := parseClock(c.GridStart)
	if err != nil {
		return forecast.Grid{}, fmt.Errorf("grid-start: %w", err)
	}
	end, err := parseClock(c.GridEnd)
	if err != nil {
		return forecast.Grid{}, fmt.Errorf("grid-end: %w", err)
	}
	g := forecast.Grid{Start: start, End: end, Step: c.GridStep}
	if err := g.Validate(); err != nil {
		return forecast.Grid{}, err
	}
	return g, nil
}

// PredictionBand parses Band.
func (c *Config) PredictionBand() (forecast.Band, error) {
	b, err := forecast.ParseBand(c.Band)
	if err != nil {
		return forecast.Band{}, fmt.Errorf("band: %w", err)
	}
	return b, nil
}

// Location loads TZName.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TZName)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.TZName, err)
	}
	return loc, nil
}

// parseClock converts "HH:MM" into an offset from midnight.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
