// Package config parses monitor configuration.
//
// Values come from command-line flags, then environment variables, then
// defaults. An optional dotenv file (ENV_FILE, default ".env") is loaded
// first; it never overrides variables already present in the environment.
//
// Example usage:
//
//	cfg := config.ParseFlags()
//	loc, _ := cfg.Location()
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/HatiCode/linecast/pkg/detect"
	"github.com/HatiCode/linecast/pkg/gate"
	"github.com/HatiCode/linecast/pkg/recorder"
	"github.com/HatiCode/linecast/pkg/storage"
	"github.com/HatiCode/linecast/pkg/tls"
)

// Config holds all monitor configuration.
type Config struct {
	Listen     string
	GRPCListen string
	LogFormat  string
	LogLevel   string
	ServerTLS  tls.Config

	SourceKind    string
	SourceURL     string
	SourceTimeout time.Duration

	DetectorURL     string
	DetectorTimeout time.Duration
	ImageSize       int
	MinConfidence   float64
	PreviewQuality  int

	PublishInterval time.Duration
	PublishTimeout  time.Duration

	Storage       string
	StoreURL      string
	StoreAuth     string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	SQLitePath    string
	ClientTLS     tls.Config

	TrainingFile string
	WindowStart  int
	WindowEnd    int
	TZName       string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process
// environment. A missing file is not an error.
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
	set := flag.NewFlagSet("monitor", flag.ContinueOnError)

	set.StringVar(&cfg.Listen, "listen", getEnv("LISTEN", ":8090"), "HTTP listen address (status, metrics, preview)")
	set.StringVar(&cfg.GRPCListen, "grpc-listen", getEnv("GRPC_LISTEN", ""), "gRPC health listen address (disabled when empty)")
	set.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "Log format: text or json")
	set.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	set.BoolVar(&cfg.ServerTLS.Enabled, "server-tls-enabled", getEnvBool("SERVER_TLS_ENABLED", false), "Serve HTTP and gRPC over TLS")
	set.StringVar(&cfg.ServerTLS.CertFile, "server-tls-cert-file", getEnv("SERVER_TLS_CERT_FILE", ""), "Server certificate file")
	set.StringVar(&cfg.ServerTLS.KeyFile, "server-tls-key-file", getEnv("SERVER_TLS_KEY_FILE", ""), "Server private key file")
	set.StringVar(&cfg.ServerTLS.CAFile, "server-tls-ca-file", getEnv("SERVER_TLS_CA_FILE", ""), "CA for client certificate verification")

	set.StringVar(&cfg.SourceKind, "source", getEnv("SOURCE_KIND", "mjpeg"), "Frame source: dir, snapshot or mjpeg")
	set.StringVar(&cfg.SourceURL, "source-url", getEnv("SOURCE_URL", ""), "Frame source location (directory or URL)")
	set.DurationVar(&cfg.SourceTimeout, "source-timeout", getEnvDuration("SOURCE_TIMEOUT", 10*time.Second), "Snapshot request timeout")

	set.StringVar(&cfg.DetectorURL, "detector-url", getEnv("DETECTOR_URL", ""), "Object detection endpoint")
	set.DurationVar(&cfg.DetectorTimeout, "detector-timeout", getEnvDuration("DETECTOR_TIMEOUT", 5*time.Second), "Detection request timeout")
	set.IntVar(&cfg.ImageSize, "image-size", getEnvInt("IMAGE_SIZE", detect.DefaultOptions().ImageSize), "Inference resolution (longest side)")
	set.Float64Var(&cfg.MinConfidence, "min-confidence", getEnvFloat("MIN_CONFIDENCE", detect.DefaultOptions().MinConfidence), "Minimum person confidence")
	set.IntVar(&cfg.PreviewQuality, "preview-quality", getEnvInt("PREVIEW_QUALITY", 80), "Preview JPEG quality (1-100)")

	set.DurationVar(&cfg.PublishInterval, "publish-interval", getEnvDuration("PUBLISH_INTERVAL", gate.DefaultInterval), "Minimum time between publishes")
	set.DurationVar(&cfg.PublishTimeout, "publish-timeout", getEnvDuration("PUBLISH_TIMEOUT", 5*time.Second), "Timeout for each store write")

	set.StringVar(&cfg.Storage, "storage", getEnv("STORAGE", storage.BackendREST), "Storage backend: rest, redis, sqlite or memory")
	set.StringVar(&cfg.StoreURL, "store-url", getEnv("STORE_URL", ""), "REST store base URL")
	set.StringVar(&cfg.StoreAuth, "store-auth", getEnv("STORE_AUTH", ""), "REST store auth token")
	set.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", "localhost:6379"), "Redis server address")
	set.StringVar(&cfg.RedisPassword, "redis-password", getEnv("REDIS_PASSWORD", ""), "Redis password")
	set.IntVar(&cfg.RedisDB, "redis-db", getEnvInt("REDIS_DB", 0), "Redis database number")
	set.StringVar(&cfg.RedisPrefix, "redis-prefix", getEnv("REDIS_PREFIX", storage.DefaultRedisPrefix), "Redis key prefix")
	set.StringVar(&cfg.SQLitePath, "sqlite-path", getEnv("SQLITE_PATH", "linecast.db"), "SQLite database file")

	set.BoolVar(&cfg.ClientTLS.Enabled, "tls-enabled", getEnvBool("TLS_ENABLED", false), "Use custom TLS settings for outbound HTTP")
	set.StringVar(&cfg.ClientTLS.CertFile, "tls-cert-file", getEnv("TLS_CERT_FILE", ""), "Client certificate file")
	set.StringVar(&cfg.ClientTLS.KeyFile, "tls-key-file", getEnv("TLS_KEY_FILE", ""), "Client private key file")
	set.StringVar(&cfg.ClientTLS.CAFile, "tls-ca-file", getEnv("TLS_CA_FILE", ""), "CA for server verification")

	set.StringVar(&cfg.TrainingFile, "training-file", getEnv("TRAINING_FILE", recorder.DefaultPath), "Training CSV path")
	set.IntVar(&cfg.WindowStart, "window-start", getEnvInt("TRAINING_WINDOW_START", recorder.DefaultWindowStart), "Training window start (HHMM)")
	set.IntVar(&cfg.WindowEnd, "window-end", getEnvInt("TRAINING_WINDOW_END", recorder.DefaultWindowEnd), "Training window end (HHMM)")
	set.StringVar(&cfg.TZName, "tz", getEnv("TZ_NAME", "Asia/Tokyo"), "IANA timezone for clock fields")

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
	if c.SourceURL == "" {
		return errors.New("source-url is required")
	}
	if c.DetectorURL == "" {
		return errors.New("detector-url is required")
	}
	if u, err := url.Parse(c.DetectorURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("detector-url %q must be an http(s) URL", c.DetectorURL)
	}
	if c.ImageSize <= 0 {
		return fmt.Errorf("image-size must be > 0, got %d", c.ImageSize)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min-confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.PublishInterval < 0 {
		return errors.New("publish-interval cannot be negative")
	}
	if c.PublishTimeout <= 0 {
		return errors.New("publish-timeout must be > 0")
	}

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

	if err := c.Window().Validate(); err != nil {
		return fmt.Errorf("training window: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if err := c.ClientTLS.Validate(); err != nil {
		return fmt.Errorf("client tls: %w", err)
	}
	if err := c.ServerTLS.Validate(); err != nil {
		return fmt.Errorf("server tls: %w", err)
	}
	return nil
}

// Window returns the configured training window.
func (c *Config) Window() recorder.Window {
	return recorder.Window{Start: c.WindowStart, End: c.WindowEnd}
}

// Location loads TZName.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TZName)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.TZName, err)
	}
	return loc, nil
}

// DetectOptions returns the per-frame inference settings.
func (c *Config) DetectOptions() detect.Options {
	return detect.Options{ImageSize: c.ImageSize, MinConfidence: c.MinConfidence}
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
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
