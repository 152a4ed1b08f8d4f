package config

import (
	"fmt"
	"time"

	sharedconfig "github.com/eaglebank/ledger/shared/config"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the ledger service configuration, read from the environment.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	LogMode string `env:"LOG_MODE" envDefault:"development"`

	// EventLogDriver selects the event log. The memory driver keeps the feed
	// in process and needs neither Postgres nor Redis.
	EventLogDriver string `env:"EVENT_LOG_DRIVER" envDefault:"memory"`
	DatabaseURL    string `env:"DATABASE_URL"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	FeedStream   string `env:"FEED_STREAM" envDefault:"ledger.events"`
	FeedGroup    string `env:"FEED_GROUP" envDefault:"ledger-service"`
	FeedConsumer string `env:"FEED_CONSUMER" envDefault:"ledger-1"`

	RelayInterval       time.Duration `env:"RELAY_INTERVAL" envDefault:"1s"`
	RelayBatch          int           `env:"RELAY_BATCH" envDefault:"100"`
	RelayMaxAttempts    int           `env:"RELAY_MAX_ATTEMPTS" envDefault:"10"`
	SubscribeTimeout    time.Duration `env:"SUBSCRIBE_TIMEOUT" envDefault:"30s"`
	DispatchParallelism int           `env:"DISPATCH_PARALLELISM" envDefault:"8"`
}

func Load() (Config, error) {
	var cfg Config
	if err := sharedconfig.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.EventLogDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s event log", DriverPostgres)
		}
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the %s event log", DriverPostgres)
		}
	default:
		return fmt.Errorf("unknown EVENT_LOG_DRIVER %q", c.EventLogDriver)
	}
	if c.RelayBatch <= 0 {
		return fmt.Errorf("RELAY_BATCH must be positive, got %d", c.RelayBatch)
	}
	if c.RelayMaxAttempts <= 0 {
		return fmt.Errorf("RELAY_MAX_ATTEMPTS must be positive, got %d", c.RelayMaxAttempts)
	}
	return nil
}

// UseRedis reports whether read models and notifications live in Redis.
func (c Config) UseRedis() bool { return c.RedisAddr != "" }
