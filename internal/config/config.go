package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"` // sqlite | postgres
	DBDSN    string `env:"DB_DSN" envDefault:"ecocycle.db"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE" envDefault:"./ecocycle.log"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	ListingCacheTTL time.Duration `env:"LISTING_CACHE_TTL" envDefault:"5m"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"ecocycle.events"`

	SeedDemo        bool `env:"SEED_DEMO" envDefault:"true"`
	RateLimitPerMin int  `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
}

// Load reads .env (if present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	return cfg, nil
}

// Fields is the loggable view of the config; secrets are redacted.
func (c Config) Fields() map[string]any {
	return map[string]any{
		"port":         c.Port,
		"db_driver":    c.DBDriver,
		"db_dsn":       redactDSN(c.DBDSN),
		"log_level":    c.LogLevel,
		"log_file":     c.LogFile,
		"redis_addr":   c.RedisAddr,
		"kafka":        c.KafkaBrokers,
		"kafka_topic":  c.KafkaTopic,
		"seed_demo":    c.SeedDemo,
		"rate_per_min": c.RateLimitPerMin,
	}
}

func redactDSN(dsn string) string {
	if len(dsn) > 11 && dsn[:11] == "postgres://" {
		return "postgres://***"
	}
	return dsn
}
