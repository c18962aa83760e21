package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":3000"`
	AdminToken    string `env:"ADMIN_TOKEN" envDefault:"letmein"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	// DatabaseURL selects the durable mirror: postgres:// for Postgres, a path or
	// sqlite:<path> for SQLite, empty for none.
	DatabaseURL    string        `env:"DATABASE_URL"`
	FileMirrorDir  string        `env:"FILE_MIRROR_DIR"`
	FileMirrorGit  bool          `env:"FILE_MIRROR_GIT" envDefault:"false"`
	StartEmpty     bool          `env:"START_EMPTY" envDefault:"false"`
	PersistRetries int           `env:"PERSIST_RETRIES" envDefault:"3"`
	PersistBackoff time.Duration `env:"PERSIST_BACKOFF" envDefault:"250ms"`

	DefaultCard         string `env:"DEFAULT_CARD" envDefault:"default"`
	CardTTLHours        int    `env:"CARD_TTL_HOURS" envDefault:"48"`
	IdempotencyCapacity int    `env:"IDEMPOTENCY_CAPACITY" envDefault:"200"`

	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"3s"`
	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	OriginPatterns []string      `env:"WS_ORIGIN_PATTERNS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and then the environment. Variables already
// set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.AdminToken) == "" {
		return errors.New("ADMIN_TOKEN must not be empty")
	}
	if c.DefaultCard == "" {
		return errors.New("DEFAULT_CARD must not be empty")
	}
	if c.PersistRetries < 1 {
		return fmt.Errorf("PERSIST_RETRIES must be at least 1, got %d", c.PersistRetries)
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
	return nil
}

func (c *Config) CardTTL() time.Duration {
	return time.Duration(c.CardTTLHours) * time.Hour
}
