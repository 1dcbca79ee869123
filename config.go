package tally

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/ryhazerus/tally/store"
)

// Backend names accepted by Config.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// Config describes how to build a Recorder from the environment. Redis and
// PostgreSQL stores are built by their own modules and passed with WithStore.
type Config struct {
	Backend     string `env:"TALLY_BACKEND" envDefault:"memory"`
	DSN         string `env:"TALLY_DSN"`
	Cache       bool   `env:"TALLY_CACHE" envDefault:"false"`
	MaxAttempts int    `env:"TALLY_MAX_ATTEMPTS" envDefault:"5"`
}

// LoadConfig reads Config from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("tally: parse env: %w", err)
	}
	return cfg, nil
}

// OpenStore builds the store named by Backend.
func (c Config) OpenStore() (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case "", BackendMemory:
		s = store.NewMemoryStore()
	case BackendSQLite:
		dsn := c.DSN
		if dsn == "" {
			dsn = "tally.db"
		}
		s, err = store.NewSQLiteStore(dsn)
	case BackendBolt:
		path := c.DSN
		if path == "" {
			path = "tally.bolt"
		}
		s, err = store.NewBoltStore(path)
	default:
		return nil, fmt.Errorf("tally: unknown backend %q", c.Backend)
	}
	if err != nil {
		return nil, err
	}

	if c.Cache {
		s = store.NewCachedStore(s)
	}
	return s, nil
}

// Open builds a Recorder from c. Extra options are applied after the ones
// derived from c.
func Open(c Config, opts ...Option) (*Recorder, error) {
	s, err := c.OpenStore()
	if err != nil {
		return nil, err
	}
	base := []Option{WithStore(s)}
	if c.MaxAttempts > 0 {
		base = append(base, WithMaxAttempts(c.MaxAttempts))
	}
	return New(append(base, opts...)...), nil
}
