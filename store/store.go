// Package store records spent payment nonces so a payment can be settled at
// most once.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Backend names.
const (
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// DefaultRetention is how long a spent nonce is remembered by backends that
// expire entries. Payment requirements are valid for minutes, so a day is
// far past any window in which a claim could be replayed.
const DefaultRetention = 24 * time.Hour

// ErrEmptyNonce is returned for an empty nonce.
var ErrEmptyNonce = errors.New("nonce must not be empty")

// NonceStore is the set of consumed payment nonces. Implementations are safe
// for concurrent use, and a completed MarkSpent is visible to every later
// IsSpent.
type NonceStore interface {
	// IsSpent reports whether the nonce has been consumed.
	IsSpent(ctx context.Context, nonce string) (bool, error)
	// MarkSpent records the nonce as consumed. Marking a spent nonce again is not an error.
	MarkSpent(ctx context.Context, nonce string) error
	// Close releases the backend.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend     string        `mapstructure:"backend"`
	BadgerDir   string        `mapstructure:"badger_dir"`
	RedisURL    string        `mapstructure:"redis_url"`
	PostgresURL string        `mapstructure:"postgres_url"`
	Retention   time.Duration `mapstructure:"retention"`
}

// New opens the backend named by cfg.Backend.
func New(ctx context.Context, cfg Config, logger *logrus.Entry) (NonceStore, error) {
	switch cfg.Backend {
	case BackendBadger, "":
		return NewBadgerStore(cfg.BadgerDir, cfg.Retention, logger)
	case BackendRedis:
		return DialRedisStore(ctx, cfg.RedisURL, cfg.Retention)
	case BackendPostgres:
		return OpenPostgresStore(ctx, cfg.PostgresURL)
	case BackendMemory:
		return NewMemoryStore(cfg.Retention), nil
	default:
		return nil, fmt.Errorf("unknown nonce store backend %q", cfg.Backend)
	}
}
