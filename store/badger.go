package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

const (
	badgerNoncePrefix = "nonce:"
	badgerMaxRetries  = 3
)

// BadgerStore is an embedded, crash durable nonce store. Writes are synced
// to disk before MarkSpent returns.
type BadgerStore struct {
	db        *badger.DB
	path      string
	retention time.Duration
}

var _ NonceStore = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) a badger database at path. A zero
// retention keeps nonces forever.
func NewBadgerStore(path string, retention time.Duration, logger *logrus.Entry) (*BadgerStore, error) {
	if path == "" {
		return nil, errors.New("badger store requires a directory")
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(true).
		WithTruncate(true).
		WithLogger(logger.WithField("ns", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", path, err)
	}

	return &BadgerStore{
		db:        handle,
		path:      path,
		retention: retention,
	}, nil
}

// IsSpent reports whether the nonce has been consumed.
func (s *BadgerStore) IsSpent(ctx context.Context, nonce string) (bool, error) {
	if nonce == "" {
		return false, ErrEmptyNonce
	}

	spent := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(nonceKey(nonce))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		spent = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to read nonce: %w", err)
	}
	return spent, nil
}

// MarkSpent records the nonce. Concurrent writers of the same nonce conflict,
// the loser finds the key present on retry and returns nil.
func (s *BadgerStore) MarkSpent(ctx context.Context, nonce string) error {
	if nonce == "" {
		return ErrEmptyNonce
	}

	var err error
	for attempt := 0; attempt < badgerMaxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.db.Update(func(txn *badger.Txn) error {
			key := nonceKey(nonce)
			if _, err := txn.Get(key); err == nil {
				return nil
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			entry := badger.NewEntry(key, []byte(time.Now().UTC().Format(time.RFC3339)))
			if s.retention > 0 {
				entry = entry.WithTTL(s.retention)
			}
			return txn.SetEntry(entry)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to mark nonce spent: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func nonceKey(nonce string) []byte {
	return []byte(badgerNoncePrefix + nonce)
}
