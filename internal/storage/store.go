package storage

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/gestalt-social/gestalt/internal/config"
	"github.com/gestalt-social/gestalt/internal/domain"
	"github.com/gestalt-social/gestalt/internal/errors"
	"github.com/gestalt-social/gestalt/internal/logger"
)

// Well-known slot names. The slot space is flat; these constants exist so
// call sites cannot drift apart on spelling.
const (
	SlotRelays           = "relays"
	SlotPublicBookmarks  = "bookmarks/public"
	SlotPrivateBookmarks = "bookmarks/private"
	SlotCustomFeeds      = "feeds/custom"
	SlotFollowsCache     = "follows/cache"
)

// Store is the badger-backed local slot store: relay list, bookmark lists,
// custom feed definitions, cached follows. Values are JSON.
type Store struct {
	db  *badger.DB
	log *zap.Logger
}

var _ domain.KV = (*Store)(nil)

// Open opens (or creates) the store at the configured path. With
// cfg.InMemory set, nothing touches disk; tests use that mode.
func Open(cfg config.StorageConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open slot store: %w", err)
	}
	return &Store{db: db, log: logger.New("storage")}, nil
}

// Get decodes the slot into v. Returns false with no error when the slot
// does not exist.
func (s *Store) Get(slot string, v any) (bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(slot))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.StorageError("storage.get", slot, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		// A corrupt slot degrades to "absent" rather than wedging the
		// caller; the raw bytes stay in place for inspection.
		s.log.Warn("corrupt slot value",
			zap.String("slot", slot),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

// GetWithDefault decodes the slot into v, writing def into v when the slot
// is absent.
func (s *Store) GetWithDefault(slot string, v any, def func() any) error {
	ok, err := s.Get(slot, v)
	if err != nil {
		return err
	}
	if !ok && def != nil {
		raw, err := json.Marshal(def())
		if err != nil {
			return errors.StorageError("storage.default", slot, err)
		}
		return json.Unmarshal(raw, v)
	}
	return nil
}

func (s *Store) Set(slot string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.StorageError("storage.set", slot, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(slot), raw)
	})
	if err != nil {
		return errors.StorageError("storage.set", slot, err)
	}
	return nil
}

func (s *Store) Delete(slot string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(slot))
	})
	if err != nil {
		return errors.StorageError("storage.delete", slot, err)
	}
	return nil
}

// Close flushes and closes the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}
