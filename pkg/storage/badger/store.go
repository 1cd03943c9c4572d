package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bdb "github.com/dgraph-io/badger/v4"

	"github.com/yourusername/traceboard/pkg/config"
)

// Settings are the per-tenant analytics settings
type Settings struct {
	ColumnarEnabled bool      `json:"columnar_enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store keeps tenant settings and label dictionaries in BadgerDB
type Store struct {
	db *bdb.DB
}

// NewStore opens the BadgerDB store
func NewStore(cfg config.BadgerConfig) (*Store, error) {
	opts := bdb.DefaultOptions(cfg.DataDir)
	if cfg.InMemory {
		opts = bdb.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	if cfg.ValueLogMaxEntries > 0 {
		opts = opts.WithValueLogMaxEntries(uint32(cfg.ValueLogMaxEntries))
	}

	db, err := bdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func settingsKey(tenantID string) []byte {
	return []byte("tenant/" + tenantID + "/settings")
}

func labelPrefix(tenantID, kind string) []byte {
	return []byte("tenant/" + tenantID + "/labels/" + kind + "/")
}

// Settings returns a tenant's settings; unknown tenants get the zero value
func (s *Store) Settings(ctx context.Context, tenantID string) (Settings, error) {
	var out Settings
	err := s.db.View(func(txn *bdb.Txn) error {
		item, err := txn.Get(settingsKey(tenantID))
		if errors.Is(err, bdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings of tenant %s: %w", tenantID, err)
	}
	return out, nil
}

// SetSettings stores a tenant's settings
func (s *Store) SetSettings(ctx context.Context, tenantID string, settings Settings) error {
	if tenantID == "" {
		return errors.New("tenant id required")
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	val, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *bdb.Txn) error {
		return txn.Set(settingsKey(tenantID), val)
	})
}

// ColumnarEnabled reports whether the columnar backend serves the tenant
func (s *Store) ColumnarEnabled(ctx context.Context, tenantID string) (bool, error) {
	settings, err := s.Settings(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return settings.ColumnarEnabled, nil
}

// PutLabel stores the display label of an id of kind
func (s *Store) PutLabel(ctx context.Context, tenantID, kind, id, label string) error {
	if tenantID == "" || kind == "" || id == "" {
		return errors.New("tenant id, kind and id required")
	}
	return s.db.Update(func(txn *bdb.Txn) error {
		return txn.Set(append(labelPrefix(tenantID, kind), id...), []byte(label))
	})
}

// Labels returns every label of kind for a tenant
func (s *Store) Labels(ctx context.Context, tenantID, kind string) (map[string]string, error) {
	prefix := labelPrefix(tenantID, kind)
	out := map[string]string{}
	err := s.db.View(func(txn *bdb.Txn) error {
		it := txn.NewIterator(bdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), string(prefix))
			if err := item.Value(func(val []byte) error {
				out[id] = string(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s labels of tenant %s: %w", kind, tenantID, err)
	}
	return out, nil
}

// Health checks the store is open
func (s *Store) Health(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store is closed")
	}
	return nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}
