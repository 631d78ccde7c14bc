// Package cache stores helper-produced assets (executable icons, window
// screenshots) in a badger database with per-entry expiry.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Entry is one cached asset. Data is base64 as the helper produced it.
type Entry struct {
	Data      string    `json:"data"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Config configures Open. An empty Dir opens an in-memory cache.
type Config struct {
	Dir    string
	Logger *slog.Logger
}

// Cache is safe for concurrent use.
type Cache struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens or creates the cache database.
func Open(cfg Config) (*Cache, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := badger.DefaultOptions(cfg.Dir).WithLogger(badgerLogger{cfg.Logger})
	if cfg.Dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", cfg.Dir, err)
	}
	return &Cache{db: db, logger: cfg.Logger}, nil
}

// NewInMemory returns a cache that lives only as long as the process.
func NewInMemory() (*Cache, error) {
	return Open(Config{})
}

// Key builds a fixed-length key from a namespace and parts.
func Key(namespace string, parts ...string) []byte {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return []byte(namespace + ":" + hex.EncodeToString(sum[:]))
}

// Get returns the entry stored under key. A missing or expired entry
// reports false with a nil error.
func (c *Cache) Get(key []byte) (Entry, bool, error) {
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &entry)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get: %w", err)
	}
	return entry, true, nil
}

// Set stores entry under key. A ttl <= 0 keeps it until deleted.
func (c *Cache) Set(key []byte, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, raw)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (c *Cache) Delete(key []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Count returns the number of live entries whose key starts with
// namespace + ":".
func (c *Cache) Count(namespace string) (int, error) {
	prefix := []byte(namespace + ":")
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Sweep reclaims value log space left behind by expired entries.
func (c *Cache) Sweep() error {
	for {
		err := c.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cache sweep: %w", err)
		}
	}
}

// Close flushes and closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// badgerLogger routes badger's printf logging into slog. Badger is chatty
// at info level, so everything below warnings is logged at debug.
type badgerLogger struct{ logger *slog.Logger }

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error("cache: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn("cache: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug("cache: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug("cache: " + strings.TrimSpace(fmt.Sprintf(format, args...)))
}
