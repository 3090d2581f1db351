package vectorstore

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// AccessCache buffers access-count increments in BadgerDB and flushes
// them to the backing Store on a timer, bounding the write amplification
// a hot chunk's repeated retrieval would otherwise cause (spec §9's
// "single batched update" requirement, extended across search calls).
type AccessCache struct {
	db     *badger.DB
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]int

	flushInterval time.Duration
}

func OpenAccessCache(dir string, store Store, flushInterval time.Duration) (*AccessCache, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening access cache: %w", err)
	}

	c := &AccessCache{
		db:            db,
		store:         store,
		logger:        slog.Default().With("component", "accesscache"),
		pending:       make(map[string]int),
		flushInterval: flushInterval,
	}
	if err := c.loadPending(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// RecordAccess buffers one hit for chunkID, persisting the increment to
// BadgerDB immediately so a crash doesn't lose accumulated counts before
// the next flush.
func (c *AccessCache) RecordAccess(chunkID string) error {
	c.mu.Lock()
	c.pending[chunkID]++
	count := c.pending[chunkID]
	c.mu.Unlock()

	return c.db.Update(func(txn *badger.Txn) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(count))
		return txn.Set([]byte(chunkID), buf)
	})
}

func (c *AccessCache) loadPending() error {
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		iter := txn.NewIterator(opts)
		defer iter.Close()

		c.mu.Lock()
		defer c.mu.Unlock()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			id := string(item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return nil
				}
				c.pending[id] = int(binary.BigEndian.Uint64(val))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Run flushes pending counts to the store every flushInterval until stop
// is closed, then performs one final flush.
func (c *AccessCache) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Flush(); err != nil {
				c.logger.Error("flushing access cache", "error", err)
			}
		case <-stop:
			if err := c.Flush(); err != nil {
				c.logger.Error("final flush of access cache", "error", err)
			}
			return
		}
	}
}

// Flush applies every buffered increment to the store in one pass and
// clears the entries that succeeded, so a store outage retries the same
// counts on the next tick instead of losing them.
func (c *AccessCache) Flush() error {
	c.mu.Lock()
	snapshot := make(map[string]int, len(c.pending))
	for k, v := range c.pending {
		snapshot[k] = v
	}
	c.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	flushed := make([]string, 0, len(snapshot))
	for id, delta := range snapshot {
		if err := c.store.IncrementAccessCount(id, delta); err != nil {
			c.logger.Error("flushing access count", "chunk_id", id, "error", err)
			continue
		}
		flushed = append(flushed, id)
	}

	c.mu.Lock()
	for _, id := range flushed {
		c.pending[id] -= snapshot[id]
		if c.pending[id] <= 0 {
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	return c.db.Update(func(txn *badger.Txn) error {
		for _, id := range flushed {
			if err := txn.Delete([]byte(id)); err != nil {
				return fmt.Errorf("clearing flushed entry %s: %w", id, err)
			}
		}
		return nil
	})
}

func (c *AccessCache) Close() error {
	return c.db.Close()
}
