// SPDX-License-Identifier: MIT

package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/skeidel/voxpipe/internal/log"
)

// Cache memoizes chunk translations so a resumed or repeated run never pays
// for the same chunk twice.
type Cache interface {
	Get(provider, source, target, chunk string) (string, bool)
	Put(provider, source, target, chunk, translated string)
	Close() error
}

// BadgerCache is the embedded on-disk chunk cache.
type BadgerCache struct {
	db *badger.DB
}

// OpenCache opens (or creates) the cache at dir. Failure to open only
// disables caching; callers treat a nil cache as a no-op.
func OpenCache(dir string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open translation cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// Close releases the cache.
func (c *BadgerCache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Get looks up a previously translated chunk.
func (c *BadgerCache) Get(provider, source, target, chunk string) (string, bool) {
	if c == nil {
		return "", false
	}
	var out []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(provider, source, target, chunk))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logger := log.WithComponent("translate")
			logger.Warn().Err(err).Msg("cache read failed")
		}
		return "", false
	}
	return string(out), true
}

// Put stores a translated chunk. Write failures only log; the cache is an
// optimization, never a correctness dependency.
func (c *BadgerCache) Put(provider, source, target, chunk, translated string) {
	if c == nil {
		return
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(provider, source, target, chunk), []byte(translated))
	})
	if err != nil {
		logger := log.WithComponent("translate")
		logger.Warn().Err(err).Msg("cache write failed")
	}
}

func cacheKey(provider, source, target, chunk string) []byte {
	sum := sha256.Sum256([]byte(provider + "|" + source + "|" + target + "|" + chunk))
	return []byte("chunk:" + hex.EncodeToString(sum[:]))
}
