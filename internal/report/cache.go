package report

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Digest keys a cached record.
type Digest [sha256.Size]byte

// Key hashes the parts that decide what a run produces: the sample name,
// the build fingerprint and the lowering options.
func Key(parts ...string) Digest {
	return sha256.Sum256([]byte(strings.Join(parts, "\x00")))
}

// Cache stores records on disk, one msgpack file per key. It is safe for
// concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

// OpenCache opens (and creates) a cache rooted at dir. An empty dir picks
// $XDG_CACHE_HOME/app or ~/.cache/app.
func OpenCache(dir, app string) (*Cache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, app)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "reports", hex.EncodeToString(key[:])+".mp")
}

// Put writes rec under key, replacing any previous entry atomically.
func (c *Cache) Put(key Digest, rec *Record) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	}()
	if err := msgpack.NewEncoder(f).Encode(rec); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get loads the record stored under key. Entries from an older schema
// count as misses.
func (c *Cache) Get(key Digest) (*Record, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()
	var rec Record
	if err := msgpack.NewDecoder(f).Decode(&rec); err != nil {
		return nil, false, err
	}
	if rec.Schema != schemaVersion {
		return nil, false, nil
	}
	return &rec, true, nil
}

// DropAll removes every cached record.
func (c *Cache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "reports"))
}
