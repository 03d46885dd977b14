// Package hashcache provides an optional on-disk cache of file content
// hashes, keyed on (path, size, mtime), so that repeated `find` runs over a
// slowly-changing tree skip re-hashing files that have not changed.
//
// An existing cache is opened read-only while a fresh one is built up for
// writing, and only entries looked up or stored during this run survive
// into the new file. This makes the cache self-cleaning — stale entries for
// files that were deleted or renamed are never copied forward.
package hashcache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketNames = [2][]byte{
	[]byte("fingerprint"),
	[]byte("strong"),
}

// Kind selects which hash bucket a lookup or store targets.
type Kind int

const (
	FingerprintKind Kind = iota
	StrongKind
)

// Cache caches file content hashes across runs. The zero value (via Open(""))
// is a valid, disabled cache where every method is a no-op.
type Cache struct {
	readDB  *bolt.DB
	writeDB *bolt.DB
	path    string
	enabled bool
}

// Open opens the existing cache at path for reading (if present) and
// creates a new one alongside it for writing. Passing an empty path
// returns a disabled cache.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}

	if _, err := os.Stat(path); err == nil {
		readDB, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
		if err == nil {
			c.readDB = readDB
		}
	}

	newPath := path + ".new"
	writeDB, err := bolt.Open(newPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}
	c.writeDB = writeDB

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		for _, b := range bucketNames {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and atomically replaces the old cache file
// with the new one, provided the write database closed cleanly.
func (c *Cache) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.readDB != nil {
		record(c.readDB.Close())
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			record(err)
		} else if err := os.Rename(c.path+".new", c.path); err != nil {
			record(err)
		}
	}
	return firstErr
}

const keyVersion byte = 1

// makeKey builds a deterministic key: ver(1) + path + NUL + size(8) + mtimeNano(8).
func makeKey(path string, size int64, mtime time.Time) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, size)
	_ = binary.Write(buf, binary.BigEndian, mtime.UnixNano())
	return buf.Bytes()
}

// Lookup returns a cached hash for path at the given size/mtime, or nil if
// there is no cached entry. A hit is copied forward into the new database
// (self-cleaning).
func (c *Cache) Lookup(kind Kind, path string, size int64, mtime time.Time) ([]byte, error) {
	if !c.enabled || c.readDB == nil {
		return nil, nil
	}

	key := makeKey(path, size, mtime)
	var hash []byte

	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNames[kind])
		if b == nil {
			return nil
		}
		if data := b.Get(key); data != nil {
			hash = append([]byte(nil), data...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	if hash == nil {
		return nil, nil
	}

	_ = c.Store(kind, path, size, mtime, hash)
	return hash, nil
}

// Store saves hash for path at the given size/mtime into the new database.
func (c *Cache) Store(kind Kind, path string, size int64, mtime time.Time, hash []byte) error {
	if !c.enabled || c.writeDB == nil {
		return nil
	}
	key := makeKey(path, size, mtime)
	err := c.writeDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNames[kind]).Put(key, hash)
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
