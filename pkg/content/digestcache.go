package content

import (
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketDigests = []byte("digests")

// DigestCache is a bbolt-backed cache from (path, mtime, size) to a
// precomputed SHA1 hex digest, avoiding a full re-scan of unchanged static
// files on every FILE request. Rendered templates never populate or
// consult this cache (see Resolver.openRendered).
type DigestCache struct {
	db *bolt.DB
}

// OpenDigestCache opens (creating if absent) a bbolt database at dataDir's
// "content-digests.db".
func OpenDigestCache(dataDir string) (*DigestCache, error) {
	path := filepath.Join(dataDir, "content-digests.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening digest cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDigests)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DigestCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *DigestCache) Close() error { return c.db.Close() }

func cacheKey(path string, info os.FileInfo) []byte {
	return []byte(fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size()))
}

// Lookup returns the cached digest for path at its current (mtime, size),
// or ok=false if absent or stale.
func (c *DigestCache) Lookup(path string, info os.FileInfo) (digest string, ok bool) {
	key := cacheKey(path, info)
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDigests)
		v := b.Get(key)
		if v != nil {
			digest = string(v)
			ok = true
		}
		return nil
	})
	return digest, ok
}

// Store records digest for path at its current (mtime, size). A later
// Lookup under a different (mtime, size) — i.e. the file changed — simply
// misses; stale entries are never explicitly evicted, since the key space
// already changes on every modification.
func (c *DigestCache) Store(path string, info os.FileInfo, digest string) {
	key := cacheKey(path, info)
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDigests)
		return b.Put(key, []byte(digest))
	})
}
