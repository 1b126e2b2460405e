package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/roar-ml/roar/internal/hashreg"
	"github.com/roar-ml/roar/internal/rerr"
)

// HashCache adapts Store's hash_cache table to hashreg.Cache (spec §3, §4.1,
// testable property §8.2).
type HashCache struct {
	store *Store
}

func (s *Store) HashCache() *HashCache {
	return &HashCache{store: s}
}

func (c *HashCache) Get(key hashreg.CacheKey) (hashreg.CacheEntry, bool, error) {
	row := c.store.db.QueryRow(`
		SELECT digest, size, mtime, cached_at FROM hash_cache WHERE path = ? AND algorithm = ?`,
		key.Path, string(key.Algo))
	var digest string
	var size, mtime, cachedAt int64
	if err := row.Scan(&digest, &size, &mtime, &cachedAt); err != nil {
		if err == sql.ErrNoRows {
			return hashreg.CacheEntry{}, false, nil
		}
		return hashreg.CacheEntry{}, false, rerr.Wrap(rerr.KindDatabase, "query hash cache", err)
	}
	return hashreg.CacheEntry{
		Digest:   digest,
		Size:     size,
		ModTime:  time.Unix(0, mtime).UTC(),
		CachedAt: time.Unix(cachedAt, 0).UTC(),
	}, true, nil
}

func (c *HashCache) Put(key hashreg.CacheKey, entry hashreg.CacheEntry) error {
	_, err := c.store.db.Exec(`
		INSERT INTO hash_cache (path, algorithm, digest, size, mtime, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, algorithm) DO UPDATE SET digest=excluded.digest, size=excluded.size, mtime=excluded.mtime, cached_at=excluded.cached_at`,
		key.Path, string(key.Algo), entry.Digest, entry.Size, entry.ModTime.UnixNano(), time.Now().Unix())
	if err != nil {
		return rerr.Wrap(rerr.KindDatabase, "upsert hash cache", err)
	}
	return nil
}

// GC evicts every cache entry for paths that no longer exist on disk, or
// all entries if paths is nil (spec §3 "evicted ... on explicit garbage
// collection").
func (c *HashCache) GC(ctx context.Context, stillValid func(path string) bool) (int, error) {
	rows, err := c.store.db.QueryContext(ctx, `SELECT DISTINCT path FROM hash_cache`)
	if err != nil {
		return 0, rerr.Wrap(rerr.KindDatabase, "list cached paths", err)
	}
	var toEvict []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return 0, err
		}
		if stillValid == nil || !stillValid(p) {
			toEvict = append(toEvict, p)
		}
	}
	rows.Close()
	for _, p := range toEvict {
		if _, err := c.store.db.ExecContext(ctx, `DELETE FROM hash_cache WHERE path = ?`, p); err != nil {
			return 0, rerr.Wrap(rerr.KindDatabase, "evict hash cache entry", err)
		}
	}
	return len(toEvict), nil
}
