// Package hashreg implements the streaming hash registry and cache
// described in spec §4.1: compute blake3/sha256/sha512/md5 digests without
// reading a whole file into memory, and cache digests keyed on
// (path, algorithm), invalidated whenever (size, mtime) changes.
package hashreg

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// Algorithm is one of the four supported digest algorithms.
type Algorithm string

const (
	Blake3 Algorithm = "blake3"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
	MD5    Algorithm = "md5"
)

// chunkSize is the streaming read size mandated by spec §4.1.
const chunkSize = 8 * 1024 * 1024

func newHasher(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case Blake3:
		return blake3.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case MD5:
		return md5.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// CacheKey identifies one cached digest.
type CacheKey struct {
	Path string
	Algo Algorithm
}

// CacheEntry mirrors the HashCacheEntry model of spec §3.
type CacheEntry struct {
	Digest   string
	Size     int64
	ModTime  time.Time
	CachedAt time.Time
}

// Cache is the persistence boundary the registry uses to probe/store
// entries. internal/store implements this against SQLite.
type Cache interface {
	Get(key CacheKey) (CacheEntry, bool, error)
	Put(key CacheKey, entry CacheEntry) error
}

// Registry computes file digests, consulting and populating a Cache.
type Registry struct {
	cache Cache
}

func New(cache Cache) *Registry {
	return &Registry{cache: cache}
}

// Hash computes digests for one path across the given algorithms. It never
// fails outright: a per-path error is returned alongside whatever digests
// could be computed, per spec §4.1.
func (r *Registry) Hash(path string, algos []Algorithm) (map[Algorithm]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	size := info.Size()
	mtime := info.ModTime()

	result := make(map[Algorithm]string, len(algos))
	var missing []Algorithm

	for _, algo := range algos {
		if r.cache != nil {
			entry, ok, err := r.cache.Get(CacheKey{Path: path, Algo: algo})
			if err == nil && ok && entry.Size == size && entry.ModTime.Equal(mtime) {
				result[algo] = entry.Digest
				continue
			}
		}
		missing = append(missing, algo)
	}
	if len(missing) == 0 {
		return result, nil
	}

	hashers := make(map[Algorithm]hash.Hash, len(missing))
	writers := make([]io.Writer, 0, len(missing))
	for _, algo := range missing {
		h, err := newHasher(algo)
		if err != nil {
			return result, err
		}
		hashers[algo] = h
		writers = append(writers, h)
	}

	f, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	mw := io.MultiWriter(writers...)
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(mw, f, buf); err != nil {
		return result, fmt.Errorf("read %s: %w", path, err)
	}

	for _, algo := range missing {
		digest := fmt.Sprintf("%x", hashers[algo].Sum(nil))
		result[algo] = digest
		if r.cache != nil {
			_ = r.cache.Put(CacheKey{Path: path, Algo: algo}, CacheEntry{
				Digest:  digest,
				Size:    size,
				ModTime: mtime,
			})
		}
	}
	return result, nil
}

// HashAll computes digests for every path, collecting per-path errors
// without aborting the batch.
func (r *Registry) HashAll(paths []string, algos []Algorithm) (map[string]map[Algorithm]string, map[string]error) {
	results := make(map[string]map[Algorithm]string, len(paths))
	errs := make(map[string]error)
	for _, p := range paths {
		digests, err := r.Hash(p, algos)
		if len(digests) > 0 {
			results[p] = digests
		}
		if err != nil {
			errs[p] = err
		}
	}
	return results, errs
}

// ParseAlgorithm validates a user-supplied algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case Blake3, SHA256, SHA512, MD5:
		return Algorithm(s), nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", s)
	}
}
