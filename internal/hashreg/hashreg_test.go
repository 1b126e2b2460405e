package hashreg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCache struct {
	entries map[CacheKey]CacheEntry
	gets    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[CacheKey]CacheEntry)}
}

func (m *memCache) Get(key CacheKey) (CacheEntry, bool, error) {
	m.gets++
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memCache) Put(key CacheKey, entry CacheEntry) error {
	m.entries[key] = entry
	return nil
}

func TestHash_StableDigest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	reg := New(nil)
	digests, err := reg.Hash(path, []Algorithm{SHA256, Blake3, MD5, SHA512})
	require.NoError(t, err)

	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde", digests[SHA256])
	assert.Len(t, digests[Blake3], 64)
	assert.Len(t, digests[MD5], 32)
	assert.Len(t, digests[SHA512], 128)
}

func TestHash_CacheHitAvoidsRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("cached content"), 0o644))

	cache := newMemCache()
	reg := New(cache)

	d1, err := reg.Hash(path, []Algorithm{SHA256})
	require.NoError(t, err)

	d2, err := reg.Hash(path, []Algorithm{SHA256})
	require.NoError(t, err)
	assert.Equal(t, d1[SHA256], d2[SHA256])
	assert.Equal(t, 2, cache.gets)
}

func TestHash_CacheInvalidatedOnMtimeChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(path, []byte("version one"), 0o644))

	cache := newMemCache()
	reg := New(cache)

	first, err := reg.Hash(path, []Algorithm{SHA256})
	require.NoError(t, err)

	// Change content and mtime.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("version two, much longer"), 0o644))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, future, future))

	second, err := reg.Hash(path, []Algorithm{SHA256})
	require.NoError(t, err)
	assert.NotEqual(t, first[SHA256], second[SHA256])
}

func TestHash_PerPathErrorDoesNotFailBatch(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.txt")
	require.NoError(t, os.WriteFile(ok, []byte("data"), 0o644))
	missing := filepath.Join(dir, "missing.txt")

	reg := New(nil)
	results, errs := reg.HashAll([]string{ok, missing}, []Algorithm{SHA256})

	assert.Contains(t, results, ok)
	assert.NotContains(t, results, missing)
	assert.Error(t, errs[missing])
	assert.NotContains(t, errs, ok)
}

func TestParseAlgorithm(t *testing.T) {
	_, err := ParseAlgorithm("bogus")
	assert.Error(t, err)

	a, err := ParseAlgorithm("blake3")
	require.NoError(t, err)
	assert.Equal(t, Blake3, a)
}
