package roarconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".roar")
	cfg := Default()
	cfg.Glaas.URL = "https://laas.example.com"
	cfg.Hash.Algorithms = []string{"blake3", "sha256"}

	require.NoError(t, Save(dir, cfg))
	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://laas.example.com", loaded.Glaas.URL)
	assert.Equal(t, []string{"blake3", "sha256"}, loaded.Hash.Algorithms)
}

func TestGet_DottedKey(t *testing.T) {
	cfg := Default()
	cfg.Glaas.URL = "https://laas.example.com"
	v, err := Get(cfg, "glaas.url")
	require.NoError(t, err)
	assert.Equal(t, "https://laas.example.com", v)
}

func TestGet_UnknownKeyErrors(t *testing.T) {
	_, err := Get(Default(), "glaas.nonexistent")
	assert.Error(t, err)
}

func TestSet_DottedKeyStringAndBool(t *testing.T) {
	cfg := Default()
	require.NoError(t, Set(&cfg, "glaas.url", "https://new.example.com"))
	assert.Equal(t, "https://new.example.com", cfg.Glaas.URL)

	require.NoError(t, Set(&cfg, "filters.enabled", "false"))
	assert.False(t, cfg.Filters.Enabled)
}

func TestSet_DottedKeySlice(t *testing.T) {
	cfg := Default()
	require.NoError(t, Set(&cfg, "hash.algorithms", "blake3,sha256,md5"))
	assert.Equal(t, []string{"blake3", "sha256", "md5"}, cfg.Hash.Algorithms)
}

func TestList_IncludesEnvMapEntries(t *testing.T) {
	cfg := Default()
	cfg.Env["FOO"] = "bar"
	list := List(cfg)
	assert.Equal(t, "bar", list["env.FOO"])
	assert.Equal(t, "info", list["logging.level"])
}
