package roarconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_MissingFileIsEmpty(t *testing.T) {
	vars, err := LoadEnv(filepath.Join(t.TempDir(), ".roar"))
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestSetGetUnsetEnv_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".roar")

	require.NoError(t, SetEnv(dir, "DATASET_DIR", "/data/ds1"))
	v, ok, err := GetEnv(dir, "DATASET_DIR")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/data/ds1", v)

	require.NoError(t, UnsetEnv(dir, "DATASET_DIR"))
	_, ok, err = GetEnv(dir, "DATASET_DIR")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetEnv_OverwritesExistingKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".roar")
	require.NoError(t, SetEnv(dir, "K", "v1"))
	require.NoError(t, SetEnv(dir, "K", "v2"))
	v, ok, err := GetEnv(dir, "K")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}
