package dag

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roar-ml/roar/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.Store, string) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "roar.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sess, err := s.CreateSession(context.Background(), "/repo/.roar", "/repo", "c1", true)
	require.NoError(t, err)
	return New(s), s, sess.ID
}

func hashOf(digest string) []store.ArtifactHash {
	return []store.ArtifactHash{{Algorithm: "blake3", Digest: digest}}
}

func TestApplyOverrides(t *testing.T) {
	assert.Equal(t, "python train.py --epochs=3", ApplyOverrides("python train.py --epochs=1", map[string]string{"epochs": "3"}))
	assert.Equal(t, "python train.py --epochs=3", ApplyOverrides("python train.py", map[string]string{"epochs": "3"}))
	assert.Equal(t, "python train.py --epochs=3", ApplyOverrides("python train.py --epochs 1", map[string]string{"epochs": "3"}))
}

func TestResolve_UnknownReference(t *testing.T) {
	r, _, _ := newTestResolver(t)
	_, err := r.Resolve(context.Background(), "@1", nil)
	require.Error(t, err)
}

func TestResolve_AppliesOverrides(t *testing.T) {
	r, s, sessID := newTestResolver(t)
	ctx := context.Background()

	_, _, err := s.RecordJob(ctx, sessID, store.RecordJobInput{
		Command:   "python train.py --epochs=1",
		StartedAt: time.Now(),
	})
	require.NoError(t, err)

	resolved, err := r.Resolve(ctx, "@1", map[string]string{"epochs": "3"})
	require.NoError(t, err)
	assert.Equal(t, "python train.py --epochs=3", resolved.Command)
	assert.False(t, resolved.IsBuild)
}

func TestStaleSteps_PropagatesDownstream(t *testing.T) {
	r, s, sessID := newTestResolver(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// preprocess: writes data.bin (v1)
	_, _, err := s.RecordJob(ctx, sessID, store.RecordJobInput{
		Command:   "python preprocess.py",
		StartedAt: base,
		Outputs:   []store.PathHashes{{Path: "/data/data.bin", Hashes: hashOf("v1"), Size: 1}},
	})
	require.NoError(t, err)

	// train: reads data.bin (v1), writes model.bin (v1)
	_, _, err = s.RecordJob(ctx, sessID, store.RecordJobInput{
		Command:   "python train.py",
		StartedAt: base.Add(time.Minute),
		Inputs:    []store.PathHashes{{Path: "/data/data.bin", Hashes: hashOf("v1"), Size: 1}},
		Outputs:   []store.PathHashes{{Path: "/data/model.bin", Hashes: hashOf("m1"), Size: 1}},
	})
	require.NoError(t, err)

	// eval: reads model.bin (v1)
	_, _, err = s.RecordJob(ctx, sessID, store.RecordJobInput{
		Command:   "python eval.py",
		StartedAt: base.Add(2 * time.Minute),
		Inputs:    []store.PathHashes{{Path: "/data/model.bin", Hashes: hashOf("m1"), Size: 1}},
	})
	require.NoError(t, err)

	// re-run preprocess: writes data.bin (v2) -- supersedes what train consumed
	_, _, err = s.RecordJob(ctx, sessID, store.RecordJobInput{
		Command:   "python preprocess.py",
		StartedAt: base.Add(3 * time.Minute),
		Outputs:   []store.PathHashes{{Path: "/data/data.bin", Hashes: hashOf("v2"), Size: 1}},
	})
	require.NoError(t, err)

	stale, err := r.StaleSteps(ctx, sessID)
	require.NoError(t, err)

	assert.True(t, stale[2], "train (step 2) should be stale")
	assert.True(t, stale[3], "eval (step 3) should be downstream-stale")
	assert.False(t, stale[1], "preprocess's original run is not itself stale")
	assert.False(t, stale[4], "the re-run of preprocess is not itself stale")
}

func TestRerunGroups(t *testing.T) {
	r, s, sessID := newTestResolver(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	_, _, err := s.RecordJob(ctx, sessID, store.RecordJobInput{
		Command:   "python train.py",
		StartedAt: base,
		Inputs:    []store.PathHashes{{Path: "/data/in.bin", Hashes: hashOf("v1"), Size: 1}},
		Outputs:   []store.PathHashes{{Path: "/data/out.bin", Hashes: hashOf("o1"), Size: 1}},
	})
	require.NoError(t, err)

	_, _, err = s.RecordJob(ctx, sessID, store.RecordJobInput{
		Command:   "python train.py",
		StartedAt: base.Add(time.Minute),
		Inputs:    []store.PathHashes{{Path: "/data/in.bin", Hashes: hashOf("v1"), Size: 1}},
		Outputs:   []store.PathHashes{{Path: "/data/out.bin", Hashes: hashOf("o1"), Size: 1}},
	})
	require.NoError(t, err)

	groups, err := r.RerunGroups(ctx, sessID)
	require.NoError(t, err)

	found := false
	for _, g := range groups {
		if len(g) == 2 {
			found = true
			assert.True(t, g[0].StartedAt.Before(g[1].StartedAt))
		}
	}
	assert.True(t, found, "expected one re-run group with two jobs")
}
