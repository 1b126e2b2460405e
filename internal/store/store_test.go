package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "roar.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNormalizePath(t *testing.T) {
	p, err := NormalizePath("/a/b/../c/./d")
	require.NoError(t, err)
	assert.Equal(t, "/a/c/d", p)
}

func TestPutArtifact_DedupesByHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.PutArtifact(ctx, []ArtifactHash{{Algorithm: "sha256", Digest: "abc123"}}, 10, "/tmp/a", "", "")
	require.NoError(t, err)

	id2, err := s.PutArtifact(ctx, []ArtifactHash{{Algorithm: "sha256", Digest: "abc123"}, {Algorithm: "blake3", Digest: "def456"}}, 10, "/tmp/b", "", "")
	require.NoError(t, err)

	assert.Equal(t, id1, id2)

	art, err := s.getArtifact(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Len(t, art.Hashes, 2)
}

func TestGetByHash_AmbiguousPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.PutArtifact(ctx, []ArtifactHash{{Algorithm: "sha256", Digest: "aaaa1111"}}, 1, "", "", "")
	require.NoError(t, err)
	_, err = s.PutArtifact(ctx, []ArtifactHash{{Algorithm: "sha256", Digest: "aaaa2222"}}, 1, "", "", "")
	require.NoError(t, err)

	_, err = s.GetByHash(ctx, "aaaa", "")
	assert.ErrorIs(t, err, ErrAmbiguousHash)

	art, err := s.GetByHash(ctx, "aaaa1111", "")
	require.NoError(t, err)
	require.NotNil(t, art)
}

func TestRecordJob_RoundTripAndStepNumbering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "/repo/.roar", "/repo", "deadbeef", true)
	require.NoError(t, err)

	inputs := []PathHashes{{Path: "/tmp/in", Hashes: []ArtifactHash{{Algorithm: "blake3", Digest: "in1"}}, Size: 10}}
	outputs := []PathHashes{{Path: "/tmp/out", Hashes: []ArtifactHash{{Algorithm: "blake3", Digest: "out1"}}, Size: 10}}

	jobID, _, err := s.RecordJob(ctx, sess.ID, RecordJobInput{
		Command:   "python train.py",
		StartedAt: time.Now(),
		Inputs:    inputs,
		Outputs:   outputs,
	})
	require.NoError(t, err)

	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 1, job.StepNumber)
	assert.Equal(t, "train.py", job.Script)

	gotInputs, err := s.GetInputs(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, gotInputs, 1)
	assert.Equal(t, "/tmp/in", gotInputs[0].Path)

	gotOutputs, err := s.GetOutputs(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, gotOutputs, 1)
	assert.Equal(t, "/tmp/out", gotOutputs[0].Path)

	jobID2, _, err := s.RecordJob(ctx, sess.ID, RecordJobInput{
		Command:   "python eval.py",
		StartedAt: time.Now(),
	})
	require.NoError(t, err)
	job2, err := s.GetJob(ctx, jobID2)
	require.NoError(t, err)
	assert.Equal(t, 2, job2.StepNumber)
}

func TestCreateSession_DeactivatesPrevious(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.CreateSession(ctx, "/repo/.roar", "/repo", "c1", true)
	require.NoError(t, err)

	second, err := s.CreateSession(ctx, "/repo/.roar", "/repo", "c2", true)
	require.NoError(t, err)

	active, err := s.GetActiveSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestCleanupOrphanedArtifacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.PutArtifact(ctx, []ArtifactHash{{Algorithm: "sha256", Digest: "orphan"}}, 1, "", "", "")
	require.NoError(t, err)

	removed, err := s.CleanupOrphanedArtifacts(ctx, []string{id})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	art, err := s.getArtifact(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, art)
}
