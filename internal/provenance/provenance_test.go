package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterReads_DropsSystemAndTorchCache(t *testing.T) {
	cfg := DefaultNoiseConfig()
	paths := []ClassifiedPath{
		{Path: "/etc/passwd"},
		{Path: "/tmp/torchinductor_abc/foo"},
		{Path: "/data/train.csv"},
	}
	out := FilterReads(cfg, paths)
	assert.Equal(t, []string{"/data/train.csv"}, out)
}

func TestFilterReads_DropsPackageReads(t *testing.T) {
	cfg := DefaultNoiseConfig()
	paths := []ClassifiedPath{
		{Path: "/opt/venv/lib/python3.11/site-packages/numpy/__init__.py", InSitePackages: true},
		{Path: "/data/train.csv"},
	}
	out := FilterReads(cfg, paths)
	assert.Equal(t, []string{"/data/train.csv"}, out)
}

func TestFilterReads_TempFilesKeptUnderStrictCleanup(t *testing.T) {
	cfg := DefaultNoiseConfig()
	cfg.StrictCleanup = true
	paths := []ClassifiedPath{{Path: "/tmp/scratch.bin"}}
	out := FilterReads(cfg, paths)
	assert.Equal(t, []string{"/tmp/scratch.bin"}, out)
}

func TestFilterWrites_DropsNoisePrefixesAndPyc(t *testing.T) {
	cfg := DefaultNoiseConfig()
	out := FilterWrites(cfg, []string{
		"/usr/local/lib/foo",
		"/data/model.bin",
		"/repo/__pycache__/mod.pyc",
		"/repo/.roar/run_1_tracer.json",
	})
	assert.Equal(t, []string{"/data/model.bin"}, out)
}

func TestRemoveRepoCode(t *testing.T) {
	reads := []string{"/repo/train.py", "/data/in.csv"}
	out := RemoveRepoCode(reads, []string{"/repo/train.py"})
	assert.Equal(t, []string{"/data/in.csv"}, out)
}

func TestSummarizeProcessTree_SingleRootNoForks(t *testing.T) {
	procs := []ProcessObservation{
		{PID: 1, ParentPID: 0, Command: "python train.py"},
	}
	tree := SummarizeProcessTree(procs)
	require.Len(t, tree, 1)
	assert.Equal(t, "python train.py", tree[0].Command)
	assert.Equal(t, 0, tree[0].ForkCount)
	assert.Empty(t, tree[0].Children)
}

func TestSummarizeProcessTree_CountsForkOnlyChildren(t *testing.T) {
	procs := []ProcessObservation{
		{PID: 1, ParentPID: 0, Command: "python train.py"},
		{PID: 2, ParentPID: 1, Command: "python train.py"},
		{PID: 3, ParentPID: 1, Command: "python train.py"},
	}
	tree := SummarizeProcessTree(procs)
	require.Len(t, tree, 1)
	assert.Equal(t, 2, tree[0].ForkCount)
	assert.Empty(t, tree[0].Children)
}

func TestSummarizeProcessTree_RecursesIntoDivergentChild(t *testing.T) {
	procs := []ProcessObservation{
		{PID: 1, ParentPID: 0, Command: "bash run.sh"},
		{PID: 2, ParentPID: 1, Command: "python train.py"},
	}
	tree := SummarizeProcessTree(procs)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "python train.py", tree[0].Children[0].Command)
}

func TestSummarizeProcessTree_FlattensForkChainBeforeDivergence(t *testing.T) {
	// bash -> bash (fork) -> bash (fork) -> python (diverges)
	procs := []ProcessObservation{
		{PID: 1, ParentPID: 0, Command: "bash run.sh"},
		{PID: 2, ParentPID: 1, Command: "bash run.sh"},
		{PID: 3, ParentPID: 2, Command: "bash run.sh"},
		{PID: 4, ParentPID: 3, Command: "python train.py"},
	}
	tree := SummarizeProcessTree(procs)
	require.Len(t, tree, 1)
	assert.Equal(t, 2, tree[0].ForkCount)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "python train.py", tree[0].Children[0].Command)
}

func TestSummarizeProcessTree_MultipleRoots(t *testing.T) {
	procs := []ProcessObservation{
		{PID: 5, ParentPID: 1, Command: "a"},
		{PID: 6, ParentPID: 1, Command: "b"},
	}
	tree := SummarizeProcessTree(procs)
	require.Len(t, tree, 2)
	assert.Equal(t, "a", tree[0].Command)
	assert.Equal(t, "b", tree[1].Command)
}
