package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roar-ml/roar/internal/store"
)

func TestStepsTable_MarksStaleSteps(t *testing.T) {
	jobs := []store.Job{
		{StepNumber: 1, JobType: store.JobTypeRun, Command: "python train.py", ExitCode: 0},
		{StepNumber: 2, JobType: store.JobTypeRun, Command: "python eval.py", ExitCode: 1},
	}
	out := StepsTable(jobs, map[int]bool{2: true}, true)
	assert.Contains(t, out, "train.py")
	assert.Contains(t, out, "STALE")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hell…", truncate("hello world", 5))
}

func TestDAGTree_RendersNestedStructure(t *testing.T) {
	root := &DAGNode{
		Job: store.Job{StepNumber: 1, Command: "python preprocess.py"},
		Children: []*DAGNode{
			{Job: store.Job{StepNumber: 2, Command: "python train.py"}},
		},
	}
	out := DAGTree([]*DAGNode{root}, false, nil)
	assert.Contains(t, out, "@1 python preprocess.py")
	assert.Contains(t, out, "@2 python train.py")
}

func TestSessionStatus_RendersHashAndRange(t *testing.T) {
	s := store.Session{
		Hash: "abcd1234", Active: true, CreatedAt: time.Now(),
		GitRepo: "/repo", GitCommitStart: "aaaaaaaaaaaa", GitCommitEnd: "bbbbbbbbbbbb",
	}
	out := SessionStatus(s, 3)
	assert.Contains(t, out, "abcd1234")
	assert.Contains(t, out, "aaaaaaa..bbbbbbb")
}

func TestLineageTree_RendersBothSides(t *testing.T) {
	lineage := store.Lineage{
		ProducedBy: []store.Job{{StepNumber: 1, Command: "python preprocess.py"}},
		ConsumedBy: []store.Job{{StepNumber: 2, Command: "python train.py"}},
	}
	out := LineageTree("artifact123", lineage)
	assert.Contains(t, out, "produced by")
	assert.Contains(t, out, "consumed by")
	assert.Contains(t, out, "@1 python preprocess.py")
}
