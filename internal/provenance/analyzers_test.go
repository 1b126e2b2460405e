package provenance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeExperimentTrackers_NoneDetected(t *testing.T) {
	assert.Nil(t, AnalyzeExperimentTrackers([]string{"/data/out.csv"}, nil))
}

func TestAnalyzeExperimentTrackers_DetectsWandb(t *testing.T) {
	finding := AnalyzeExperimentTrackers([]string{"/repo/wandb/run-20240101_120000-abc123/files/config.yaml"}, nil)
	require.NotNil(t, finding)
	assert.Contains(t, finding.TrackersDetected, "wandb")
	assert.Contains(t, finding.IgnorePatterns, "wandb/*")
	require.Len(t, finding.Runs, 1)
	assert.Equal(t, "wandb", finding.Runs[0].Tracker)
}

func TestAnalyzeExperimentTrackers_MultipleTrackers(t *testing.T) {
	finding := AnalyzeExperimentTrackers([]string{
		"/repo/mlruns/0/abc/meta.yaml",
		"/repo/wandb/run-1/files/out.json",
	}, nil)
	require.NotNil(t, finding)
	assert.ElementsMatch(t, []string{"mlflow", "wandb"}, finding.TrackersDetected)
}
