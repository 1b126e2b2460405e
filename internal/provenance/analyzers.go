package provenance

import (
	"sort"
	"strings"
)

// trackerPatterns maps a tracker name to the path substrings that signal
// its use among written files (spec §4.9's "analysis" block).
var trackerPatterns = map[string][]string{
	"wandb":       {"wandb/", ".wandb"},
	"mlflow":      {"mlruns/", "mlartifacts/"},
	"neptune":     {".neptune/"},
	"tensorboard": {"/runs/", "events.out.tfevents"},
}

// TrackerFinding is one analyzer's output, matching the original's
// {trackers_detected, runs, ignore_patterns} shape.
type TrackerFinding struct {
	TrackersDetected []string  `json:"trackers_detected"`
	Runs             []RunInfo `json:"runs,omitempty"`
	IgnorePatterns   []string  `json:"ignore_patterns,omitempty"`
}

// RunInfo is the per-tracker run metadata extracted from written files.
type RunInfo struct {
	Tracker string `json:"tracker"`
	RunDir  string `json:"run_dir,omitempty"`
	RunURL  string `json:"run_url,omitempty"`
}

// AnalyzeExperimentTrackers detects experiment-tracker usage from the
// written-files set, the way analyzers/experiment_trackers.py does.
func AnalyzeExperimentTrackers(written []string, env map[string]string) *TrackerFinding {
	found := map[string]bool{}
	for _, path := range written {
		for tracker, patterns := range trackerPatterns {
			if containsAny(path, patterns) {
				found[tracker] = true
			}
		}
	}
	if len(found) == 0 {
		return nil
	}

	result := &TrackerFinding{}
	for tracker := range found {
		result.TrackersDetected = append(result.TrackersDetected, tracker)
	}
	sort.Strings(result.TrackersDetected)

	for _, tracker := range result.TrackersDetected {
		if info := extractRunInfo(tracker, written, env); info != nil {
			result.Runs = append(result.Runs, *info)
		}
	}

	ignore := map[string]bool{}
	if found["wandb"] {
		ignore["wandb/*"] = true
		ignore["*.wandb"] = true
	}
	if found["mlflow"] {
		ignore["mlruns/*"] = true
		ignore["mlartifacts/*"] = true
	}
	if found["neptune"] {
		ignore[".neptune/*"] = true
	}
	for p := range ignore {
		result.IgnorePatterns = append(result.IgnorePatterns, p)
	}
	sort.Strings(result.IgnorePatterns)

	return result
}

func extractRunInfo(tracker string, written []string, env map[string]string) *RunInfo {
	switch tracker {
	case "wandb":
		return extractTrackerDir("wandb", "wandb/", written)
	case "mlflow":
		return extractTrackerDir("mlflow", "mlruns/", written)
	case "neptune":
		return extractTrackerDir("neptune", ".neptune/", written)
	default:
		return nil
	}
}

// extractTrackerDir finds the first written path under the tracker's
// directory marker and reports that directory as the run location. The
// reference implementation resolves a `latest-run` symlink or picks the
// most recent `run-*` subdirectory on disk; roar leaves that filesystem
// probe to the caller and only locates the candidate directory here.
func extractTrackerDir(tracker, marker string, written []string) *RunInfo {
	for _, path := range written {
		idx := strings.Index(path, marker)
		if idx < 0 {
			continue
		}
		return &RunInfo{Tracker: tracker, RunDir: path[:idx+len(marker)]}
	}
	return nil
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
