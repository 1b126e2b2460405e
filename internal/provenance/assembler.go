package provenance

import "github.com/roar-ml/roar/internal/runtimeinfo"

// GitInfo mirrors the executables.code.git block of spec §4.9.
type GitInfo struct {
	Commit    string `json:"commit"`
	Branch    string `json:"branch,omitempty"`
	RemoteURL string `json:"remote_url,omitempty"`
	Clean     bool   `json:"clean"`
}

// Packages is the executables.packages block.
type Packages struct {
	Pip       map[string]string `json:"pip,omitempty"`
	Dpkg      map[string]string `json:"dpkg,omitempty"`
	BuildDpkg map[string]string `json:"build_dpkg,omitempty"`
	BuildPip  map[string]string `json:"build_pip,omitempty"`
}

// Record is the full per-job provenance record spec §4.9 lays out. It is
// marshaled verbatim into Job.Metadata.
type Record struct {
	RepoRoot      string                     `json:"repo_root"`
	Git           GitInfo                    `json:"git"`
	Packages      Packages                   `json:"packages"`
	UnmanagedCode []string                   `json:"unmanaged_code,omitempty"`
	ReadFiles     []string                   `json:"read_files,omitempty"`
	WrittenFiles  []string                   `json:"written_files,omitempty"`
	Processes     []*ProcessNode             `json:"processes,omitempty"`
	Runtime       runtimeinfo.Info           `json:"runtime"`
	Analysis      map[string]*TrackerFinding `json:"analysis,omitempty"`
}

// Assemble builds the final record from already-classified/filtered
// inputs; callers are expected to have run FilterReads/FilterWrites and
// RemoveRepoCode first.
func Assemble(
	repoRoot string,
	git GitInfo,
	packages Packages,
	unmanagedCode []string,
	readFiles []string,
	writtenFiles []string,
	procs []ProcessObservation,
	rt runtimeinfo.Info,
) Record {
	rec := Record{
		RepoRoot:      repoRoot,
		Git:           git,
		Packages:      packages,
		UnmanagedCode: unmanagedCode,
		ReadFiles:     readFiles,
		WrittenFiles:  writtenFiles,
		Processes:     SummarizeProcessTree(procs),
		Runtime:       rt,
		Analysis:      map[string]*TrackerFinding{},
	}
	if finding := AnalyzeExperimentTrackers(writtenFiles, rt.EnvVars); finding != nil {
		rec.Analysis["experiment_tracking"] = finding
	}
	return rec
}
