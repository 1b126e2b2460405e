package ingest

import (
	"encoding/json"
	"math"
	"os"

	"github.com/roar-ml/roar/internal/provenance"
	"github.com/roar-ml/roar/internal/rerr"
)

// TracerLog is the normalized primary tracer output.
type TracerLog struct {
	OpenedFiles  []string
	ReadFiles    []string
	WrittenFiles []string
	Processes    []provenance.ProcessObservation
	StartTime    float64
	EndTime      float64
}

// Duration implements spec §4.5's `duration = max(0, end - start)`.
func (t TracerLog) Duration() float64 {
	return math.Max(0, t.EndTime-t.StartTime)
}

// SidecarLog is the normalized optional Python sidecar output. Any field
// may be zero-valued if the sidecar never ran or its log was malformed.
type SidecarLog struct {
	ModulesFiles       []string
	EnvReads           map[string]string
	SysPrefix          string
	SysBasePrefix      string
	RoarInjectDir      string
	SharedLibs         []string
	UsedPackages       map[string]string
	InstalledPackages  map[string]string
}

type rawTracerLog struct {
	OpenedFiles  []string `json:"opened_files"`
	ReadFiles    []string `json:"read_files"`
	WrittenFiles []string `json:"written_files"`
	Processes    []struct {
		PID       int               `json:"pid"`
		ParentPID int               `json:"parent_pid"`
		Command   []string          `json:"command"`
		Env       map[string]string `json:"env"`
	} `json:"processes"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// LoadTracerLog reads, schema-validates, and normalizes the primary
// tracer log, deduplicating each path list while preserving first-seen
// order (spec §4.5).
func LoadTracerLog(path string) (TracerLog, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return TracerLog{}, rerr.Wrap(rerr.KindTracer, "read tracer log", err)
	}
	if _, err := validateAgainst(tracerSchema, body); err != nil {
		return TracerLog{}, err
	}

	var raw rawTracerLog
	if err := json.Unmarshal(body, &raw); err != nil {
		return TracerLog{}, rerr.Wrap(rerr.KindTracer, "decode tracer log", err)
	}

	procs := make([]provenance.ProcessObservation, 0, len(raw.Processes))
	for _, p := range raw.Processes {
		procs = append(procs, provenance.ProcessObservation{
			PID:       p.PID,
			ParentPID: p.ParentPID,
			Command:   joinCommand(p.Command),
		})
	}

	return TracerLog{
		OpenedFiles:  dedupPreserveOrder(raw.OpenedFiles),
		ReadFiles:    dedupPreserveOrder(raw.ReadFiles),
		WrittenFiles: dedupPreserveOrder(raw.WrittenFiles),
		Processes:    procs,
		StartTime:    raw.StartTime,
		EndTime:      raw.EndTime,
	}, nil
}

type rawSidecarLog struct {
	ModulesFiles      []string          `json:"modules_files"`
	EnvReads          map[string]string `json:"env_reads"`
	SysPrefix         string            `json:"sys_prefix"`
	SysBasePrefix     string            `json:"sys_base_prefix"`
	RoarInjectDir     string            `json:"roar_inject_dir"`
	SharedLibs        []string          `json:"shared_libs"`
	UsedPackages      map[string]string `json:"used_packages"`
	InstalledPackages map[string]string `json:"installed_packages"`
}

// LoadSidecarLog reads and validates the optional sidecar log. A missing
// or unparseable file is tolerated: it returns a zero-valued SidecarLog
// and no error, per spec §4.5.
func LoadSidecarLog(path string) SidecarLog {
	body, err := os.ReadFile(path)
	if err != nil {
		return SidecarLog{}
	}
	if _, err := validateAgainst(sidecarSchema, body); err != nil {
		return SidecarLog{}
	}
	var raw rawSidecarLog
	if err := json.Unmarshal(body, &raw); err != nil {
		return SidecarLog{}
	}
	return SidecarLog{
		ModulesFiles:      dedupPreserveOrder(raw.ModulesFiles),
		EnvReads:          raw.EnvReads,
		SysPrefix:         raw.SysPrefix,
		SysBasePrefix:     raw.SysBasePrefix,
		RoarInjectDir:     raw.RoarInjectDir,
		SharedLibs:        dedupPreserveOrder(raw.SharedLibs),
		UsedPackages:      raw.UsedPackages,
		InstalledPackages: raw.InstalledPackages,
	}
}

func dedupPreserveOrder(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func joinCommand(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
