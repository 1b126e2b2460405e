// Package provenance assembles the per-job provenance record (spec §4.9):
// noise-filtered code/data paths, a process-tree summary, the runtime
// collector's output, and analyzer findings.
package provenance

import "strings"

// NoiseConfig toggles each noise filter spec §4.9 names.
type NoiseConfig struct {
	FilterSystemReads  bool
	FilterTorchCache   bool
	FilterPackageReads bool
	FilterTempFiles    bool
	FilterWriteNoise   bool
	StrictCleanup      bool // when true, FilterTempFiles does NOT apply
}

// DefaultNoiseConfig enables every filter, matching the documented
// default toggles.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		FilterSystemReads:  true,
		FilterTorchCache:   true,
		FilterPackageReads: true,
		FilterTempFiles:    true,
		FilterWriteNoise:   true,
	}
}

var systemReadPrefixes = []string{
	"/sys/", "/etc/", "/sbin/", "/proc/", "/dev/", "/usr/", "/opt/", "/lib/", "/lib64/",
}

var torchCachePatterns = []string{"/tmp/torchinductor_", "/tmp/torch_", "/tmp/triton"}

var writeNoisePrefixes = []string{
	"/dev", "/proc", "/sys", "/dev/shm", "/usr/local", "/usr/lib",
	"/usr/share", "/opt", "/etc", "/lib", "/lib64", "/tmp",
}

// ClassifiedPath is enough information for the read/write filters to make
// a decision without re-deriving it from the classifier.
type ClassifiedPath struct {
	Path              string
	InSitePackages    bool
	UnderInterpreter  bool
	UnderStdlibPrefix bool
}

// FilterReads drops noise from a set of observed reads per spec §4.9's
// read-side filters (system prefixes, torch cache, package reads, temp
// files unless strict cleanup is on).
func FilterReads(cfg NoiseConfig, paths []ClassifiedPath) []string {
	var out []string
	for _, p := range paths {
		if cfg.FilterSystemReads && hasAnyPrefix(p.Path, systemReadPrefixes) {
			continue
		}
		if cfg.FilterTorchCache && hasAnyPrefix(p.Path, torchCachePatterns) {
			continue
		}
		if cfg.FilterPackageReads && (p.InSitePackages || p.UnderInterpreter || p.UnderStdlibPrefix) {
			continue
		}
		if cfg.FilterTempFiles && !cfg.StrictCleanup && strings.HasPrefix(p.Path, "/tmp/") {
			continue
		}
		out = append(out, p.Path)
	}
	return out
}

// FilterWrites drops noise from a set of observed writes: the fixed
// prefix list, any .pyc, and anything under .roar/ (spec §4.9).
func FilterWrites(cfg NoiseConfig, paths []string) []string {
	var out []string
	for _, p := range paths {
		if cfg.FilterWriteNoise && hasAnyPrefix(p, writeNoisePrefixes) {
			continue
		}
		if strings.HasSuffix(p, ".pyc") {
			continue
		}
		if strings.Contains(p, "/.roar/") {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RemoveRepoCode drops paths already reported as repo code from a read
// set, per spec §4.9 ("read_files ... with repo code removed").
func RemoveRepoCode(reads []string, repoFiles []string) []string {
	repo := make(map[string]bool, len(repoFiles))
	for _, f := range repoFiles {
		repo[f] = true
	}
	var out []string
	for _, r := range reads {
		if !repo[r] {
			out = append(out, r)
		}
	}
	return out
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
