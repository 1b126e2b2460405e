// Package pkgcollect resolves observed paths and commands to the OS and
// language packages that own them (spec §4.7).
package pkgcollect

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// dpkgTimeout and dpkgVersionTimeout bound the two batched dpkg queries
// (spec §4.7's "fixed timeouts (2-5s)").
const (
	dpkgTimeout = 5 * time.Second
)

// buildToolCommands is the fixed set spec §4.7 names for the dpkg build
// variant.
var buildToolCommands = map[string]bool{
	"cmake": true, "gcc": true, "g++": true, "cc": true, "c++": true,
	"make": true, "gmake": true, "ninja": true, "meson": true,
	"rustc": true, "cargo": true, "nvcc": true, "ar": true, "ld": true,
	"as": true, "ranlib": true, "strip": true, "pkg-config": true,
	"autoconf": true, "automake": true, "libtool": true, "nasm": true,
}

// buildPipCommands is the fixed set for the pip build variant.
var buildPipCommands = map[string]bool{
	"uv": true, "pip": true, "pip3": true, "setuptools": true,
	"maturin": true, "hatch": true, "flit": true, "poetry": true,
	"pdm": true, "pipx": true,
}

// Process is the minimal process-tree shape the collectors need: a
// resolved executable path and basename.
type Process struct {
	ResolvedPath string
	Basename     string
}

// Collector resolves packages from paths observed during a run.
type Collector struct {
	// RunDpkg executes `dpkg -S` / `dpkg -s` style batched lookups; split
	// out so tests can stub it without invoking a real subprocess.
	RunDpkg func(ctx context.Context, args []string) (string, error)
}

func New() *Collector {
	return &Collector{RunDpkg: runDpkgCommand}
}

func runDpkgCommand(ctx context.Context, args []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dpkgTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "dpkg", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		// §4.7: "tolerate non-zero exit by degrading to empty ... never
		// fails the run."
		return out.String(), nil
	}
	return out.String(), nil
}

// UsedPip unions the sidecar's reported used_packages with package names
// the classifier resolved for observed paths.
func UsedPip(sidecarUsedPackages []string, classifiedPackages map[string]string) []string {
	seen := make(map[string]bool, len(sidecarUsedPackages)+len(classifiedPackages))
	var out []string
	add := func(name string) {
		if name == "" || name == "unknown" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, p := range sidecarUsedPackages {
		add(p)
	}
	for p := range classifiedPackages {
		add(p)
	}
	return out
}

// OSPackages maps every observed shared-library path not already
// attributed to pip or the interpreter prefix to an OS package name and
// version, via two batched dpkg calls (spec §4.7).
func (c *Collector) OSPackages(ctx context.Context, libPaths []string, pipPackages map[string]bool, interpreterPrefix string) map[string]string {
	candidates := make([]string, 0, len(libPaths))
	for _, p := range libPaths {
		if pipPackages[p] {
			continue
		}
		if interpreterPrefix != "" && strings.HasPrefix(p, interpreterPrefix) {
			continue
		}
		candidates = append(candidates, p)
	}
	if len(candidates) == 0 {
		return nil
	}

	pathToPkg := c.dpkgSearchFiles(ctx, candidates)
	if len(pathToPkg) == 0 {
		return nil
	}

	pkgNames := make([]string, 0, len(pathToPkg))
	seen := map[string]bool{}
	for _, pkg := range pathToPkg {
		if !seen[pkg] {
			seen[pkg] = true
			pkgNames = append(pkgNames, pkg)
		}
	}
	pkgToVersion := c.dpkgQueryVersions(ctx, pkgNames)

	result := make(map[string]string, len(pkgNames))
	for _, pkg := range pkgNames {
		result[pkg] = pkgToVersion[pkg]
	}
	return result
}

// dpkgSearchFiles runs one batched `dpkg -S` over all candidate paths and
// parses "package: /path" lines.
func (c *Collector) dpkgSearchFiles(ctx context.Context, paths []string) map[string]string {
	out, err := c.RunDpkg(ctx, append([]string{"-S"}, paths...))
	if err != nil || out == "" {
		return nil
	}
	result := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		idx := strings.Index(line, ": ")
		if idx < 0 {
			continue
		}
		pkg := strings.TrimSpace(line[:idx])
		path := strings.TrimSpace(line[idx+2:])
		// dpkg -S can report "pkg1, pkg2: /path" for diverted files; take
		// the first package name.
		if comma := strings.Index(pkg, ","); comma >= 0 {
			pkg = strings.TrimSpace(pkg[:comma])
		}
		result[path] = pkg
	}
	return result
}

// dpkgQueryVersions runs one batched `dpkg -s` over all package names and
// parses "Version: x.y.z" stanzas.
func (c *Collector) dpkgQueryVersions(ctx context.Context, pkgs []string) map[string]string {
	out, err := c.RunDpkg(ctx, append([]string{"-s"}, pkgs...))
	if err != nil || out == "" {
		return nil
	}
	result := map[string]string{}
	var currentPkg string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "Package:"):
			currentPkg = strings.TrimSpace(strings.TrimPrefix(line, "Package:"))
		case strings.HasPrefix(line, "Version:") && currentPkg != "":
			result[currentPkg] = strings.TrimSpace(strings.TrimPrefix(line, "Version:"))
		}
	}
	return result
}

// BuildToolProcesses filters a process tree down to the fixed dpkg-owned
// build-tool set, excluding anything resolved under the interpreter
// prefix or site-packages (spec §4.7).
func BuildToolProcesses(procs []Process, interpreterPrefix string) []Process {
	return filterByNameSet(procs, buildToolCommands, interpreterPrefix, true)
}

// BuildPipProcesses filters a process tree down to the fixed pip-build
// tool set, restricted to paths INSIDE the interpreter prefix or
// site-packages (spec §4.7) -- the opposite restriction of
// BuildToolProcesses.
func BuildPipProcesses(procs []Process, interpreterPrefix string) []Process {
	return filterByNameSet(procs, buildPipCommands, interpreterPrefix, false)
}

// BuildToolPackages resolves the build-tool process set (cmake, gcc, make,
// ...) to the dpkg packages that own them, via the same batched `dpkg -S` /
// `dpkg -s` calls OSPackages uses. This is the "build-tool-dpkg" collector
// spec §4.7 names.
func (c *Collector) BuildToolPackages(ctx context.Context, procs []Process, interpreterPrefix string) map[string]string {
	filtered := BuildToolProcesses(procs, interpreterPrefix)
	if len(filtered) == 0 {
		return nil
	}
	paths := make([]string, 0, len(filtered))
	for _, p := range filtered {
		paths = append(paths, p.ResolvedPath)
	}
	pathToPkg := c.dpkgSearchFiles(ctx, paths)
	if len(pathToPkg) == 0 {
		return nil
	}
	pkgNames := make([]string, 0, len(pathToPkg))
	seen := map[string]bool{}
	for _, pkg := range pathToPkg {
		if !seen[pkg] {
			seen[pkg] = true
			pkgNames = append(pkgNames, pkg)
		}
	}
	pkgToVersion := c.dpkgQueryVersions(ctx, pkgNames)
	result := make(map[string]string, len(pkgNames))
	for _, pkg := range pkgNames {
		result[pkg] = pkgToVersion[pkg]
	}
	return result
}

// BuildPipPackages resolves the pip-build process set (uv, pip, poetry,
// ...) to the installed-package versions the sidecar already reported for
// them. This is the "build-pip" collector spec §4.7 names.
func BuildPipPackages(procs []Process, interpreterPrefix string, installedVersions map[string]string) map[string]string {
	filtered := BuildPipProcesses(procs, interpreterPrefix)
	if len(filtered) == 0 {
		return nil
	}
	result := make(map[string]string, len(filtered))
	for _, p := range filtered {
		result[filepath.Base(p.Basename)] = installedVersions[filepath.Base(p.Basename)]
	}
	return result
}

func filterByNameSet(procs []Process, names map[string]bool, interpreterPrefix string, excludeInsidePrefix bool) []Process {
	var out []Process
	for _, p := range procs {
		base := filepath.Base(p.Basename)
		if !names[base] {
			continue
		}
		inside := interpreterPrefix != "" && strings.HasPrefix(p.ResolvedPath, interpreterPrefix)
		inSitePackages := strings.Contains(p.ResolvedPath, "site-packages")
		if excludeInsidePrefix && (inside || inSitePackages) {
			continue
		}
		if !excludeInsidePrefix && !(inside || inSitePackages) {
			continue
		}
		out = append(out, p)
	}
	return out
}
