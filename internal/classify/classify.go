// Package classify implements the ten-rule file classifier of spec §4.6:
// every path observed by the tracer is bucketed into repo/package/stdlib/
// system/unmanaged/external/skip.
package classify

import (
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Class is one of the classifier's output buckets.
type Class string

const (
	ClassRepo      Class = "repo"
	ClassPackage   Class = "package"
	ClassStdlib    Class = "stdlib"
	ClassSystem    Class = "system"
	ClassUnmanaged Class = "unmanaged"
	ClassExternal  Class = "external"
	ClassSkip      Class = "skip"
)

// Result is the classifier's verdict for one path.
type Result struct {
	Class   Class
	Package string // populated when Class == ClassPackage; "unknown" if not resolved to a name
}

// systemLibDirs is the fixed list from spec §4.6 rule 6.
var systemLibDirs = []string{"/usr/lib", "/lib", "/usr/lib64", "/lib64", "/usr/local/lib"}

// systemPrefixes is the fixed list from spec §4.6 rule 9.
var systemPrefixes = []string{"/usr/lib", "/lib", "/usr/share", "/etc", "/usr/local/lib", "/opt"}

// Context bundles everything the classifier needs to know about the
// environment it's classifying paths within.
type Context struct {
	// SidecarInjectDir is the directory the Python sidecar was injected
	// into; paths under it are noise (rule 1).
	SidecarInjectDir string
	// GitRepoRoot is the root of the repository the traced command ran in.
	GitRepoRoot string
	// IsTracked reports whether a repo-relative path is tracked by git.
	IsTracked func(path string) bool
	// InVenv reports whether a path under GitRepoRoot is inside a virtualenv
	// (and therefore not treated as "repo" even though it's under the root).
	InVenv func(path string) bool
	// InstalledFiles maps an exact path to the package name that owns it
	// (rule 4), e.g. from a pip RECORD file or dpkg -S.
	InstalledFiles map[string]string
	// InterpreterBasePrefix is sys.base_prefix (rule 7/8).
	InterpreterBasePrefix string
	// InterpreterPrefix is sys.prefix (rule 8), may differ from
	// InterpreterBasePrefix inside a venv.
	InterpreterPrefix string
	// PathExists allows tests to stub file existence; nil means os.Stat.
	PathExists func(path string) bool
}

func (c *Context) exists(path string) bool {
	if c.PathExists != nil {
		return c.PathExists(path)
	}
	_, err := os.Stat(path)
	return err == nil
}

// Classify applies the ten ordered rules of spec §4.6, stopping at the
// first match.
func Classify(ctx *Context, path string) Result {
	// Rule 1: missing, or inside the sidecar injection directory.
	if !ctx.exists(path) {
		return Result{Class: ClassSkip}
	}
	if ctx.SidecarInjectDir != "" && underDir(path, ctx.SidecarInjectDir) {
		return Result{Class: ClassSkip}
	}

	// Rule 2: /dev or /proc.
	if strings.HasPrefix(path, "/dev/") || strings.HasPrefix(path, "/proc/") {
		return Result{Class: ClassExternal}
	}

	// Rule 3: under the repo root, not in a venv, not in site-packages.
	if ctx.GitRepoRoot != "" && underDir(path, ctx.GitRepoRoot) && !inSitePackages(path) {
		inVenv := ctx.InVenv != nil && ctx.InVenv(path)
		if !inVenv {
			tracked := ctx.IsTracked != nil && ctx.IsTracked(path)
			if tracked {
				return Result{Class: ClassRepo}
			}
			return Result{Class: ClassUnmanaged}
		}
	}

	// Rule 4: exact match in a package's installed-file manifest.
	if pkg, ok := ctx.InstalledFiles[path]; ok {
		return Result{Class: ClassPackage, Package: pkg}
	}

	// Rule 5: contains site-packages.
	if inSitePackages(path) {
		return Result{Class: ClassPackage, Package: "unknown"}
	}

	// Rule 6: shared library under a system library directory.
	if isSharedLibrary(path) && underAnyDir(path, systemLibDirs) {
		return Result{Class: ClassSystem}
	}

	// Rule 7: under interpreter base prefix, not site-packages.
	if ctx.InterpreterBasePrefix != "" && underDir(path, ctx.InterpreterBasePrefix) {
		return Result{Class: ClassStdlib}
	}

	// Rule 8: under interpreter current prefix.
	if ctx.InterpreterPrefix != "" && underDir(path, ctx.InterpreterPrefix) {
		return Result{Class: ClassPackage, Package: "unknown"}
	}

	// Rule 9: fixed system prefixes, or a .so under any of them.
	if underAnyDir(path, systemPrefixes) {
		return Result{Class: ClassSystem}
	}
	if isSharedLibrary(path) {
		for _, dir := range systemPrefixes {
			if underDir(path, dir) {
				return Result{Class: ClassSystem}
			}
		}
	}

	// Rule 10: default.
	return Result{Class: ClassUnmanaged}
}

func underDir(path, dir string) bool {
	if dir == "" {
		return false
	}
	dir = strings.TrimRight(dir, "/")
	return path == dir || strings.HasPrefix(path, dir+"/")
}

func underAnyDir(path string, dirs []string) bool {
	for _, d := range dirs {
		if underDir(path, d) {
			return true
		}
	}
	return false
}

func inSitePackages(path string) bool {
	ok, _ := doublestar.Match("**/site-packages/**", strings.TrimPrefix(path, "/"))
	return ok || strings.Contains(path, "/site-packages/") || strings.Contains(path, "/site-packages")
}

func isSharedLibrary(path string) bool {
	base := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		base = path[idx+1:]
	}
	return strings.Contains(base, ".so")
}

// Stats is the histogram output of a classification pass (spec §4.6:
// "a stats histogram").
type Stats map[Class]int

// Outputs is the four derived outputs spec §4.6 calls for: repo files,
// the package-to-version map (populated by the caller once versions are
// known), unmanaged files, and the stats histogram.
type Outputs struct {
	RepoFiles       []string
	PackageVersions map[string]string
	UnmanagedFiles  []string
	Stats           Stats
}

// ClassifyAll classifies a batch of paths and assembles the derived
// outputs. Package version lookup is left to the caller (package
// collectors resolve names to versions); this only tracks which package
// names were seen.
func ClassifyAll(ctx *Context, paths []string) (map[string]Result, Outputs) {
	results := make(map[string]Result, len(paths))
	out := Outputs{PackageVersions: map[string]string{}, Stats: Stats{}}
	for _, p := range paths {
		r := Classify(ctx, p)
		results[p] = r
		out.Stats[r.Class]++
		switch r.Class {
		case ClassRepo:
			out.RepoFiles = append(out.RepoFiles, p)
		case ClassUnmanaged:
			out.UnmanagedFiles = append(out.UnmanagedFiles, p)
		case ClassPackage:
			if _, ok := out.PackageVersions[r.Package]; !ok {
				out.PackageVersions[r.Package] = ""
			}
		}
	}
	return results, out
}
