// Package reproduce builds a reproduction plan from a remote pipeline's
// DAG and renders the preview / install-command output `roar reproduce`
// shows, per spec §6.
package reproduce

import (
	"fmt"
	"strings"
)

// PackageSpec is one package name + exact recorded version.
type PackageSpec struct {
	Name    string
	Version string
}

// StepSpec is one pipeline step to replay, in dependency order.
type StepSpec struct {
	StepNumber int
	Command    string
}

// Plan is everything `roar reproduce` needs to preview or execute a
// reproduction.
type Plan struct {
	ArtifactHash string
	GitRepo      string
	GitCommit    string
	GitBranch    string
	Pip          []PackageSpec
	Dpkg         []PackageSpec
	BuildDpkg    []PackageSpec
	BuildPip     []PackageSpec
	Steps        []StepSpec
}

// Options mirrors the CLI flags spec §6 names for `roar reproduce`.
type Options struct {
	Run               bool
	AutoConfirm       bool
	DpkgAnyVersion    bool
	PipAnyVersion     bool
	PackageSync       bool
	ListRequirements  bool
	OutFile           string
}

// Preview renders the human-readable preview: artifact hash, git info,
// build/run steps, and packages to install (spec §6).
func Preview(plan Plan, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Artifact: %s\n", plan.ArtifactHash)
	fmt.Fprintf(&b, "Git: %s @ %s (%s)\n", plan.GitRepo, shortHash(plan.GitCommit), plan.GitBranch)

	fmt.Fprintf(&b, "\nSteps:\n")
	for _, s := range plan.Steps {
		fmt.Fprintf(&b, "  @%d %s\n", s.StepNumber, s.Command)
	}

	writePackageSection(&b, "Build tools (dpkg)", plan.BuildDpkg, opts.ListRequirements)
	writePackageSection(&b, "Build tools (pip)", plan.BuildPip, opts.ListRequirements)
	writePackageSection(&b, "Python packages (pip)", plan.Pip, opts.ListRequirements)
	if opts.PackageSync {
		writePackageSection(&b, "System packages (dpkg)", plan.Dpkg, opts.ListRequirements)
	}

	return b.String()
}

const previewPackageLimit = 10

func writePackageSection(b *strings.Builder, title string, pkgs []PackageSpec, listAll bool) {
	if len(pkgs) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s (%d):\n", title, len(pkgs))
	limit := len(pkgs)
	if !listAll && limit > previewPackageLimit {
		limit = previewPackageLimit
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(b, "  %s==%s\n", pkgs[i].Name, pkgs[i].Version)
	}
	if limit < len(pkgs) {
		fmt.Fprintf(b, "  ... and %d more (use --list-requirements to see all)\n", len(pkgs)-limit)
	}
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

// PipInstallArgs builds the `pip install` argument list for a package
// set, falling back to unpinned names when anyVersion is set.
func PipInstallArgs(pkgs []PackageSpec, anyVersion bool) []string {
	args := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		if anyVersion {
			args = append(args, p.Name)
		} else {
			args = append(args, fmt.Sprintf("%s==%s", p.Name, p.Version))
		}
	}
	return args
}

// DpkgInstallArgs builds the `apt-get install` argument list, falling
// back to unpinned names when anyVersion is set (dpkg's pinned syntax is
// "name=version").
func DpkgInstallArgs(pkgs []PackageSpec, anyVersion bool) []string {
	args := make([]string, 0, len(pkgs))
	for _, p := range pkgs {
		if anyVersion || p.Version == "" {
			args = append(args, p.Name)
		} else {
			args = append(args, fmt.Sprintf("%s=%s", p.Name, p.Version))
		}
	}
	return args
}

// CloneCommand builds the git command to check out the recorded commit,
// step 1 of the --run reproduction sequence spec §6 documents.
func CloneCommand(plan Plan, destDir string) []string {
	return []string{"git", "clone", plan.GitRepo, destDir}
}

// CheckoutCommand pins the clone to the recorded commit.
func CheckoutCommand(plan Plan) []string {
	return []string{"git", "checkout", plan.GitCommit}
}
