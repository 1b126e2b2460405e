package reproduce

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPlan() Plan {
	return Plan{
		ArtifactHash: "abcd1234efgh5678",
		GitRepo:      "https://github.com/example/pipeline.git",
		GitCommit:    "1234567890abcdef",
		GitBranch:    "main",
		Pip: []PackageSpec{
			{Name: "numpy", Version: "1.26.0"},
			{Name: "torch", Version: "2.1.0"},
		},
		BuildDpkg: []PackageSpec{{Name: "gcc", Version: "4:12.2.0-3"}},
		Steps: []StepSpec{
			{StepNumber: 1, Command: "python preprocess.py"},
			{StepNumber: 2, Command: "python train.py"},
		},
	}
}

func TestPreview_IncludesStepsAndPackages(t *testing.T) {
	out := Preview(testPlan(), Options{})
	assert.Contains(t, out, "abcd1234efgh5678")
	assert.Contains(t, out, "1234567")
	assert.Contains(t, out, "@1 python preprocess.py")
	assert.Contains(t, out, "@2 python train.py")
	assert.Contains(t, out, "numpy==1.26.0")
	assert.Contains(t, out, "gcc==4:12.2.0-3")
}

func TestPreview_OmitsDpkgSectionWithoutPackageSync(t *testing.T) {
	plan := testPlan()
	plan.Dpkg = []PackageSpec{{Name: "libssl-dev", Version: "3.0.2-0ubuntu1"}}
	out := Preview(plan, Options{PackageSync: false})
	assert.NotContains(t, out, "libssl-dev")

	out = Preview(plan, Options{PackageSync: true})
	assert.Contains(t, out, "libssl-dev")
}

func TestWritePackageSection_TruncatesWithoutListRequirements(t *testing.T) {
	pkgs := make([]PackageSpec, 15)
	for i := range pkgs {
		pkgs[i] = PackageSpec{Name: "pkg", Version: "1.0"}
	}
	plan := Plan{Pip: pkgs}

	out := Preview(plan, Options{ListRequirements: false})
	assert.Contains(t, out, "... and 5 more")
	assert.Equal(t, 10, strings.Count(out, "pkg==1.0"))

	full := Preview(plan, Options{ListRequirements: true})
	assert.NotContains(t, full, "... and")
	assert.Equal(t, 15, strings.Count(full, "pkg==1.0"))
}

func TestPipInstallArgs_PinnedAndAnyVersion(t *testing.T) {
	pkgs := []PackageSpec{{Name: "numpy", Version: "1.26.0"}}
	assert.Equal(t, []string{"numpy==1.26.0"}, PipInstallArgs(pkgs, false))
	assert.Equal(t, []string{"numpy"}, PipInstallArgs(pkgs, true))
}

func TestDpkgInstallArgs_PinnedAndAnyVersion(t *testing.T) {
	pkgs := []PackageSpec{{Name: "gcc", Version: "4:12.2.0-3"}}
	assert.Equal(t, []string{"gcc=4:12.2.0-3"}, DpkgInstallArgs(pkgs, false))
	assert.Equal(t, []string{"gcc"}, DpkgInstallArgs(pkgs, true))

	noVersion := []PackageSpec{{Name: "make", Version: ""}}
	assert.Equal(t, []string{"make"}, DpkgInstallArgs(noVersion, false))
}

func TestCloneAndCheckoutCommand(t *testing.T) {
	plan := testPlan()
	assert.Equal(t, []string{"git", "clone", plan.GitRepo, "/tmp/out"}, CloneCommand(plan, "/tmp/out"))
	assert.Equal(t, []string{"git", "checkout", plan.GitCommit}, CheckoutCommand(plan))
}
