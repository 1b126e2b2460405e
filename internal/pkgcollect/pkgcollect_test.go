package pkgcollect

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsedPip_UnionsAndDedupes(t *testing.T) {
	out := UsedPip([]string{"numpy", "torch"}, map[string]string{"torch": "pkg", "unknown": "pkg", "requests": "pkg"})
	assert.ElementsMatch(t, []string{"numpy", "torch", "requests"}, out)
}

func TestOSPackages_TwoBatchedCalls(t *testing.T) {
	var calls [][]string
	c := &Collector{
		RunDpkg: func(ctx context.Context, args []string) (string, error) {
			calls = append(calls, args)
			if args[0] == "-S" {
				return "libssl3: /usr/lib/x86_64-linux-gnu/libssl.so.3\n", nil
			}
			return "Package: libssl3\nVersion: 3.0.2-ubuntu\n", nil
		},
	}

	result := c.OSPackages(context.Background(), []string{"/usr/lib/x86_64-linux-gnu/libssl.so.3"}, nil, "/usr")
	require.Len(t, calls, 2)
	assert.Equal(t, "3.0.2-ubuntu", result["libssl3"])
}

func TestOSPackages_SkipsPipAndInterpreterPrefix(t *testing.T) {
	called := false
	c := &Collector{
		RunDpkg: func(ctx context.Context, args []string) (string, error) {
			called = true
			return "", nil
		},
	}
	result := c.OSPackages(context.Background(), []string{"/usr/lib/python3/foo.so"}, nil, "/usr/lib/python3")
	assert.Nil(t, result)
	assert.False(t, called)
}

func TestBuildToolProcesses_FiltersAndExcludesInterpreterPrefix(t *testing.T) {
	procs := []Process{
		{ResolvedPath: "/usr/bin/gcc", Basename: "gcc"},
		{ResolvedPath: "/opt/venv/bin/gcc", Basename: "gcc"},
		{ResolvedPath: "/usr/bin/python3", Basename: "python3"},
	}
	out := BuildToolProcesses(procs, "/opt/venv")
	require.Len(t, out, 1)
	assert.Equal(t, "/usr/bin/gcc", out[0].ResolvedPath)
}

func TestBuildPipProcesses_RestrictedToInterpreterPrefix(t *testing.T) {
	procs := []Process{
		{ResolvedPath: "/usr/bin/pip", Basename: "pip"},
		{ResolvedPath: "/opt/venv/bin/pip", Basename: "pip"},
	}
	out := BuildPipProcesses(procs, "/opt/venv")
	require.Len(t, out, 1)
	assert.Equal(t, "/opt/venv/bin/pip", out[0].ResolvedPath)
}

func TestDpkgSearchFiles_HandlesDivertedPackageList(t *testing.T) {
	c := &Collector{RunDpkg: func(ctx context.Context, args []string) (string, error) {
		return "pkg1, pkg2: /usr/lib/foo.so\n", nil
	}}
	result := c.dpkgSearchFiles(context.Background(), []string{"/usr/lib/foo.so"})
	assert.Equal(t, "pkg1", result["/usr/lib/foo.so"])
}

func TestDpkgQueryVersions_ParsesStanzas(t *testing.T) {
	out := strings.Join([]string{
		"Package: a",
		"Version: 1.0",
		"",
		"Package: b",
		"Version: 2.0",
	}, "\n")
	c := &Collector{RunDpkg: func(ctx context.Context, args []string) (string, error) { return out, nil }}
	result := c.dpkgQueryVersions(context.Background(), []string{"a", "b"})
	assert.Equal(t, "1.0", result["a"])
	assert.Equal(t, "2.0", result["b"])
}
