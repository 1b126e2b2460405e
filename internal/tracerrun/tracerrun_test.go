package tracerrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempLogPaths(t *testing.T) {
	tracerLog, injectLog := TempLogPaths("/repo/.roar", 4242)
	assert.Equal(t, filepath.Join("/repo/.roar", "run_4242_tracer.json"), tracerLog)
	assert.Equal(t, filepath.Join("/repo/.roar", "run_4242_inject.json"), injectLog)
}

func TestItoa(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "4242", itoa(4242))
	assert.Equal(t, "-7", itoa(-7))
}

func TestFindTracer_FallsBackToPath(t *testing.T) {
	dir := t.TempDir()
	fakeTracer := filepath.Join(dir, "roar-tracer")
	require.NoError(t, os.WriteFile(fakeTracer, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	got, err := FindTracer()
	require.NoError(t, err)
	assert.Equal(t, fakeTracer, got)
}

func TestRunner_Run_ExitCodePropagated(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-tracer.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0o755))

	r := &Runner{TracerPath: script}
	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Interrupted)
}
