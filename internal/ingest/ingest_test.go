package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTracerLog_DedupsAndComputesDuration(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tracer.json", `{
		"opened_files": ["/a", "/a", "/b"],
		"read_files": ["/a"],
		"written_files": ["/out"],
		"processes": [{"pid": 1, "parent_pid": 0, "command": ["python", "train.py"]}],
		"start_time": 100.0,
		"end_time": 103.5
	}`)

	log, err := LoadTracerLog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, log.OpenedFiles)
	assert.Equal(t, 3.5, log.Duration())
	require.Len(t, log.Processes, 1)
	assert.Equal(t, "python train.py", log.Processes[0].Command)
}

func TestLoadTracerLog_SchemaViolationFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"opened_files": "not-an-array"}`)
	_, err := LoadTracerLog(path)
	require.Error(t, err)
}

func TestLoadTracerLog_MissingFileFails(t *testing.T) {
	_, err := LoadTracerLog("/nonexistent/tracer.json")
	require.Error(t, err)
}

func TestDuration_NeverNegative(t *testing.T) {
	log := TracerLog{StartTime: 10, EndTime: 5}
	assert.Equal(t, 0.0, log.Duration())
}

func TestLoadSidecarLog_MissingFileToleratedAsZeroValue(t *testing.T) {
	got := LoadSidecarLog("/nonexistent/sidecar.json")
	assert.Equal(t, SidecarLog{}, got)
}

func TestLoadSidecarLog_MalformedToleratedAsZeroValue(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sidecar.json", `not json at all`)
	got := LoadSidecarLog(path)
	assert.Equal(t, SidecarLog{}, got)
}

func TestLoadSidecarLog_ValidParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sidecar.json", `{
		"modules_files": ["/venv/lib/numpy.py"],
		"sys_prefix": "/venv",
		"sys_base_prefix": "/usr",
		"roar_inject_dir": "/tmp/roar-inject",
		"used_packages": {"numpy": "1.26.0"}
	}`)
	got := LoadSidecarLog(path)
	assert.Equal(t, "/venv", got.SysPrefix)
	assert.Equal(t, "1.26.0", got.UsedPackages["numpy"])
}

func TestDedupPreserveOrder(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b", "/c"}, dedupPreserveOrder([]string{"/a", "/b", "/a", "/c", "/b"}))
}
