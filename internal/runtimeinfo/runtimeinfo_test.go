package runtimeinfo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubFiles(files map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		if body, ok := files[path]; ok {
			return []byte(body), nil
		}
		return nil, errors.New("not found")
	}
}

func TestDetectContainer_Dockerenv(t *testing.T) {
	c := &Collector{ReadFile: stubFiles(map[string]string{"/.dockerenv": ""})}
	got := c.detectContainer()
	require.NotNil(t, got)
	assert.Equal(t, "docker", got.Runtime)
}

func TestDetectContainer_Cgroup(t *testing.T) {
	c := &Collector{ReadFile: stubFiles(map[string]string{
		"/proc/self/cgroup": "0::/kubepods/besteffort/pod123",
	})}
	got := c.detectContainer()
	require.NotNil(t, got)
	assert.Equal(t, "kubernetes", got.Runtime)
}

func TestDetectContainer_Absent(t *testing.T) {
	c := &Collector{ReadFile: stubFiles(map[string]string{})}
	assert.Nil(t, c.detectContainer())
}

func TestDetectVM_SystemdDetectVirt(t *testing.T) {
	c := &Collector{
		ReadFile: stubFiles(map[string]string{}),
		RunCmd: func(ctx context.Context, name string, args ...string) (string, error) {
			return "kvm\n", nil
		},
	}
	got := c.detectVM(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "kvm", got.Product)
}

func TestDetectVM_NoneIsAbsent(t *testing.T) {
	c := &Collector{
		ReadFile: stubFiles(map[string]string{}),
		RunCmd: func(ctx context.Context, name string, args ...string) (string, error) {
			return "none\n", nil
		},
	}
	assert.Nil(t, c.detectVM(context.Background()))
}

func TestDetectCUDA_ParsesReleaseVersion(t *testing.T) {
	c := &Collector{
		RunCmd: func(ctx context.Context, name string, args ...string) (string, error) {
			return "Cuda compilation tools, release 12.2, V12.2.140", nil
		},
	}
	got := c.detectCUDA(context.Background())
	require.NotNil(t, got)
	assert.Equal(t, "12.2", got.Version)
}

func TestDetectGPU_ParsesCSV(t *testing.T) {
	c := &Collector{
		RunCmd: func(ctx context.Context, name string, args ...string) (string, error) {
			return "NVIDIA A100, 40960, 535.104.05\n", nil
		},
	}
	got := c.detectGPU(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "NVIDIA A100", got[0].Name)
	assert.Equal(t, 40960, got[0].MemoryMiB)
}

func TestDetectCPU_ParsesModelAndCores(t *testing.T) {
	c := &Collector{ReadFile: stubFiles(map[string]string{
		"/proc/cpuinfo": "model name\t: Intel Xeon\nmodel name\t: Intel Xeon\n",
	})}
	got := c.detectCPU()
	require.NotNil(t, got)
	assert.Equal(t, "Intel Xeon", got.Model)
	assert.Equal(t, 2, got.Cores)
}

func TestDetectMemory_ParsesMemTotal(t *testing.T) {
	c := &Collector{ReadFile: stubFiles(map[string]string{
		"/proc/meminfo": "MemTotal:       16384000 kB\nMemFree: 1000 kB\n",
	})}
	got := c.detectMemory()
	require.NotNil(t, got)
	assert.Equal(t, int64(16384000), got.TotalKB)
}
