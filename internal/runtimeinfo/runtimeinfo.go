// Package runtimeinfo gathers the host/OS/interpreter facts the
// provenance record carries, plus the optional container/vm/gpu/cpu/
// memory blocks (spec §4.8). Every collector is best-effort: a failure
// yields an absent block rather than failing the run.
package runtimeinfo

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const probeTimeout = 3 * time.Second

// probeRetries bounds retries of runCommand's spawn step (not the probed
// program's own exit code) against transient fork/exec failures under
// process-table pressure from the traced command's own children.
const probeRetries = 2

// OS is the fixed quad spec §4.8 names.
type OS struct {
	System  string `json:"system"`
	Release string `json:"release,omitempty"`
	Version string `json:"version,omitempty"`
	Machine string `json:"machine,omitempty"`
}

// Interpreter describes the language runtime that ran the traced command.
type Interpreter struct {
	Version        string `json:"version,omitempty"`
	Implementation string `json:"implementation,omitempty"`
}

// Info is the full runtime record; optional blocks are nil when their
// heuristic found nothing.
type Info struct {
	Hostname    string            `json:"hostname"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Command     string            `json:"command"`
	OS          OS                `json:"os"`
	Interpreter Interpreter       `json:"interpreter"`
	EnvVars     map[string]string `json:"env_vars,omitempty"`
	Container   *ContainerInfo    `json:"container,omitempty"`
	VM          *VMInfo           `json:"vm,omitempty"`
	CUDA        *CUDAInfo         `json:"cuda,omitempty"`
	GPU         []GPUInfo         `json:"gpu,omitempty"`
	CPU         *CPUInfo          `json:"cpu,omitempty"`
	Memory      *MemoryInfo       `json:"memory,omitempty"`
}

type ContainerInfo struct {
	Runtime string `json:"runtime"` // "docker", "containerd", etc.
}

type VMInfo struct {
	Product string `json:"product"`
}

type CUDAInfo struct {
	Version string `json:"version"`
}

type GPUInfo struct {
	Name       string `json:"name"`
	MemoryMiB  int    `json:"memory_mib,omitempty"`
	DriverVers string `json:"driver_version,omitempty"`
}

type CPUInfo struct {
	Model string `json:"model"`
	Cores int    `json:"cores,omitempty"`
}

type MemoryInfo struct {
	TotalKB int64 `json:"total_kb"`
}

// Collector gathers runtime facts from the local host. Fields that shell
// out are overridable for tests.
type Collector struct {
	ReadFile func(path string) ([]byte, error)
	RunCmd   func(ctx context.Context, name string, args ...string) (string, error)
}

func New() *Collector {
	return &Collector{ReadFile: os.ReadFile, RunCmd: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var out bytes.Buffer
	var runErr error
	spawn := func() error {
		out.Reset()
		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Stdout = &out
		runErr = cmd.Run()
		if _, isExit := runErr.(*exec.ExitError); runErr != nil && !isExit {
			return runErr // fork/exec-level failure: worth retrying
		}
		return nil // either success or the probed program's own exit code
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), probeRetries)
	_ = backoff.Retry(spawn, backoff.WithContext(bo, ctx))
	return out.String(), runErr
}

// Collect assembles the full runtime record. envVars is supplied by the
// caller (already redacted by the secret filter, not this package's
// concern).
func (c *Collector) Collect(ctx context.Context, command string, started, ended time.Time, goos OS, interp Interpreter, envVars map[string]string) Info {
	hostname, _ := os.Hostname()
	info := Info{
		Hostname:    hostname,
		StartedAt:   started,
		EndedAt:     ended,
		Command:     command,
		OS:          goos,
		Interpreter: interp,
		EnvVars:     envVars,
	}
	info.Container = c.detectContainer()
	info.VM = c.detectVM(ctx)
	info.CUDA = c.detectCUDA(ctx)
	info.GPU = c.detectGPU(ctx)
	info.CPU = c.detectCPU()
	info.Memory = c.detectMemory()
	return info
}

// detectContainer checks /.dockerenv then /proc/self/cgroup, per spec §4.8.
func (c *Collector) detectContainer() *ContainerInfo {
	if _, err := c.ReadFile("/.dockerenv"); err == nil {
		return &ContainerInfo{Runtime: "docker"}
	}
	body, err := c.ReadFile("/proc/self/cgroup")
	if err != nil {
		return nil
	}
	text := string(body)
	switch {
	case strings.Contains(text, "docker"):
		return &ContainerInfo{Runtime: "docker"}
	case strings.Contains(text, "containerd"):
		return &ContainerInfo{Runtime: "containerd"}
	case strings.Contains(text, "kubepods"):
		return &ContainerInfo{Runtime: "kubernetes"}
	}
	return nil
}

// detectVM shells out to systemd-detect-virt, falling back to DMI
// product-name sniffing.
func (c *Collector) detectVM(ctx context.Context) *VMInfo {
	if out, err := c.RunCmd(ctx, "systemd-detect-virt"); err == nil {
		name := strings.TrimSpace(out)
		if name != "" && name != "none" {
			return &VMInfo{Product: name}
		}
	}
	body, err := c.ReadFile("/sys/class/dmi/id/product_name")
	if err != nil {
		return nil
	}
	product := strings.TrimSpace(string(body))
	if product == "" {
		return nil
	}
	lower := strings.ToLower(product)
	for _, marker := range []string{"vmware", "virtualbox", "kvm", "qemu", "xen", "hyper-v"} {
		if strings.Contains(lower, marker) {
			return &VMInfo{Product: product}
		}
	}
	return nil
}

// detectCUDA invokes nvcc --version and extracts the release string.
func (c *Collector) detectCUDA(ctx context.Context) *CUDAInfo {
	out, err := c.RunCmd(ctx, "nvcc", "--version")
	if err != nil || out == "" {
		return nil
	}
	idx := strings.Index(out, "release ")
	if idx < 0 {
		return nil
	}
	rest := out[idx+len("release "):]
	if comma := strings.IndexAny(rest, ",\n"); comma >= 0 {
		rest = rest[:comma]
	}
	version := strings.TrimSpace(rest)
	if version == "" {
		return nil
	}
	return &CUDAInfo{Version: version}
}

// detectGPU parses `nvidia-smi --query-gpu=...` CSV output.
func (c *Collector) detectGPU(ctx context.Context) []GPUInfo {
	out, err := c.RunCmd(ctx, "nvidia-smi", "--query-gpu=name,memory.total,driver_version", "--format=csv,noheader,nounits")
	if err != nil || strings.TrimSpace(out) == "" {
		return nil
	}
	var gpus []GPUInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			continue
		}
		mem, _ := strconv.Atoi(strings.TrimSpace(parts[1]))
		gpus = append(gpus, GPUInfo{
			Name:       strings.TrimSpace(parts[0]),
			MemoryMiB:  mem,
			DriverVers: strings.TrimSpace(parts[2]),
		})
	}
	return gpus
}

// detectCPU parses /proc/cpuinfo for a model name and core count.
func (c *Collector) detectCPU() *CPUInfo {
	body, err := c.ReadFile("/proc/cpuinfo")
	if err != nil {
		return nil
	}
	var model string
	cores := 0
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "model name") {
			if idx := strings.Index(line, ":"); idx >= 0 && model == "" {
				model = strings.TrimSpace(line[idx+1:])
			}
			cores++
		}
	}
	if model == "" && cores == 0 {
		return nil
	}
	return &CPUInfo{Model: model, Cores: cores}
}

// detectMemory parses /proc/meminfo's MemTotal line.
func (c *Collector) detectMemory() *MemoryInfo {
	body, err := c.ReadFile("/proc/meminfo")
	if err != nil {
		return nil
	}
	for _, line := range strings.Split(string(body), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil
		}
		return &MemoryInfo{TotalKB: kb}
	}
	return nil
}
