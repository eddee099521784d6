// Package device collects a descriptor of the host process for error
// contexts, reports, and the dashboard status payload.
package device

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Info describes the host. Collected once per process; the values
// cannot change while the process lives.
type Info struct {
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Hostname  string `json:"hostname,omitempty"`
	Kernel    string `json:"kernel,omitempty"`
	NumCPU    int    `json:"num_cpu"`
	GoVersion string `json:"go_version"`
}

var (
	once   sync.Once
	cached Info
)

// Collect returns the host descriptor, probing the system on first
// call only.
func Collect() Info {
	once.Do(func() {
		cached = probe()
	})
	return cached
}

func probe() Info {
	info := Info{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
		GoVersion: runtime.Version(),
	}
	if host, err := os.Hostname(); err == nil {
		info.Hostname = host
	}
	info.Kernel = kernelHint()
	return info
}

// kernelHint reads the kernel release where the OS exposes it. Best
// effort; absent on non-Linux hosts.
func kernelHint() string {
	raw, err := os.ReadFile("/proc/sys/kernel/osrelease")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

// Label returns the short "os/arch" form used in error contexts.
func (i Info) Label() string {
	return i.OS + "/" + i.Arch
}

// String renders the descriptor on one line.
func (i Info) String() string {
	parts := []string{i.Label()}
	if i.Hostname != "" {
		parts = append(parts, "host="+i.Hostname)
	}
	if i.Kernel != "" {
		parts = append(parts, "kernel="+i.Kernel)
	}
	parts = append(parts, fmt.Sprintf("cpus=%d", i.NumCPU))
	return strings.Join(parts, " ")
}
