package sandbox

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// cgroupRoot is the standard cgroup v2 unified hierarchy mountpoint. A
// package variable rather than a constant so tests can point it at a
// scratch directory instead of the real cgroup filesystem.
var cgroupRoot = "/sys/fs/cgroup"

// Cgroup is a handle onto one sandbox's delegated cgroup v2 subtree. It
// exposes the small set of controller files the supervisor needs directly,
// in the same read/write-a-file style lxd's cgroup package uses over the
// unified hierarchy.
type Cgroup struct {
	path string
}

// NewCgroup creates (or reopens) the named cgroup under cgroupRoot. Per
// cgroup v2 semantics, a controller only becomes active in a cgroup once an
// *ancestor* enables it for its children via its own cgroup.subtree_control
// — enabling it on the new leaf itself would only affect children the leaf
// never has (tasks are attached directly via cgroup.procs). So this enables
// memory/cpu/pids on cgroupRoot, not on the new cgroup; the write is
// idempotent (re-enabling an already-enabled controller is a no-op success),
// so it is safe to repeat for every sandbox that shares cgroupRoot.
func NewCgroup(name string) (*Cgroup, error) {
	root := &Cgroup{path: cgroupRoot}
	if err := root.writeFile("cgroup.subtree_control", "+memory +cpu +pids"); err != nil {
		return nil, errors.Wrap(err, "enable controllers on cgroup root")
	}

	path := filepath.Join(cgroupRoot, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, errors.Wrapf(err, "create cgroup %s", name)
	}

	return &Cgroup{path: path}, nil
}

// Delete removes the cgroup. It must be empty (tasks drained) first.
func (c *Cgroup) Delete() error {
	if err := os.Remove(c.path); err != nil {
		return errors.Wrapf(err, "remove cgroup %s", c.path)
	}
	return nil
}

// SetMemoryLimit sets memory.max in bytes.
func (c *Cgroup) SetMemoryLimit(bytes int64) error {
	return c.writeFile("memory.max", strconv.FormatInt(bytes, 10))
}

// SetPidMax sets pids.max; 0 freezes the controller against further forks.
func (c *Cgroup) SetPidMax(n int64) error {
	return c.writeFile("pids.max", strconv.FormatInt(n, 10))
}

// AddTask attaches pid to this cgroup, covering all delegated controllers
// at once (cgroup v2 has one unified cgroup.procs per cgroup).
func (c *Cgroup) AddTask(pid int) error {
	return c.writeFile("cgroup.procs", strconv.Itoa(pid))
}

// Tasks returns the pids currently attached to this cgroup.
func (c *Cgroup) Tasks() ([]int, error) {
	data, err := c.readFile("cgroup.procs")
	if err != nil {
		return nil, err
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, errors.Wrapf(err, "parse pid %q", line)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// CPUUsageNanos returns cumulative CPU time consumed by the cgroup, parsed
// from cpu.stat's usage_usec field and converted to nanoseconds.
func (c *Cgroup) CPUUsageNanos() (int64, error) {
	data, err := c.readFile("cpu.stat")
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != "usage_usec" {
			continue
		}
		usec, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "parse usage_usec %q", fields[1])
		}
		return usec * 1000, nil
	}
	return 0, errors.Errorf("usage_usec not found in %s/cpu.stat", c.path)
}

// MemoryPeak returns the high-water mark of memory.current observed over
// the cgroup's lifetime, read from memory.peak.
func (c *Cgroup) MemoryPeak() (int64, error) {
	data, err := c.readFile("memory.peak")
	if err != nil {
		return 0, err
	}
	peak, err := strconv.ParseInt(strings.TrimSpace(data), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse memory.peak %q", data)
	}
	return peak, nil
}

func (c *Cgroup) writeFile(name, value string) error {
	path := filepath.Join(c.path, name)
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func (c *Cgroup) readFile(name string) (string, error) {
	path := filepath.Join(c.path, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", path)
	}
	return string(data), nil
}
