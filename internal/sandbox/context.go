// Package sandbox implements the per-sandbox supervisor: container
// filesystem assembly, cgroup accounting, the fork/exec/wait command cycle
// and the wire protocols at its edges.
package sandbox

import (
	"strconv"
	"strings"
	"time"
)

// RootPrefix is the fixed host directory all container paths live under.
const RootPrefix = "/var/lib/omogen"

// SandboxUserPrefix and SandboxGroup name the out-of-band provisioned host
// accounts a sandbox's grandchild runs as.
const (
	SandboxUserPrefix = "omogenexec-user"
	SandboxGroup      = "omogenexec-users"
)

// MaxSandboxID is the exclusive upper bound on sandbox_id.
const MaxSandboxID = 100

// MountSpec describes one bind mount to apply inside the container.
//
// Outside must be absolute. Inside may be relative; it is joined under the
// container root after a leading slash is stripped.
type MountSpec struct {
	Outside  string
	Inside   string
	Writable bool
}

// ParseMountSpec parses a CLI-style "outside[:inside]" token. No colon means
// outside == inside.
func ParseMountSpec(token string, writable bool) MountSpec {
	outside, inside, found := strings.Cut(token, ":")
	if !found {
		inside = outside
	}
	return MountSpec{Outside: outside, Inside: inside, Writable: writable}
}

// Context is the immutable configuration of one sandbox instance. It is
// constructed once by the bootstrap and carried, unchanged, across the
// re-exec into the supervisor.
type Context struct {
	SandboxID int

	SandboxUID int
	SandboxGID int

	ContainerPath string

	Stdin  string
	Stdout string
	Stderr string

	Readable []MountSpec
	Writable []MountSpec

	WorkingDirectory string
	Env              []string

	MemLimitBytes int64
	PidLimit      int64
	TimeLim       time.Duration
	WallTimeLim   time.Duration

	DefaultMounts bool

	Blocks uint64
	Inodes uint64
}

// CgroupName is the name of the cgroup this sandbox's commands run under.
func (c *Context) CgroupName() string {
	return cgroupNamePrefix + strconv.Itoa(c.SandboxID)
}

const cgroupNamePrefix = "omogen-"
