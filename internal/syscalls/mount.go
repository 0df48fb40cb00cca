// Package syscalls is a thin, typed wrapper over the Linux primitives the
// sandbox depends on: mount, wait*, kill, prctl, pipe2, close_range,
// setrlimit, quotactl, getpwnam/getgrnam and stat. chroot/setres{u,g}id/
// setgroups are applied via exec.Cmd's SysProcAttr instead of a wrapper
// here — see internal/sandbox/supervisor.go. No wrapper here panics on an
// OS-level failure; each converts a negative return into an error naming
// the syscall and the underlying errno, per the contract in spec.md §4.1/§7.
package syscalls

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// bindFlags are applied on the initial bind mount of a MountSpec target.
const bindFlags = unix.MS_BIND | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_PRIVATE

// Mount bind-mounts source onto target, read-only unless writable is true.
// A bind mount's read-only flag only takes effect on a subsequent remount
// (see https://lwn.net/Articles/281157/), so this performs both mount
// syscalls required to honour it.
func Mount(source, target string, writable bool) error {
	flags := uintptr(bindFlags)
	if !writable {
		flags |= unix.MS_RDONLY
	}

	if err := unix.Mount(source, target, "", flags, ""); err != nil {
		return errors.Wrapf(err, "bind mount %s -> %s", source, target)
	}

	remountFlags := flags | unix.MS_REMOUNT
	if err := unix.Mount(source, target, "", remountFlags, ""); err != nil {
		return errors.Wrapf(err, "remount %s", target)
	}

	return nil
}

// MountProc mounts a fresh procfs at target.
func MountProc(target string) error {
	flags := uintptr(unix.MS_NODEV | unix.MS_NOEXEC | unix.MS_NOSUID)
	if err := unix.Mount("proc", target, "proc", flags, ""); err != nil {
		return errors.Wrap(err, "mount proc")
	}
	return nil
}

// PrivatizeMounts makes the whole mount tree private and recursive so that
// none of the bind mounts performed afterwards leak to the host namespace.
func PrivatizeMounts() error {
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return errors.Wrap(err, "privatize mount namespace")
	}
	return nil
}

// MkdirAll is mkdir -p, wrapped for a consistent error shape alongside the
// rest of this package.
func MkdirAll(path string, perm os.FileMode) error {
	if err := os.MkdirAll(path, perm); err != nil {
		return errors.Wrapf(err, "mkdir -p %s", path)
	}
	return nil
}
