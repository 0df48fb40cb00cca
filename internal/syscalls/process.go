package syscalls

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// WaitFor blocks until pid exits and returns its wait status.
func WaitFor(pid int) (unix.WaitStatus, error) {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(pid, &status, 0, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return status, errors.Wrapf(err, "wait4 %d", pid)
		}
		return status, nil
	}
}

// WaitForNoHang polls pid without blocking. ok is false if the child has
// not yet exited.
func WaitForNoHang(pid int) (status unix.WaitStatus, ok bool, err error) {
	wpid, werr := unix.Wait4(pid, &status, unix.WNOHANG, nil)
	if werr != nil {
		return status, false, errors.Wrapf(werr, "wait4 nohang %d", pid)
	}
	if wpid == 0 {
		return status, false, nil
	}
	return status, true, nil
}

// WaitAnyNoHang reaps any one exited child without blocking. reaped is true
// only when a child was actually reaped this call. noChildren is true only
// on a genuine ECHILD — the process has no children left at all — which is
// the sole correct stopping condition for a reap-until-drained loop; a
// reaped=false, noChildren=false result means a child still exists but
// hasn't changed state yet, and the caller must poll again rather than stop.
func WaitAnyNoHang() (pid int, status unix.WaitStatus, reaped bool, noChildren bool, err error) {
	wpid, werr := unix.Wait4(-1, &status, unix.WNOHANG, nil)
	if werr == unix.ECHILD {
		return 0, status, false, true, nil
	}
	if werr != nil {
		return 0, status, false, false, errors.Wrap(werr, "wait4 any nohang")
	}
	if wpid == 0 {
		return 0, status, false, false, nil
	}
	return wpid, status, true, false, nil
}

// Kill sends SIGKILL to pid.
func Kill(pid int) error {
	if err := unix.Kill(pid, unix.SIGKILL); err != nil {
		return errors.Wrapf(err, "kill %d", pid)
	}
	return nil
}

// SetKillOnParentDeath arranges for the kernel to send SIGKILL to the
// calling process when its parent dies, closing the race where an
// unsupervised sandbox process tree outlives the thing that launched it.
func SetKillOnParentDeath() error {
	if err := unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGKILL), 0, 0, 0); err != nil {
		return errors.Wrap(err, "prctl PR_SET_PDEATHSIG")
	}
	return nil
}

// SetRlimit sets both the soft and hard limit for the given resource.
func SetRlimit(resource int, soft, max uint64) error {
	lim := unix.Rlimit{Cur: soft, Max: max}
	if err := unix.Setrlimit(resource, &lim); err != nil {
		return errors.Wrapf(err, "setrlimit %d", resource)
	}
	return nil
}
