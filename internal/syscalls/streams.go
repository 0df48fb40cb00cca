package syscalls

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// RepointStream duplicates src onto the given standard fd (0, 1 or 2) via
// dup2, then closes src. Used by the runner trampoline after chroot to wire
// a submission's stdin/stdout/stderr files onto the exec'd process before
// syscall.Exec replaces its image.
func RepointStream(src *os.File, fd int) error {
	if err := unix.Dup2(int(src.Fd()), fd); err != nil {
		return errors.Wrapf(err, "dup2 %s -> fd %d", src.Name(), fd)
	}
	return src.Close()
}

// CloseStream closes the given standard fd outright, used when a stream is
// configured empty, meaning closed rather than redirected to a file.
func CloseStream(fd int) error {
	if err := unix.Close(fd); err != nil {
		return errors.Wrapf(err, "close fd %d", fd)
	}
	return nil
}
