package syscalls

import (
	"math"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Pipe is a unidirectional, close-on-exec pipe pair.
type Pipe struct {
	Read  *os.File
	Write *os.File
}

// NewClosingPipe opens a pipe2(2) pair with O_CLOEXEC, so neither end
// survives into a child's exec unless explicitly inherited via
// exec.Cmd.ExtraFiles.
func NewClosingPipe() (Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return Pipe{}, errors.Wrap(err, "pipe2")
	}
	return Pipe{
		Read:  os.NewFile(uintptr(fds[0]), "pipe-r"),
		Write: os.NewFile(uintptr(fds[1]), "pipe-w"),
	}, nil
}

// CloseNonstdFDs closes every open file descriptor above stderr (fd 2) in
// the calling process. It prefers close_range(2); on kernels too old to
// have it (pre-5.9), it falls back to probing /proc/self/fd.
func CloseNonstdFDs() error {
	err := unix.CloseRange(3, math.MaxUint, 0)
	if err == nil {
		return nil
	}
	if err != unix.ENOSYS {
		return errors.Wrap(err, "close_range")
	}
	return closeNonstdFDsFallback()
}

func closeNonstdFDsFallback() error {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return errors.Wrap(err, "read /proc/self/fd")
	}
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil || fd <= 2 {
			continue
		}
		unix.Close(fd)
	}
	return nil
}
