package sandbox

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/jsannemo/omogenexec/internal/syscalls"
)

// Signal is the write end of a one-shot sync barrier: exactly one message
// is written, then the pipe is closed so the peer's Event.Wait observes
// EOF immediately after.
type Signal struct {
	w *os.File
}

// Event is the read end of a one-shot sync barrier.
type Event struct {
	r *os.File
}

// NewSyncPipe opens one sync barrier, returning its two typed ends. The
// caller hands one end to the process that signals and the other to the
// process that waits; each side closes its unused end immediately after
// fork so Event.Wait observes EOF rather than blocking forever.
func NewSyncPipe() (Signal, Event, error) {
	p, err := syscalls.NewClosingPipe()
	if err != nil {
		return Signal{}, Event{}, err
	}
	return Signal{w: p.Write}, Event{r: p.Read}, nil
}

// Send writes payload and closes the signalling end. Send must be called
// at most once.
func (s Signal) Send(payload string) error {
	if err := s.SendKeepOpen(payload); err != nil {
		return err
	}
	return s.w.Close()
}

// SendKeepOpen writes payload without closing the pipe, letting the caller
// append more later (see RunTrampoline's "ok"+"exec" composition, mirroring
// original_source's single-pipe "ok"/"err"/"okexec" handshake) or rely on a
// CLOEXEC-flagged descriptor closing automatically on a later successful
// exec.
func (s Signal) SendKeepOpen(payload string) error {
	if _, err := s.w.WriteString(payload); err != nil {
		return errors.Wrap(err, "signal write")
	}
	return nil
}

// Close closes the signal end without sending, used by the peer that does
// not own this end of the barrier.
func (s Signal) Close() error {
	return s.w.Close()
}

// Wait blocks until the peer's Signal is sent (or its process dies and the
// write end is closed), returning whatever payload was written.
func (e Event) Wait() (string, error) {
	data, err := io.ReadAll(e.r)
	if err != nil {
		return "", errors.Wrap(err, "event wait")
	}
	return string(data), nil
}

// Close closes the event end without waiting, used by the peer that does
// not own this end of the barrier.
func (e Event) Close() error {
	return e.r.Close()
}

// File returns the underlying descriptor, for handing to exec.Cmd.ExtraFiles
// when the peer is a freshly re-exec'd process rather than a forked one.
func (s Signal) File() *os.File { return s.w }

// File returns the underlying descriptor, for handing to exec.Cmd.ExtraFiles.
func (e Event) File() *os.File { return e.r }

// SignalFromFD reconstructs the write end of a barrier from a descriptor
// number, used by a re-exec'd process to recover a pipe end that crossed
// the exec boundary via ExtraFiles.
func SignalFromFD(fd uintptr) Signal {
	return Signal{w: os.NewFile(fd, "sync-signal")}
}

// EventFromFD reconstructs the read end of a barrier from a descriptor
// number.
func EventFromFD(fd uintptr) Event {
	return Event{r: os.NewFile(fd, "sync-event")}
}
