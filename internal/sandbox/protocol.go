package sandbox

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// CommandFrame is one decoded request off the command stream: an
// executable plus its arguments, ready to hand to exec.
type CommandFrame struct {
	Executable string
	Args       []string
}

// ReadCommand reads one length-prefixed frame from r: a single byte N
// giving the total token count, followed by N NUL-terminated strings. EOF
// before any byte of the frame is read is reported via io.EOF and ends the
// command stream cleanly; EOF in the middle of a frame is an error.
//
// N == 0 is rejected outright — the original encoding used an unsigned
// token count and naively treated it as (1 executable + N-1 args), which
// underflows when N is 0. There is no valid zero-token frame.
func ReadCommand(r *bufio.Reader) (CommandFrame, error) {
	n, err := r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return CommandFrame{}, io.EOF
		}
		return CommandFrame{}, errors.Wrap(err, "read frame length")
	}
	if n == 0 {
		return CommandFrame{}, errors.New("frame token count must be >= 1, got 0")
	}

	tokens := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		tok, err := r.ReadString(0)
		if err != nil {
			return CommandFrame{}, errors.Wrap(err, "read frame token")
		}
		tokens = append(tokens, tok[:len(tok)-1])
	}

	return CommandFrame{Executable: tokens[0], Args: tokens[1:]}, nil
}

// WriteCommand encodes a frame in ReadCommand's wire format. Used by tests
// and by any client driving the supervisor over a pipe.
func WriteCommand(w io.Writer, f CommandFrame) error {
	tokens := append([]string{f.Executable}, f.Args...)
	if len(tokens) == 0 || len(tokens) > 255 {
		return errors.Errorf("frame token count %d out of range", len(tokens))
	}

	buf := []byte{byte(len(tokens))}
	for _, tok := range tokens {
		buf = append(buf, []byte(tok)...)
		buf = append(buf, 0)
	}
	_, err := w.Write(buf)
	return errors.Wrap(err, "write frame")
}

// StatusKind distinguishes the exit-status lines of a command result.
type StatusKind int

const (
	// StatusCode means the command exited normally with an exit code.
	StatusCode StatusKind = iota
	// StatusSignal means the command was terminated or stopped by a signal.
	StatusSignal
)

// ResultStatus is the reaped exit status of a command, present whenever the
// grandchild was actually waited on and produced a status (as opposed to a
// setup failure, which never execs at all).
type ResultStatus struct {
	Kind  StatusKind
	Value int
}

// WriteResultSetup reports a setup failure: the runner could not be started,
// could not redirect its streams (the "err" S1 payload), or could not exec
// the command (the "okexec" payload). No status or cpu line follows — the original code's lesson here is that the S1 payload
// is authoritative and no further output should be synthesised for a
// process that never ran the submission.
func WriteResultSetup(w io.Writer) error {
	if _, err := fmt.Fprint(w, "killed setup\ndone\n"); err != nil {
		return errors.Wrap(err, "write killed setup result")
	}
	return nil
}

// WriteResult reports a command that was waited on. status is the reaped
// exit status if the grandchild was reaped before its limits were breached
// (nil if the termination sweep killed it first). killedTLE is true if the
// final accounted CPU time (or a wall-clock breach) exceeded the command's
// limit; the "killed tle" line, when present, always precedes any status
// line that still applies, and the cpu/done lines always close the block.
func WriteResult(w io.Writer, status *ResultStatus, killedTLE bool, cpuMillis int64) error {
	if killedTLE {
		if _, err := fmt.Fprint(w, "killed tle\n"); err != nil {
			return errors.Wrap(err, "write killed tle line")
		}
	}

	if status != nil {
		var err error
		switch status.Kind {
		case StatusCode:
			_, err = fmt.Fprintf(w, "code %d\n", status.Value)
		case StatusSignal:
			_, err = fmt.Fprintf(w, "signal %d\n", status.Value)
		default:
			return errors.Errorf("unknown status kind %d", status.Kind)
		}
		if err != nil {
			return errors.Wrap(err, "write status line")
		}
	}

	if _, err := fmt.Fprintf(w, "cpu %d\n", cpuMillis); err != nil {
		return errors.Wrap(err, "write cpu line")
	}
	if _, err := fmt.Fprint(w, "done\n"); err != nil {
		return errors.Wrap(err, "write done line")
	}
	return nil
}
