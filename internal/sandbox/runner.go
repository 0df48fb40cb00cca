package sandbox

import (
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/jsannemo/omogenexec/internal/syscalls"
)

// runSpecEnv carries one command's RunSpec across the supervisor's re-exec
// of the runner trampoline. It is small and short-lived, so an environment
// variable is simpler than a third pipe.
const runSpecEnv = "OMOGENEXEC_RUN"

// RunSpec is everything the runner trampoline needs to exec one command,
// once it is already chrooted, uid/gid-dropped and chdir'd via the
// supervisor's exec.Cmd SysProcAttr and Dir settings.
type RunSpec struct {
	Executable string
	Args       []string
	Env        []string
	Stdin      string
	Stdout     string
	Stderr     string
}

// EncodeRunSpec serialises spec for runSpecEnv.
func EncodeRunSpec(spec RunSpec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", errors.Wrap(err, "encode run spec")
	}
	return string(data), nil
}

// runnerS1FD and runnerS2FD are the fixed ExtraFiles slots the supervisor
// hands the runner trampoline: fd 3 is the runner's S1 signal end, fd 4 is
// its S2 event end.
const (
	runnerS1FD = 3
	runnerS2FD = 4
)

// RunTrampoline is the entire body of the hidden "__run" subcommand. It
// never returns on success: it ends by replacing its own image via exec.
//
// The S1 handshake is a three-way signal, not a boolean: a redirect failure
// writes "err" and exits immediately; success writes "ok" and leaves the
// pipe open instead of closing it outright. fd 3 is then marked CLOEXEC, so
// a subsequently successful exec closes it for free and the supervisor
// reads exactly "ok". If exec instead fails, this process is still alive to
// append "exec" to the same pipe before exiting, so the supervisor reads
// "okexec" — chroot/credential/streams all succeeded, only exec failed.
func RunTrampoline() error {
	raw := os.Getenv(runSpecEnv)
	if raw == "" {
		return errors.New("__run invoked without " + runSpecEnv)
	}
	os.Unsetenv(runSpecEnv)

	var spec RunSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return errors.Wrap(err, "decode run spec")
	}

	s1 := SignalFromFD(runnerS1FD)
	s2 := EventFromFD(runnerS2FD)
	unix.CloseOnExec(int(s1.w.Fd()))

	if err := setStreams(spec); err != nil {
		s1.Send("err")
		os.Exit(1)
	}
	if err := s1.SendKeepOpen("ok"); err != nil {
		os.Exit(1)
	}

	if _, err := s2.Wait(); err != nil {
		os.Exit(1)
	}
	s2.Close()

	path, err := lookPath(spec.Executable, spec.Env)
	if err != nil {
		s1.Send("exec")
		os.Exit(1)
	}

	argv := append([]string{spec.Executable}, spec.Args...)
	err = syscall.Exec(path, argv, spec.Env)
	// syscall.Exec only returns on failure; fd 3 is still open here.
	s1.Send("exec")
	os.Exit(1)
	return err
}

// setStreams redirects the process's stdin/stdout/stderr per spec, after
// the process is already chrooted — so the paths in spec are resolved
// inside the container.
func setStreams(spec RunSpec) error {
	if err := setStream(0, os.O_RDONLY, spec.Stdin); err != nil {
		return err
	}
	if err := setStream(1, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, spec.Stdout); err != nil {
		return err
	}
	if err := setStream(2, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, spec.Stderr); err != nil {
		return err
	}
	return nil
}

// lookPath resolves executable against spec's own PATH (falling back to
// exec.LookPath's default search) rather than the runner trampoline's
// inherited environment, which the command's chosen env may not match.
func lookPath(executable string, env []string) (string, error) {
	if strings.Contains(executable, "/") {
		return executable, nil
	}

	for _, kv := range env {
		if rest, ok := strings.CutPrefix(kv, "PATH="); ok {
			for _, dir := range strings.Split(rest, ":") {
				if dir == "" {
					continue
				}
				candidate := dir + "/" + executable
				if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
					return candidate, nil
				}
			}
			return "", errors.Errorf("%s: not found in PATH", executable)
		}
	}

	return exec.LookPath(executable)
}

func setStream(fd int, flag int, path string) error {
	if path == "" {
		return syscalls.CloseStream(fd)
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return errors.Wrapf(err, "open stream %s", path)
	}
	return syscalls.RepointStream(f, fd)
}
