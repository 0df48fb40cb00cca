package sandbox

import (
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/pkg/errors"

	"github.com/jsannemo/omogenexec/internal/logger"
	"github.com/jsannemo/omogenexec/internal/syscalls"
)

// supervisorCtxFD is where the supervisor finds its serialized Context,
// written by the bootstrap onto a pipe passed via ExtraFiles[0].
const supervisorCtxFD = 3

// rlimitStackUnlimited mirrors RLIM_INFINITY for RLIMIT_STACK, installed by
// the bootstrap so the cloned supervisor and its descendants never hit a
// stack ceiling the original design did not intend to impose.
const rlimitStackUnlimited = ^uint64(0)

// Bootstrap validates ctx, provisions host-side state (quota, rlimits),
// then re-execs itself into a fresh {mount, pid, net, ipc} namespace set as
// the supervisor, waits for it to finish, and removes the container
// directory. It is the Go-idiomatic replacement for the clone(2)-with-a-
// raw-stack approach: Go cannot hand clone(2) a C function pointer entry
// point, and calling bare fork() in a multithreaded Go runtime is unsafe,
// so the supervisor is launched as a genuinely separate exec'd process
// instead of a cloned thread running shared Go state.
func Bootstrap(ctx *Context) error {
	if err := syscalls.SetKillOnParentDeath(); err != nil {
		return err
	}

	if err := validate(ctx); err != nil {
		return err
	}

	uid, err := syscalls.FindUser(SandboxUserPrefix + strconv.Itoa(ctx.SandboxID))
	if err != nil {
		return err
	}
	gid, err := syscalls.FindGroup(SandboxGroup)
	if err != nil {
		return err
	}
	ctx.SandboxUID = uid
	ctx.SandboxGID = gid

	if err := syscalls.MkdirAll(ctx.ContainerPath, 0755); err != nil {
		return err
	}

	if err := ApplyQuota(ctx.ContainerPath, ctx.Blocks, ctx.Inodes, ctx.SandboxUID); err != nil {
		return err
	}

	if err := syscalls.SetRlimit(syscall.RLIMIT_STACK, rlimitStackUnlimited, rlimitStackUnlimited); err != nil {
		return err
	}

	pid, err := spawnSupervisor(ctx)
	if err != nil {
		return err
	}

	if _, err := syscalls.WaitFor(pid); err != nil {
		logger.Warn("supervisor wait failed", logger.Ctx{"error": err.Error()})
	}

	if err := os.RemoveAll(ctx.ContainerPath); err != nil {
		logger.Warn("container cleanup failed", logger.Ctx{"path": ctx.ContainerPath, "error": err.Error()})
	}

	return nil
}

func validate(ctx *Context) error {
	if ctx.SandboxID < 0 || ctx.SandboxID >= MaxSandboxID {
		return errors.Errorf("sandbox_id %d out of range [0, %d)", ctx.SandboxID, MaxSandboxID)
	}
	return nil
}

// spawnSupervisor re-execs the current binary into its hidden
// "__supervisor" subcommand inside new namespaces, handing it ctx over a
// pipe passed as fd 3, and returns the new process's pid.
func spawnSupervisor(ctx *Context) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, errors.Wrap(err, "resolve self executable")
	}

	data, err := json.Marshal(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "encode context")
	}

	ctxPipe, err := syscalls.NewClosingPipe()
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(self, "__supervisor")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{ctxPipe.Read}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWNET | syscall.CLONE_NEWIPC,
	}

	if err := cmd.Start(); err != nil {
		ctxPipe.Read.Close()
		ctxPipe.Write.Close()
		return 0, errors.Wrap(err, "start supervisor")
	}
	ctxPipe.Read.Close()

	if _, err := ctxPipe.Write.Write(data); err != nil {
		ctxPipe.Write.Close()
		return 0, errors.Wrap(err, "write context to supervisor")
	}
	ctxPipe.Write.Close()

	return cmd.Process.Pid, nil
}

// SupervisorEntrypoint is the body of the hidden "__supervisor" subcommand:
// it decodes the Context its parent wrote to fd 3 and runs the supervisor
// loop.
func SupervisorEntrypoint() error {
	f := os.NewFile(supervisorCtxFD, "supervisor-ctx")
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "read supervisor context")
	}

	var ctx Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return errors.Wrap(err, "decode supervisor context")
	}

	return RunSupervisor(&ctx)
}

