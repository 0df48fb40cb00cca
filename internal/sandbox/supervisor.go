package sandbox

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/jsannemo/omogenexec/internal/logger"
	"github.com/jsannemo/omogenexec/internal/syscalls"
)

// backoffStart and backoffMax bound the monitoring loop's poll interval:
// it starts at 5ms and doubles up to a 100ms ceiling.
const (
	backoffStart = 5 * time.Millisecond
	backoffMax   = 100 * time.Millisecond
	tleGraceSec  = 1 * time.Second
	reapPoll     = 50 * time.Millisecond
)

// RunSupervisor is the long-running per-sandbox engine. It assembles the
// container filesystem and cgroup once, then services command frames off
// its own stdin until EOF, reporting one result block per frame on stdout.
func RunSupervisor(ctx *Context) error {
	if err := BuildContainerFS(ctx); err != nil {
		return errors.Wrap(err, "build container filesystem")
	}

	cg, err := NewCgroup(ctx.CgroupName())
	if err != nil {
		return errors.Wrap(err, "create cgroup")
	}

	selfPath, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "resolve self executable")
	}

	in := bufio.NewReader(os.Stdin)
	for {
		frame, err := ReadCommand(in)
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if err := runOneCommand(ctx, cg, selfPath, frame); err != nil {
			logger.Error("command cycle failed", logger.Ctx{"error": err.Error(), "sandbox_id": ctx.SandboxID})
		}
	}

	if err := cg.Delete(); err != nil {
		logger.Warn("cgroup delete failed", logger.Ctx{"error": err.Error()})
	}
	return nil
}

func runOneCommand(ctx *Context, cg *Cgroup, selfPath string, frame CommandFrame) error {
	cmdID := uuid.NewString()
	logCtx := logger.Ctx{"sandbox_id": ctx.SandboxID, "cmd_id": cmdID, "executable": frame.Executable}
	logger.Debug("starting command", logCtx)

	if err := syscalls.CloseNonstdFDs(); err != nil {
		return errors.Wrap(err, "close non-std fds")
	}

	s1Signal, s1Event, err := NewSyncPipe()
	if err != nil {
		return err
	}
	s2Signal, s2Event, err := NewSyncPipe()
	if err != nil {
		return err
	}

	spec := RunSpec{
		Executable: frame.Executable,
		Args:       frame.Args,
		Env:        ctx.Env,
		Stdin:      ctx.Stdin,
		Stdout:     ctx.Stdout,
		Stderr:     ctx.Stderr,
	}
	runEnv, err := EncodeRunSpec(spec)
	if err != nil {
		return err
	}

	child := exec.Command(selfPath, "__run")
	child.Env = append(os.Environ(), runSpecEnv+"="+runEnv)
	child.ExtraFiles = []*os.File{s1Signal.File(), s2Event.File()}
	// Go's forkAndExecInChild applies these, in the single-threaded window
	// between fork and exec, in the fixed order Chroot -> Credential ->
	// Dir. That is NOT the spec's chroot -> chdir -> drop-groups -> setresuid
	// order (original_source/sandbox/src/chroot.rs's apply_chroot chdirs
	// first, while still root); it is a deliberate, documented divergence —
	// see DESIGN.md's Open Question entry. Reordering would mean dropping
	// privileges with a hand-rolled setresuid/setgroups call from regular
	// Go code instead of during the fork/exec window, which is exactly the
	// unsafe-in-a-multithreaded-runtime hazard the self-re-exec design (see
	// DESIGN.md §"Core mechanism") exists to avoid, so it is not done here.
	// Practical effect: --working-dir must be traversable by the sandbox's
	// own uid/gid, not merely by root.
	child.SysProcAttr = &syscall.SysProcAttr{
		Chroot: ctx.ContainerPath,
		Credential: &syscall.Credential{
			Uid: uint32(ctx.SandboxUID),
			Gid: uint32(ctx.SandboxGID),
		},
	}
	child.Dir = ctx.WorkingDirectory

	if err := child.Start(); err != nil {
		logger.Error("spawn runner failed", logger.Ctx{"cmd_id": cmdID, "error": err.Error()})
		s1Signal.Close()
		s1Event.Close()
		s2Signal.Close()
		s2Event.Close()
		return WriteResultSetup(os.Stdout)
	}

	// The supervisor's copies of the runner's ends were duplicated into the
	// child at Start(); close them here so s1Event.Wait observes EOF once
	// the runner closes its own Signal end.
	s1Signal.Close()
	s2Event.Close()

	// S1 stays open after "ok" until the runner execs, so read only that far.
	head := make([]byte, 2)
	n, err := io.ReadFull(s1Event.r, head)
	if setupPayload := string(head[:n]); err != nil || setupPayload != "ok" {
		rest, _ := s1Event.Wait()
		setupPayload += rest
		switch setupPayload {
		case "err":
			logger.Warn("failed to redirect streams in the sandbox", logger.Ctx{"cmd_id": cmdID})
		default:
			logger.Warn("command setup failed", logger.Ctx{"cmd_id": cmdID, "payload": setupPayload})
		}
		s2Signal.Close()
		syscalls.WaitFor(child.Process.Pid)
		return WriteResultSetup(os.Stdout)
	}

	// Give the runner a moment to actually block on S2 before attaching it
	// to the cgroups and stamping t0.
	time.Sleep(time.Millisecond)

	if err := cg.SetPidMax(ctx.PidLimit); err != nil {
		return err
	}
	if err := cg.AddTask(child.Process.Pid); err != nil {
		return err
	}
	if err := cg.SetMemoryLimit(ctx.MemLimitBytes); err != nil {
		return err
	}

	cpuBefore, err := cg.CPUUsageNanos()
	if err != nil {
		return err
	}
	t0 := time.Now()

	if err := s2Signal.Send("ok"); err != nil {
		return err
	}

	// A successful exec closes S1 with nothing more written; a failed one
	// appends "exec" (the "okexec" payload) before the runner exits.
	if rest, err := s1Event.Wait(); err == nil && rest != "" {
		logger.Warn("failed to exec in the sandbox", logger.Ctx{"cmd_id": cmdID, "payload": "ok" + rest})
		syscalls.WaitFor(child.Process.Pid)
		return WriteResultSetup(os.Stdout)
	}

	status, killedTLE, cpuNanos := monitor(ctx, cg, child.Process.Pid, cpuBefore, t0)

	if err := sweep(cg); err != nil {
		logger.Warn("termination sweep failed", logger.Ctx{"cmd_id": cmdID, "error": err.Error()})
	}

	memPeak, err := cg.MemoryPeak()
	if err != nil {
		logger.Warn("memory peak read failed", logger.Ctx{"cmd_id": cmdID, "error": err.Error()})
	}
	logger.Debug("command finished", logger.Ctx{"cmd_id": cmdID, "killed_tle": killedTLE, "cpu_ms": cpuNanos / int64(time.Millisecond), "mem_peak_bytes": memPeak})
	return WriteResult(os.Stdout, status, killedTLE, cpuNanos/int64(time.Millisecond))
}

// monitor polls the command's pid until it exits or a limit is breached.
func monitor(ctx *Context, cg *Cgroup, pid int, cpuBefore int64, t0 time.Time) (status *ResultStatus, killedTLE bool, cpuNanos int64) {
	backoff := backoffStart
	for {
		ws, ok, err := syscalls.WaitForNoHang(pid)
		if err != nil {
			logger.Warn("wait_for_nohang failed", logger.Ctx{"error": err.Error()})
		}
		if ok {
			status = statusFromWait(ws)
			break
		}

		cpuNow, err := cg.CPUUsageNanos()
		if err == nil {
			cpuNanos = cpuNow - cpuBefore
		}
		wall := time.Since(t0)

		if wall > ctx.WallTimeLim || time.Duration(cpuNanos) > ctx.TimeLim+tleGraceSec {
			killedTLE = true
			break
		}

		time.Sleep(backoff)
		backoff *= 2
		if backoff > backoffMax {
			backoff = backoffMax
		}
	}

	if final, err := cg.CPUUsageNanos(); err == nil {
		cpuNanos = final - cpuBefore
	}
	if time.Duration(cpuNanos) > ctx.TimeLim {
		killedTLE = true
	}
	return status, killedTLE, cpuNanos
}

func statusFromWait(ws unix.WaitStatus) *ResultStatus {
	switch {
	case ws.Exited():
		return &ResultStatus{Kind: StatusCode, Value: ws.ExitStatus()}
	case ws.Signaled():
		return &ResultStatus{Kind: StatusSignal, Value: int(ws.Signal())}
	case ws.Stopped():
		return &ResultStatus{Kind: StatusSignal, Value: int(ws.StopSignal())}
	default:
		return nil
	}
}

// sweep freezes the pid controller against further forks, then mass-kills
// and drains the cgroup until it is empty and every descendant is reaped.
func sweep(cg *Cgroup) error {
	if err := cg.SetPidMax(0); err != nil {
		return err
	}

	for {
		tasks, err := cg.Tasks()
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			break
		}
		for _, pid := range tasks {
			syscalls.Kill(pid)
		}
		time.Sleep(reapPoll)
	}

	for {
		_, _, reaped, noChildren, err := syscalls.WaitAnyNoHang()
		if err != nil {
			return err
		}
		if noChildren {
			break
		}
		if !reaped {
			time.Sleep(reapPoll)
		}
	}
	return nil
}
