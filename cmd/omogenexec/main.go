// Command omogenexec runs one judge sandbox: a container built from bind
// mounts and cgroups that repeatedly executes submitted commands under a
// dedicated UID and reports exit status, CPU time and memory usage.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsannemo/omogenexec/internal/logger"
	"github.com/jsannemo/omogenexec/internal/sandbox"
)

// Hidden re-exec entrypoints are intercepted before cobra ever sees argv:
// they carry their state over pipes/env rather than flags, and must not be
// reachable as ordinary subcommands a user could type.
func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "__supervisor":
			runHidden(sandbox.SupervisorEntrypoint)
		case "__run":
			runHidden(sandbox.RunTrampoline)
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func runHidden(entry func() error) {
	if err := entry(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(0)
}

type cmdFlags struct {
	sandboxID       int
	stdin           string
	stdout          string
	stderr          string
	readable        []string
	writable        []string
	workingDir      string
	noDefaultMounts bool
	env             []string
	blocks          uint64
	inodes          uint64
	memoryMB        int64
	timeLimMs       int64
	wallTimeLimMs   int64
	pidLimit        int64
	debug           bool
}

func newRootCmd() *cobra.Command {
	var f cmdFlags

	cmd := &cobra.Command{
		Use:   "omogenexec",
		Short: "Run one judge sandbox instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.SetDebug(f.debug)
			ctx, err := buildContext(f)
			if err != nil {
				return err
			}
			return sandbox.Bootstrap(ctx)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.sandboxID, "sandbox-id", -1, "sandbox identifier, in [0, 100)")
	flags.StringVar(&f.stdin, "stdin", "", "path inside the container for command stdin, empty to close")
	flags.StringVar(&f.stdout, "stdout", "", "path inside the container for command stdout, empty to close")
	flags.StringVar(&f.stderr, "stderr", "", "path inside the container for command stderr, empty to close")
	flags.StringArrayVar(&f.readable, "readable", nil, "outside[:inside] read-only bind mount, repeatable")
	flags.StringArrayVar(&f.writable, "writable", nil, "outside[:inside] writable bind mount, repeatable")
	flags.StringVar(&f.workingDir, "working-dir", "/", "working directory inside the container")
	flags.BoolVar(&f.noDefaultMounts, "no-default-mounts", false, "skip the standard system bind mounts")
	flags.StringArrayVar(&f.env, "env", nil, "KEY=VALUE environment entry, repeatable")
	flags.Uint64Var(&f.blocks, "blocks", 0, "filesystem quota, in 1K blocks")
	flags.Uint64Var(&f.inodes, "inodes", 0, "filesystem quota, inode count")
	flags.Int64Var(&f.memoryMB, "memory-mb", 256, "memory limit in megabytes")
	flags.Int64Var(&f.timeLimMs, "time-lim-ms", 1000, "CPU time limit in milliseconds")
	flags.Int64Var(&f.wallTimeLimMs, "wall-time-lim-ms", 5000, "wall clock time limit in milliseconds")
	flags.Int64Var(&f.pidLimit, "pid-limit", 64, "maximum live processes per command")
	flags.BoolVar(&f.debug, "debug", false, "enable debug-level diagnostics")
	cmd.MarkFlagRequired("sandbox-id")

	return cmd
}

func buildContext(f cmdFlags) (*sandbox.Context, error) {
	if f.sandboxID < 0 || f.sandboxID >= sandbox.MaxSandboxID {
		return nil, fmt.Errorf("--sandbox-id must be in [0, %d), got %d", sandbox.MaxSandboxID, f.sandboxID)
	}

	readable := make([]sandbox.MountSpec, 0, len(f.readable))
	for _, tok := range f.readable {
		readable = append(readable, sandbox.ParseMountSpec(tok, false))
	}
	writable := make([]sandbox.MountSpec, 0, len(f.writable))
	for _, tok := range f.writable {
		writable = append(writable, sandbox.ParseMountSpec(tok, true))
	}

	for _, kv := range f.env {
		if !strings.Contains(kv, "=") {
			return nil, fmt.Errorf("--env entry %q is not KEY=VALUE", kv)
		}
	}

	return &sandbox.Context{
		SandboxID:        f.sandboxID,
		ContainerPath:    sandbox.RootPrefix + "/sandbox/" + strconv.Itoa(f.sandboxID),
		Stdin:            f.stdin,
		Stdout:           f.stdout,
		Stderr:           f.stderr,
		Readable:         readable,
		Writable:         writable,
		WorkingDirectory: f.workingDir,
		Env:              f.env,
		MemLimitBytes:    f.memoryMB * 1024 * 1024,
		PidLimit:         f.pidLimit,
		TimeLim:          time.Duration(f.timeLimMs) * time.Millisecond,
		WallTimeLim:      time.Duration(f.wallTimeLimMs) * time.Millisecond,
		DefaultMounts:    !f.noDefaultMounts,
		Blocks:           f.blocks,
		Inodes:           f.inodes,
	}, nil
}
