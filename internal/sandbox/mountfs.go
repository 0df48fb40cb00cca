package sandbox

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/jsannemo/omogenexec/internal/syscalls"
)

// defaultMounts are bind-mounted read-only whenever Context.DefaultMounts is
// set, in this order, before any user-supplied spec.
var defaultMounts = []string{"/bin", "/usr/bin", "/usr/lib", "/lib"}

// optionalDefaultMounts are bind-mounted the same way, but only if present
// on the host; they cover the 32-bit/multilib variance across distros.
var optionalDefaultMounts = []string{"/usr/lib32", "/lib64", "/lib32"}

// BuildContainerFS assembles the full container root filesystem for ctx:
// the container directory itself, a private mount namespace, procfs, the
// default system mounts, then the readable specs, then the writable specs,
// then the optional multilib mounts. Writable specs are applied after
// readable ones so that a shared inside path ends up writable, per the
// mount ordering invariant.
func BuildContainerFS(ctx *Context) error {
	if err := syscalls.MkdirAll(ctx.ContainerPath, 0755); err != nil {
		return err
	}
	if err := syscalls.PrivatizeMounts(); err != nil {
		return err
	}
	if err := mountProcfs(ctx.ContainerPath); err != nil {
		return err
	}

	if ctx.DefaultMounts {
		for _, dir := range defaultMounts {
			if err := makeMount(ctx.ContainerPath, MountSpec{Outside: dir, Inside: dir, Writable: false}); err != nil {
				return err
			}
		}
	}

	for _, spec := range ctx.Readable {
		if err := makeMount(ctx.ContainerPath, spec); err != nil {
			return err
		}
	}
	for _, spec := range ctx.Writable {
		if err := makeMount(ctx.ContainerPath, spec); err != nil {
			return err
		}
	}

	if ctx.DefaultMounts {
		for _, dir := range optionalDefaultMounts {
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := makeMount(ctx.ContainerPath, MountSpec{Outside: dir, Inside: dir, Writable: false}); err != nil {
				return err
			}
		}

		extra, err := LoadExtraDefaultMounts()
		if err != nil {
			return err
		}
		for _, dir := range extra {
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := makeMount(ctx.ContainerPath, MountSpec{Outside: dir, Inside: dir, Writable: false}); err != nil {
				return err
			}
		}
	}

	return nil
}

// makeMount validates and applies one MountSpec under containerRoot.
func makeMount(containerRoot string, spec MountSpec) error {
	if !filepath.IsAbs(spec.Outside) {
		return errors.Errorf("mount spec outside path %q is not absolute", spec.Outside)
	}

	target := filepath.Join(containerRoot, strings.TrimPrefix(spec.Inside, "/"))
	if err := syscalls.MkdirAll(target, 0755); err != nil {
		return err
	}

	return syscalls.Mount(spec.Outside, target, spec.Writable)
}

func mountProcfs(containerRoot string) error {
	target := filepath.Join(containerRoot, "proc")
	if err := syscalls.MkdirAll(target, 0755); err != nil {
		return err
	}
	return syscalls.MountProc(target)
}
