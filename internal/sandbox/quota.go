package sandbox

import (
	"github.com/pkg/errors"

	"github.com/jsannemo/omogenexec/internal/syscalls"
)

// ApplyQuota installs a block/inode quota for uid on the host filesystem
// backing containerPath. It resolves containerPath's device, then scans
// /proc/self/mounts for the mount whose destination shares that device; the
// source of that mount is the block device quotactl needs.
func ApplyQuota(containerPath string, blocks, inodes uint64, uid int) error {
	wantDev, err := syscalls.GetDevice(containerPath)
	if err != nil {
		return err
	}

	mounts, err := syscalls.ReadProcMounts()
	if err != nil {
		return err
	}

	for _, m := range mounts {
		dev, err := syscalls.GetDevice(m.Dest)
		if err != nil {
			continue
		}
		if dev != wantDev {
			continue
		}
		return syscalls.SetUserQuota(blocks, inodes, m.Source, uid)
	}

	return errors.Errorf("no mount found backing device of %s", containerPath)
}
