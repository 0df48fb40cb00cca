package syscalls

import (
	"bufio"
	"os"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// GetDevice returns the device number backing path, i.e. stat(2)'s st_dev.
func GetDevice(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, errors.Wrapf(err, "stat %s", path)
	}
	return uint64(st.Dev), nil
}

// MountEntry is one parsed line of /proc/self/mounts.
type MountEntry struct {
	Source string
	Dest   string
	FSType string
}

// procMountsPath is a package variable rather than a constant so tests can
// point it at a fixture file instead of the real /proc/self/mounts.
var procMountsPath = "/proc/self/mounts"

// ReadProcMounts parses /proc/self/mounts, the same information
// original_source's `proc_mounts` crate exposed to the Rust quota manager.
func ReadProcMounts() ([]MountEntry, error) {
	f, err := os.Open(procMountsPath)
	if err != nil {
		return nil, errors.Wrap(err, "open /proc/self/mounts")
	}
	defer f.Close()

	var entries []MountEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		entries = append(entries, MountEntry{Source: fields[0], Dest: fields[1], FSType: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan /proc/self/mounts")
	}
	return entries, nil
}

// dqblk mirrors struct if_dqblk from <linux/quota.h>, the payload
// quotactl(2) expects for Q_SETQUOTA.
type dqblk struct {
	BHardlimit uint64
	BSoftlimit uint64
	CurSpace   uint64
	IHardlimit uint64
	ISoftlimit uint64
	CurInodes  uint64
	BTime      uint64
	ITime      uint64
	Valid      uint32
	_          [4]byte
}

const (
	qifBlimits = 1
	qifIlimits = 2
	qifLimits  = qifBlimits | qifIlimits
	qCmdShift  = 8
	usrquota   = 0
)

func quotactlCmd(subcmd int, qtype int) int {
	return (subcmd << qCmdShift) | qtype
}

// SetUserQuota installs a block/inode quota for uid on the filesystem whose
// block device is dev, via quotactl(2) Q_SETQUOTA|USRQUOTA.
func SetUserQuota(blocks, inodes uint64, dev string, uid int) error {
	q := dqblk{
		BHardlimit: blocks,
		BSoftlimit: blocks,
		IHardlimit: inodes,
		ISoftlimit: inodes,
		Valid:      qifLimits,
	}

	cmd := quotactlCmd(int(unix.Q_SETQUOTA), usrquota)
	devBytes, err := unix.BytePtrFromString(dev)
	if err != nil {
		return errors.Wrapf(err, "encode device path %s", dev)
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_QUOTACTL,
		uintptr(cmd),
		uintptr(unsafe.Pointer(devBytes)),
		uintptr(uid),
		uintptr(unsafe.Pointer(&q)),
		0, 0,
	)
	if errno != 0 {
		return errors.Wrapf(errno, "quotactl Q_SETQUOTA uid=%d dev=%s", uid, dev)
	}
	return nil
}
