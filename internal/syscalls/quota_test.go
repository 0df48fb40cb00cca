package syscalls

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadProcMountsParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mounts")
	content := "sysfs /sys sysfs rw,nosuid 0 0\n/dev/sda1 / ext4 rw,relatime 0 0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	old := procMountsPath
	procMountsPath = path
	defer func() { procMountsPath = old }()

	entries, err := ReadProcMounts()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, MountEntry{Source: "sysfs", Dest: "/sys", FSType: "sysfs"}, entries[0])
	assert.Equal(t, MountEntry{Source: "/dev/sda1", Dest: "/", FSType: "ext4"}, entries[1])
}

func TestQuotactlCmdEncodesSubcmdAndType(t *testing.T) {
	assert.Equal(t, 0x800<<qCmdShift, quotactlCmd(0x800, usrquota))
}
