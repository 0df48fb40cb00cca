package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withScratchCgroupRoot points cgroupRoot at a temp directory so these
// tests exercise the real file read/write paths without a live cgroup v2
// filesystem.
func withScratchCgroupRoot(t *testing.T) {
	t.Helper()
	old := cgroupRoot
	cgroupRoot = t.TempDir()
	t.Cleanup(func() { cgroupRoot = old })
}

func TestNewCgroupEnablesControllersOnParent(t *testing.T) {
	withScratchCgroupRoot(t)

	_, err := NewCgroup("omogen-7")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cgroupRoot, "cgroup.subtree_control"))
	require.NoError(t, err)
	assert.Equal(t, "+memory +cpu +pids", string(data))

	_, err = os.Stat(filepath.Join(cgroupRoot, "omogen-7", "cgroup.subtree_control"))
	assert.True(t, os.IsNotExist(err), "the leaf cgroup should not have its own subtree_control written")
}

func TestCgroupTasksEmptyInitially(t *testing.T) {
	withScratchCgroupRoot(t)

	cg, err := NewCgroup("omogen-8")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cgroupRoot, "omogen-8", "cgroup.procs"), nil, 0644))

	tasks, err := cg.Tasks()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestCgroupAddTaskAndTasks(t *testing.T) {
	withScratchCgroupRoot(t)

	cg, err := NewCgroup("omogen-9")
	require.NoError(t, err)
	require.NoError(t, cg.AddTask(4242))

	tasks, err := cg.Tasks()
	require.NoError(t, err)
	assert.Equal(t, []int{4242}, tasks)
}

func TestCPUUsageNanosParsesUsageUsec(t *testing.T) {
	withScratchCgroupRoot(t)

	cg, err := NewCgroup("omogen-10")
	require.NoError(t, err)
	stat := "usage_usec 1500\nuser_usec 1000\nsystem_usec 500\n"
	require.NoError(t, os.WriteFile(filepath.Join(cgroupRoot, "omogen-10", "cpu.stat"), []byte(stat), 0644))

	nanos, err := cg.CPUUsageNanos()
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), nanos)
}

func TestMemoryPeakParsesValue(t *testing.T) {
	withScratchCgroupRoot(t)

	cg, err := NewCgroup("omogen-11")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cgroupRoot, "omogen-11", "memory.peak"), []byte("104857600\n"), 0644))

	peak, err := cg.MemoryPeak()
	require.NoError(t, err)
	assert.Equal(t, int64(104857600), peak)
}

func TestDeleteRemovesCgroupDir(t *testing.T) {
	withScratchCgroupRoot(t)

	cg, err := NewCgroup("omogen-12")
	require.NoError(t, err)
	require.NoError(t, cg.Delete())

	_, err = os.Stat(cg.path)
	assert.True(t, os.IsNotExist(err))
}
