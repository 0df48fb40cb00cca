package sandbox

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMountSpecNoColon(t *testing.T) {
	spec := ParseMountSpec("/data", true)
	assert.Equal(t, "/data", spec.Outside)
	assert.Equal(t, "/data", spec.Inside)
	assert.True(t, spec.Writable)
}

func TestParseMountSpecWithColon(t *testing.T) {
	spec := ParseMountSpec("/host/tools:/usr/local/tools", false)
	assert.Equal(t, "/host/tools", spec.Outside)
	assert.Equal(t, "/usr/local/tools", spec.Inside)
	assert.False(t, spec.Writable)
}

func TestMakeMountRejectsRelativeOutside(t *testing.T) {
	err := makeMount("/var/lib/omogen/sandbox/3", MountSpec{Outside: "relative/path", Inside: "x"})
	assert.Error(t, err)
}

// makeMount itself performs a real bind mount, so this recomputes its target
// with the same join it uses and checks that result.
func TestMakeMountTargetIsUnderContainerRoot(t *testing.T) {
	root := "/var/lib/omogen/sandbox/3"
	spec := MountSpec{Outside: "/usr/bin", Inside: "/usr/bin"}

	target := filepath.Join(root, strings.TrimPrefix(spec.Inside, "/"))
	assert.True(t, isSubpath(root, target))
}

func isSubpath(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, "../")
}
