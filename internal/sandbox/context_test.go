package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCgroupName(t *testing.T) {
	ctx := &Context{SandboxID: 42}
	assert.Equal(t, "omogen-42", ctx.CgroupName())
}

func TestCgroupNameZero(t *testing.T) {
	ctx := &Context{SandboxID: 0}
	assert.Equal(t, "omogen-0", ctx.CgroupName())
}
