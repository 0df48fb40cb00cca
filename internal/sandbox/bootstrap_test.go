package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsOutOfRangeSandboxID(t *testing.T) {
	assert.Error(t, validate(&Context{SandboxID: -1}))
	assert.Error(t, validate(&Context{SandboxID: MaxSandboxID}))
}

func TestValidateAcceptsInRangeSandboxID(t *testing.T) {
	assert.NoError(t, validate(&Context{SandboxID: 0}))
	assert.NoError(t, validate(&Context{SandboxID: MaxSandboxID - 1}))
}
