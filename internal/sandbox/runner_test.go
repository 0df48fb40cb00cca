package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRunSpecRoundTrips(t *testing.T) {
	spec := RunSpec{
		Executable: "/bin/echo",
		Args:       []string{"hi"},
		Env:        []string{"PATH=/bin"},
		Stdin:      "/in",
		Stdout:     "/out",
		Stderr:     "",
	}
	raw, err := EncodeRunSpec(spec)
	require.NoError(t, err)
	assert.Contains(t, raw, "/bin/echo")

	var decoded RunSpec
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, spec, decoded)
}

func TestLookPathAbsoluteIsUnchanged(t *testing.T) {
	path, err := lookPath("/bin/sh", nil)
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", path)
}

func TestLookPathSearchesSpecPATH(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "mytool")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

	path, err := lookPath("mytool", []string{"PATH=" + dir})
	require.NoError(t, err)
	assert.Equal(t, bin, path)
}

func TestLookPathNotFoundInSpecPATH(t *testing.T) {
	dir := t.TempDir()
	_, err := lookPath("doesnotexist", []string{"PATH=" + dir})
	assert.Error(t, err)
}
