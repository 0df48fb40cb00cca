package sandbox

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCommandRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frame := CommandFrame{Executable: "/bin/sh", Args: []string{"-c", "exit 7"}}
	require.NoError(t, WriteCommand(&buf, frame))

	got, err := ReadCommand(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, frame, got)
}

func TestReadCommandRejectsZeroTokens(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0}))
	_, err := ReadCommand(r)
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestReadCommandEOFBetweenFrames(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader(nil))
	_, err := ReadCommand(r)
	assert.Equal(t, io.EOF, err)
}

func TestWriteResultCleanExit(t *testing.T) {
	var buf bytes.Buffer
	status := &ResultStatus{Kind: StatusCode, Value: 0}
	require.NoError(t, WriteResult(&buf, status, false, 12))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"code 0", "cpu 12", "done"}, lines)
}

func TestWriteResultSignal(t *testing.T) {
	var buf bytes.Buffer
	status := &ResultStatus{Kind: StatusSignal, Value: 9}
	require.NoError(t, WriteResult(&buf, status, false, 3))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"signal 9", "cpu 3", "done"}, lines)
}

func TestWriteResultKilledTLEWithStatus(t *testing.T) {
	var buf bytes.Buffer
	status := &ResultStatus{Kind: StatusSignal, Value: 9}
	require.NoError(t, WriteResult(&buf, status, true, 150))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"killed tle", "signal 9", "cpu 150", "done"}, lines)
}

func TestWriteResultKilledTLENoStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResult(&buf, nil, true, 500))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"killed tle", "cpu 500", "done"}, lines)
}

func TestWriteResultSetupHasNoCPULine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResultSetup(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"killed setup", "done"}, lines)
}
