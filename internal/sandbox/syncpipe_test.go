package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncPipeSendThenWait(t *testing.T) {
	signal, event, err := NewSyncPipe()
	require.NoError(t, err)

	done := make(chan struct{})
	var payload string
	var waitErr error
	go func() {
		payload, waitErr = event.Wait()
		close(done)
	}()

	require.NoError(t, signal.Send("ok"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event.Wait did not return after signal.Send")
	}

	require.NoError(t, waitErr)
	assert.Equal(t, "ok", payload)
}

func TestSyncPipeCloseWithoutSendYieldsEmptyPayload(t *testing.T) {
	signal, event, err := NewSyncPipe()
	require.NoError(t, err)

	require.NoError(t, signal.Close())

	payload, err := event.Wait()
	require.NoError(t, err)
	assert.Equal(t, "", payload)
}

func TestSyncPipeSendKeepOpenComposes(t *testing.T) {
	signal, event, err := NewSyncPipe()
	require.NoError(t, err)

	done := make(chan struct{})
	var payload string
	go func() {
		payload, _ = event.Wait()
		close(done)
	}()

	require.NoError(t, signal.SendKeepOpen("ok"))
	require.NoError(t, signal.SendKeepOpen("exec"))
	require.NoError(t, signal.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event.Wait did not return after signal.Close")
	}

	assert.Equal(t, "okexec", payload)
}
