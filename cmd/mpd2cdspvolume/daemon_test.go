package main

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDaemon_SyncsAndStopsOnCancel(t *testing.T) {
	engine := &fakeEngine{connected: true}
	sink := newTestSink(t, engine, "")
	player := newFakePlayer(false, 25, mixerChange(60))
	status := &SyncStatus{}
	monitor := NewMixerMonitor(player, sink, 30, 0, status, testLogger(t))

	dir, err := os.MkdirTemp("", "cdspvol")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "ctl.sock")

	hup := make(chan os.Signal, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, monitor, sink, hup, socket, status, testLogger(t)) }()

	select {
	case <-player.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not consume all idle steps")
	}

	var resp IPCResponse
	require.Eventually(t, func() bool {
		resp, err = SendIPCRequest(socket, IPCRequest{Type: "status"}, 200*time.Millisecond)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.NotNil(t, resp.Data)
	require.NotNil(t, resp.Data.MixerVolume)
	assert.Equal(t, 60, *resp.Data.MixerVolume)
	assert.True(t, resp.Data.MPDConnected)
	assert.True(t, resp.Data.AppliedLive)

	// SIGHUP is accepted and must not stop anything.
	hup <- syscall.SIGHUP
	_, err = SendIPCRequest(socket, IPCRequest{Type: "ping"}, 200*time.Millisecond)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after cancellation")
	}

	assert.Equal(t, curveDB(25, 60), engine.setCalls)
	assert.True(t, player.closed)
	assert.False(t, status.Snapshot().MPDConnected)
}

func TestRunDaemon_WithoutControlSocket(t *testing.T) {
	sink := newTestSink(t, &fakeEngine{connected: true}, "")
	player := newFakePlayer(true, 0)
	monitor := NewMixerMonitor(player, sink, 30, 0, nil, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runDaemon(ctx, monitor, sink, make(chan os.Signal), "", &SyncStatus{}, testLogger(t)) }()

	<-player.drained
	cancel()
	require.NoError(t, <-done)
}

func TestRunDaemon_ControlSocketFailureStopsDaemon(t *testing.T) {
	sink := newTestSink(t, &fakeEngine{connected: true}, "")
	player := newFakePlayer(true, 0)
	monitor := NewMixerMonitor(player, sink, 30, 0, nil, testLogger(t))

	socket := filepath.Join(t.TempDir(), "no", "such", "dir", "ctl.sock")
	err := runDaemon(context.Background(), monitor, sink, make(chan os.Signal), socket, &SyncStatus{}, testLogger(t))
	assert.Error(t, err)
	assert.True(t, player.closed)
}
