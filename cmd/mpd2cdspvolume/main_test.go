package main

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Empty(t, opts.configPath)
	assert.False(t, opts.verbose)
	assert.Equal(t, FlagOverrides{}, opts.overrides, "defaults are not overrides")

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseFlags_Overrides(t *testing.T) {
	opts, err := parseFlags([]string{
		"--mpd_host", "music.local",
		"--mpd_port=6601",
		"--cdsp_port", "4321",
		"--dynamic_range", "50",
		"--volume_offset", "-6",
		"-s", "/tmp/state.yml",
		"-p", "/tmp/daemon.pid",
	}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "music.local:6601", cfg.MPDAddr())
	assert.Equal(t, "ws://127.0.0.1:4321", cfg.CamillaDSPURL())
	assert.Equal(t, 50, cfg.DynamicRange)
	assert.Equal(t, -6.0, cfg.VolumeOffset)
	assert.Equal(t, "/tmp/state.yml", cfg.VolumeStateFile)
	assert.Equal(t, "/tmp/daemon.pid", cfg.PIDFile)
}

func TestParseFlags_FlagsBeatConfigFile(t *testing.T) {
	path := writeConfig(t, "dynamic_range: 60\nmpd:\n  host: from-file\n")

	opts, err := parseFlags([]string{"-c", path, "--dynamic_range", "40"}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.DynamicRange)
	assert.Equal(t, "from-file", cfg.MPD.Host)
}

func TestParseFlags_VerboseForcesDebug(t *testing.T) {
	opts, err := parseFlags([]string{"-v", "--log_level", "error"}, io.Discard)
	require.NoError(t, err)

	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestParseFlags_Errors(t *testing.T) {
	_, err := parseFlags([]string{"extra"}, io.Discard)
	assert.Error(t, err)

	_, err = parseFlags([]string{"--no_such_flag"}, io.Discard)
	assert.Error(t, err)

	var stderr bytes.Buffer
	_, err = parseFlags([]string{"--help"}, &stderr)
	assert.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, stderr.String(), "--dynamic_range")
}

func TestLoadConfig_InvalidDynamicRange(t *testing.T) {
	opts, err := parseFlags([]string{"--dynamic_range", "0"}, io.Discard)
	require.NoError(t, err)

	_, err = loadConfig(opts)
	assert.Error(t, err)
}

func TestRun_ExitCodes(t *testing.T) {
	assert.Equal(t, 0, run([]string{"--version"}))
	assert.Equal(t, 2, run([]string{"--bogus"}))
	assert.Equal(t, 1, run([]string{"--dynamic_range=-1"}))
}

func TestNotifySignals(t *testing.T) {
	ctx, hup, stop := notifySignals()
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
	select {
	case <-hup:
	case <-time.After(5 * time.Second):
		t.Fatal("SIGHUP not delivered")
	}
	require.NoError(t, ctx.Err(), "SIGHUP does not stop the daemon")

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("SIGTERM did not cancel the context")
	}
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, ln.Close())
	return port
}

func TestRun_SIGTERMDuringStartupReleasesPIDFile(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "mpd2cdspvolume.pid")
	args := []string{
		"--mpd_port", closedPort(t),
		"--cdsp_port", closedPort(t),
		"--pid_file", pidPath,
		"--log_level", "error",
	}

	done := make(chan int, 1)
	go func() { done <- run(args) }()

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(pidPath)
		return err == nil && string(bytes.TrimSpace(b)) == strconv.Itoa(os.Getpid())
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop on SIGTERM")
	}
	assert.NoFileExists(t, pidPath)
}
