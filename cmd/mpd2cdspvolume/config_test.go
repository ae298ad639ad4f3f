package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30, cfg.DynamicRange)
	assert.Zero(t, cfg.VolumeOffset)
	assert.Equal(t, "127.0.0.1:6600", cfg.MPDAddr())
	assert.Equal(t, "ws://127.0.0.1:1234", cfg.CamillaDSPURL())
	assert.Equal(t, 500*time.Millisecond, cfg.CamillaDSPTimeout())
	assert.Empty(t, cfg.VolumeStateFile)
	assert.Empty(t, cfg.PIDFile)
	assert.Empty(t, cfg.IPC.SocketPath)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
dynamic_range: 60
volume_offset: -3.5
mpd:
  host: music.local
  port: 6601
  password: secret
camilladsp:
  port: 4321
volume_state_file: /var/lib/cdsp/statefile.yml
logging:
  level: debug
`)

	cfg, err := LoadConfigFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60, cfg.DynamicRange)
	assert.Equal(t, -3.5, cfg.VolumeOffset)
	assert.Equal(t, "music.local:6601", cfg.MPDAddr())
	assert.Equal(t, "secret", cfg.MPD.Password)
	assert.Equal(t, "ws://127.0.0.1:4321", cfg.CamillaDSPURL(), "unset keys keep their defaults")
	assert.Equal(t, "/var/lib/cdsp/statefile.yml", cfg.VolumeStateFile)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigFile_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "dynamic_rnage: 40\n"},
		{"wrong type", "mpd:\n  port: many\n"},
		{"trailing document", "dynamic_range: 40\n---\ndynamic_range: 50\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfigFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
	t.Run("empty path", func(t *testing.T) {
		_, err := LoadConfigFile("")
		assert.Error(t, err)
	})
}

func TestFlagOverrides_Apply(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VolumeStateFile = "/from/file.yml"

	host := "10.0.0.5"
	port := 6700
	offset := 0.0
	empty := ""
	FlagOverrides{
		MPDHost:         &host,
		MPDPort:         &port,
		VolumeOffset:    &offset,
		VolumeStateFile: &empty,
	}.Apply(&cfg)

	assert.Equal(t, "10.0.0.5:6700", cfg.MPDAddr())
	assert.Equal(t, 30, cfg.DynamicRange, "unset overrides leave values alone")
	assert.Empty(t, cfg.VolumeStateFile, "explicit empty value wins over the file")

	FlagOverrides{}.Apply(nil)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dynamic range", func(c *Config) { c.DynamicRange = 0 }},
		{"negative dynamic range", func(c *Config) { c.DynamicRange = -10 }},
		{"empty mpd host", func(c *Config) { c.MPD.Host = "" }},
		{"mpd port too large", func(c *Config) { c.MPD.Port = 70000 }},
		{"empty camilladsp host", func(c *Config) { c.CamillaDSP.Host = "" }},
		{"camilladsp port zero", func(c *Config) { c.CamillaDSP.Port = 0 }},
		{"zero timeout", func(c *Config) { c.CamillaDSP.TimeoutMS = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_ValidateExpandsPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := DefaultConfig()
	cfg.VolumeStateFile = "~/state.yml"
	cfg.PIDFile = "~/run/daemon.pid"
	require.NoError(t, cfg.Validate())

	assert.Equal(t, filepath.Join(home, "state.yml"), cfg.VolumeStateFile)
	assert.Equal(t, filepath.Join(home, "run", "daemon.pid"), cfg.PIDFile)
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "x"), ExpandPath("~/x"))
	assert.Equal(t, "~user/x", ExpandPath("~user/x"))
}

func TestCamillaDSPURL_IPv6Host(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CamillaDSP.Host = "::1"
	assert.Equal(t, "ws://[::1]:1234", cfg.CamillaDSPURL())
}
