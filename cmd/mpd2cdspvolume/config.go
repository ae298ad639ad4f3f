package main

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the mpd2cdspvolume daemon.
//
// Keep defaults and validation centralized so the rest of the code can
// assume a well-formed config.
type Config struct {
	// Loudness curve
	DynamicRange int     `yaml:"dynamic_range"`
	VolumeOffset float64 `yaml:"volume_offset"`

	MPD        MPDConfig        `yaml:"mpd"`
	CamillaDSP CamillaDSPConfig `yaml:"camilladsp"`

	// Optional files; empty disables them.
	VolumeStateFile string `yaml:"volume_state_file,omitempty"`
	PIDFile         string `yaml:"pid_file,omitempty"`

	IPC     IPCConfig     `yaml:"ipc"`
	Logging LoggingConfig `yaml:"logging"`
}

type MPDConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password,omitempty"`
}

type CamillaDSPConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		DynamicRange: defaultDynamicRangeDB,
		VolumeOffset: defaultVolumeOffsetDB,
		MPD: MPDConfig{
			Host: defaultMPDHost,
			Port: defaultMPDPort,
		},
		CamillaDSP: CamillaDSPConfig{
			Host:      defaultCamillaDSPHost,
			Port:      defaultCamillaDSPPort,
			TimeoutMS: defaultReadTimeoutMS,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the defaults.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds values from command-line flags that were explicitly
// set. A nil pointer leaves the config value alone; a non-nil one is applied
// even if it is a zero value.
type FlagOverrides struct {
	MPDHost *string
	MPDPort *int

	CamillaHost *string
	CamillaPort *int

	DynamicRange *int
	VolumeOffset *float64

	VolumeStateFile *string
	PIDFile         *string
	IPCSocketPath   *string

	LogLevel *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.MPDHost != nil {
		cfg.MPD.Host = *o.MPDHost
	}
	if o.MPDPort != nil {
		cfg.MPD.Port = *o.MPDPort
	}
	if o.CamillaHost != nil {
		cfg.CamillaDSP.Host = *o.CamillaHost
	}
	if o.CamillaPort != nil {
		cfg.CamillaDSP.Port = *o.CamillaPort
	}
	if o.DynamicRange != nil {
		cfg.DynamicRange = *o.DynamicRange
	}
	if o.VolumeOffset != nil {
		cfg.VolumeOffset = *o.VolumeOffset
	}
	if o.VolumeStateFile != nil {
		cfg.VolumeStateFile = *o.VolumeStateFile
	}
	if o.PIDFile != nil {
		cfg.PIDFile = *o.PIDFile
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// It also expands "~" in file paths.
func (c *Config) Validate() error {
	if c.DynamicRange <= 0 {
		return fmt.Errorf("dynamic_range must be > 0 (got %d)", c.DynamicRange)
	}

	if c.MPD.Host == "" {
		return errors.New("mpd.host must not be empty")
	}
	if err := validatePort("mpd.port", c.MPD.Port); err != nil {
		return err
	}

	if c.CamillaDSP.Host == "" {
		return errors.New("camilladsp.host must not be empty")
	}
	if err := validatePort("camilladsp.port", c.CamillaDSP.Port); err != nil {
		return err
	}
	if c.CamillaDSP.TimeoutMS <= 0 {
		return errors.New("camilladsp.timeout_ms must be > 0")
	}

	c.VolumeStateFile = ExpandPath(c.VolumeStateFile)
	c.PIDFile = ExpandPath(c.PIDFile)
	c.IPC.SocketPath = ExpandPath(c.IPC.SocketPath)

	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535 (got %d)", name, port)
	}
	return nil
}

// MPDAddr returns the host:port MPD listens on.
func (c *Config) MPDAddr() string {
	return net.JoinHostPort(c.MPD.Host, strconv.Itoa(c.MPD.Port))
}

// CamillaDSPURL returns the CamillaDSP websocket URL.
func (c *Config) CamillaDSPURL() string {
	return camillaDSPURL(c.CamillaDSP.Host, c.CamillaDSP.Port)
}

// CamillaDSPTimeout returns the websocket response timeout.
func (c *Config) CamillaDSPTimeout() time.Duration {
	return time.Duration(c.CamillaDSP.TimeoutMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
