package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// VolumeEngine is the subset of the CamillaDSP API the sink drives.
// *CamillaDSPClient implements it; tests substitute a fake.
type VolumeEngine interface {
	Connect() error
	IsConnected() bool
	SetVolume(targetDB float64) error
	GetVolume() (float64, error)
	Close() error
}

// VolumeSink applies volumes to CamillaDSP and falls back to the volume
// state file when CamillaDSP cannot be reached.
type VolumeSink struct {
	engine    VolumeEngine
	stateFile string // empty disables fallback persistence
	logger    *slog.Logger

	readbackDelay time.Duration
	toleranceDB   float64
}

// NewVolumeSink creates a sink for engine. stateFile may be empty.
func NewVolumeSink(engine VolumeEngine, stateFile string, logger *slog.Logger) *VolumeSink {
	if stateFile != "" {
		logger.Info("volume state file", "path", stateFile)
	}
	return &VolumeSink{
		engine:        engine,
		stateFile:     stateFile,
		logger:        logger,
		readbackDelay: readbackDelay,
		toleranceDB:   readbackToleranceDB,
	}
}

// SetVolume applies volumeDB to CamillaDSP. It returns false when CamillaDSP
// was unavailable and the value went to the state file instead.
func (s *VolumeSink) SetVolume(ctx context.Context, volumeDB float64) bool {
	if err := s.apply(ctx, volumeDB); err != nil {
		s.logger.Info("CamillaDSP unavailable; updating volume state file", "volume_db", volumeDB, "error", err)
		s.PersistFallbackState(volumeDB, false)
		return false
	}
	return true
}

func (s *VolumeSink) apply(ctx context.Context, volumeDB float64) error {
	if !s.engine.IsConnected() {
		if err := s.engine.Connect(); err != nil {
			return err
		}
	}

	if err := s.engine.SetVolume(volumeDB); err != nil {
		return err
	}

	if err := sleepContext(ctx, s.readbackDelay); err != nil {
		// Shutting down; the write itself went through.
		return nil
	}

	got, err := s.engine.GetVolume()
	if err != nil {
		return err
	}
	if math.Abs(got-volumeDB) > s.toleranceDB {
		s.logger.Debug("volume readback mismatch; resending", "target_db", volumeDB, "readback_db", got)
		if err := s.engine.SetVolume(volumeDB); err != nil {
			return err
		}
	}
	return nil
}

// PersistFallbackState writes volumeDB and mute into slot 0 of the state
// file, keeping the other slots. Errors are logged, never returned.
func (s *VolumeSink) PersistFallbackState(volumeDB float64, mute bool) {
	if s.stateFile == "" {
		return
	}

	st, err := loadFallbackState(s.stateFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("volume state file unusable; starting from defaults", "path", s.stateFile, "error", err)
		}
		st = defaultFallbackState()
	}

	st.Volume[0] = volumeDB
	st.Mute[0] = mute

	if err := saveFallbackState(s.stateFile, st); err != nil {
		s.logger.Error("failed to update volume state file", "path", s.stateFile, "error", err)
		return
	}
	s.logger.Debug("volume state file updated", "path", s.stateFile, "volume_db", volumeDB, "mute", mute)
}

// EnsureStateFile makes sure a valid state file exists before the daemon
// starts, creating or recreating it from the default template. It returns
// false only when the file cannot be written at all.
func (s *VolumeSink) EnsureStateFile() bool {
	if s.stateFile == "" {
		return true
	}

	dir := filepath.Dir(s.stateFile)
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		s.logger.Error("volume state file directory is not writable", "dir", dir, "error", err)
		return false
	}

	_, err := loadFallbackState(s.stateFile)
	switch {
	case err == nil:
		return true
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info("creating volume state file", "path", s.stateFile)
	case errors.Is(err, errInvalidState):
		s.logger.Warn("volume state file is invalid; recreating", "path", s.stateFile, "error", err)
	default:
		s.logger.Error("cannot read volume state file", "path", s.stateFile, "error", err)
		return false
	}

	if err := saveFallbackState(s.stateFile, defaultFallbackState()); err != nil {
		s.logger.Error("cannot create volume state file", "path", s.stateFile, "error", err)
		return false
	}
	return true
}

// StoreVolume is the SIGHUP handler. CamillaDSP persists its own volume
// since 2.0, so this only logs; it must not open a connection while the
// system may be shutting CamillaDSP down.
func (s *VolumeSink) StoreVolume() {
	s.logger.Warn("store volume on SIGHUP is no longer supported; CamillaDSP keeps its own state file")
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

