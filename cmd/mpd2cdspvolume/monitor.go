package main

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"
)

// VolumeSetter applies a volume downstream. It reports false when the value
// could only be written to the fallback state.
type VolumeSetter interface {
	SetVolume(ctx context.Context, volumeDB float64) bool
}

// MixerMonitor follows MPD's mixer and forwards every change to a
// VolumeSetter.
//
// It has two states. Idle-waiting blocks in PlayerClient.Idle; when the
// session breaks it switches to reconnecting, which retries Connect every
// reconnectBackoff and then resynchronizes. Run is the only goroutine that
// touches the player or lastSynced.
type MixerMonitor struct {
	player PlayerClient
	sink   VolumeSetter
	logger *slog.Logger
	status *SyncStatus

	dynamicRangeDB float64
	volumeOffsetDB float64

	// lastSynced is the last mixer percentage handed to the sink. nil means
	// nothing has been synchronized on the current session.
	lastSynced *int

	reconnectBackoff time.Duration
	unmuteRetryDelay time.Duration
}

// NewMixerMonitor creates a monitor. dynamicRangeDB must be > 0; the config
// layer enforces that.
func NewMixerMonitor(player PlayerClient, sink VolumeSetter, dynamicRangeDB, volumeOffsetDB float64, status *SyncStatus, logger *slog.Logger) *MixerMonitor {
	if status == nil {
		status = &SyncStatus{}
	}
	return &MixerMonitor{
		player:           player,
		sink:             sink,
		logger:           logger,
		status:           status,
		dynamicRangeDB:   dynamicRangeDB,
		volumeOffsetDB:   volumeOffsetDB,
		reconnectBackoff: mpdReconnectBackoff,
		unmuteRetryDelay: unmuteRetryDelay,
	}
}

// Run monitors MPD until ctx is canceled, then closes the MPD session.
// Connection problems are retried forever and never returned.
func (m *MixerMonitor) Run(ctx context.Context) error {
	defer func() {
		if err := m.player.Close(); err != nil {
			m.logger.Debug("closing mpd session", "error", err)
		}
		m.status.setConnected(false)
		m.logger.Info("mixer monitor stopped")
	}()

	for ctx.Err() == nil {
		changed, err := m.player.Idle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			m.logger.Info("mpd session unavailable", "error", err)
			m.reconnect(ctx)
			continue
		}

		if !slices.Contains(changed, mixerSubsystem) {
			m.logger.Debug("ignoring mpd change", "subsystems", changed)
			continue
		}

		if err := m.syncMixer(ctx); err != nil && ctx.Err() == nil {
			m.logger.Info("mpd status failed", "error", err)
			m.reconnect(ctx)
		}
	}
	return nil
}

// reconnect loops until the session is back and resynchronized, or ctx ends.
func (m *MixerMonitor) reconnect(ctx context.Context) {
	m.status.setConnected(false)
	for {
		if ctx.Err() != nil {
			return
		}

		err := m.player.Connect()
		if err == nil {
			m.logger.Info("connected to mpd")
			m.status.setConnected(true)

			// Anything may have changed while we were away: always forward
			// the first value of the new session.
			m.lastSynced = nil
			err = m.syncMixer(ctx)
			if err == nil || ctx.Err() != nil {
				return
			}
			m.status.setConnected(false)
		}

		m.logger.Info("couldn't connect to mpd; retrying", "error", err, "retry_in", m.reconnectBackoff)
		if sleepContext(ctx, m.reconnectBackoff) != nil {
			return
		}
	}
}

// syncMixer forwards the current mixer volume and keeps re-reading it until
// it stops changing, so a change made while the sink was busy is not lost.
func (m *MixerMonitor) syncMixer(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		st, err := m.player.Status()
		if err != nil {
			if errors.Is(err, ErrPlayerDisconnected) {
				return err
			}
			m.logger.Warn("unusable mpd status", "error", err)
			return nil
		}
		if !st.HasVolume {
			m.logger.Debug("mpd reports no mixer volume", "state", st.State)
			return nil
		}
		if st.Volume > 100 {
			m.logger.Warn("mpd volume out of range; ignoring", "volume", st.Volume)
			return nil
		}
		if m.lastSynced != nil && *m.lastSynced == st.Volume {
			return nil
		}

		m.forward(ctx, st.Volume)
	}
}

// forward converts percentage and hands it to the sink.
func (m *MixerMonitor) forward(ctx context.Context, percentage int) {
	volumeDB := mixerVolumeDB(percentage, m.dynamicRangeDB, m.volumeOffsetDB)
	m.logger.Info("volume update", "volume", percentage, "volume_db", volumeDB)

	live := m.sink.SetVolume(ctx, volumeDB)
	if !live && isMuteTransition(m.lastSynced, percentage) {
		// CamillaDSP is often still starting when the player unmutes.
		m.logger.Debug("retrying mute transition", "volume", percentage, "delay", m.unmuteRetryDelay)
		if sleepContext(ctx, m.unmuteRetryDelay) == nil {
			live = m.sink.SetVolume(ctx, volumeDB)
		}
	}

	m.lastSynced = &percentage
	m.status.recordSync(percentage, volumeDB, live)
}
