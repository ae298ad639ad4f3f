package main

import (
	"sync"
	"time"
)

// SyncStatus is the daemon's published view of the synchronization loop.
//
// The monitor goroutine is the only writer. The control socket reads
// snapshots from its own goroutines, hence the mutex.
type SyncStatus struct {
	mu   sync.Mutex
	snap StatusSnapshot
}

// StatusSnapshot is a point-in-time copy of SyncStatus.
type StatusSnapshot struct {
	MPDConnected bool `json:"mpd_connected"`

	// MixerVolume is the last synchronized MPD volume (percent); nil until
	// the first sync after (re)connecting.
	MixerVolume *int     `json:"mixer_volume,omitempty"`
	VolumeDB    *float64 `json:"volume_db,omitempty"`

	// AppliedLive is false when the last value went to the state file.
	AppliedLive bool      `json:"applied_live"`
	Fallbacks   int       `json:"fallbacks"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *SyncStatus) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.MPDConnected = connected
	if !connected {
		s.snap.MixerVolume = nil
	}
	s.snap.UpdatedAt = time.Now()
}

func (s *SyncStatus) recordSync(percentage int, volumeDB float64, live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.MixerVolume = &percentage
	s.snap.VolumeDB = &volumeDB
	s.snap.AppliedLive = live
	if !live {
		s.snap.Fallbacks++
	}
	s.snap.UpdatedAt = time.Now()
}

// Snapshot returns a copy safe to use without the lock.
func (s *SyncStatus) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	if snap.MixerVolume != nil {
		v := *snap.MixerVolume
		snap.MixerVolume = &v
	}
	if snap.VolumeDB != nil {
		v := *snap.VolumeDB
		snap.VolumeDB = &v
	}
	return snap
}
