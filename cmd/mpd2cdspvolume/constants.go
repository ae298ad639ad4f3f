package main

import "time"

// Connection defaults
const (
	defaultMPDHost        = "127.0.0.1"
	defaultMPDPort        = 6600
	defaultCamillaDSPHost = "127.0.0.1"
	defaultCamillaDSPPort = 1234
	defaultReadTimeoutMS  = 500 // Default timeout for reading websocket responses (ms)
	defaultDialTimeout    = 2 * time.Second
)

// Loudness curve configuration
const (
	defaultDynamicRangeDB = 30
	defaultVolumeOffsetDB = 0.0

	// curveFloor replaces a zero amplitude before taking the log (20*log10(1e-6) = -120 dB).
	curveFloor = 1e-6
)

// Synchronization timing
const (
	// CamillaDSP may drop or overwrite the first write after start-up, so every
	// write is followed by a readback after this pause.
	readbackDelay       = 200 * time.Millisecond
	readbackToleranceDB = 0.2

	// Pause before resending a failed write that crosses 0% (unmute while the
	// engine is still starting).
	unmuteRetryDelay = 400 * time.Millisecond

	mpdReconnectBackoff = 1 * time.Second
)

// Fallback state file template
const (
	defaultStateSlots      = 5
	defaultStateVolumeDB   = -6.0
	defaultStateConfigPath = "/usr/share/camilladsp/working_config.yml"
)

// Oldest CamillaDSP major version whose websocket API has SetVolume/GetVolume.
const minCamillaDSPMajorVersion = 1

const mixerSubsystem = "mixer"
