package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fhs/gompd/v2/mpd"
)

// ErrPlayerDisconnected reports that the MPD session is closed or broken.
var ErrPlayerDisconnected = errors.New("mpd connection lost")

// PlayerClient is the part of MPD the mixer monitor depends on.
type PlayerClient interface {
	// Connect (re)opens the session, discarding any previous one.
	Connect() error
	// Idle blocks until MPD reports changed subsystems, ctx is done, or the
	// connection fails.
	Idle(ctx context.Context) ([]string, error)
	Status() (PlayerStatus, error)
	Close() error
}

// PlayerStatus is the slice of MPD's status the monitor cares about.
type PlayerStatus struct {
	Volume int
	// HasVolume is false when MPD has no mixer (volume omitted or -1).
	HasVolume bool
	State     string
}

// parsePlayerStatus extracts the mixer volume from an MPD status response.
func parsePlayerStatus(attrs map[string]string) (PlayerStatus, error) {
	st := PlayerStatus{State: attrs["state"]}

	raw, ok := attrs["volume"]
	if !ok {
		return st, nil
	}
	vol, err := strconv.Atoi(raw)
	if err != nil {
		return st, fmt.Errorf("parse mpd volume %q: %w", raw, err)
	}
	if vol < 0 {
		return st, nil
	}
	st.Volume = vol
	st.HasVolume = true
	return st, nil
}

// mpdClient is a PlayerClient backed by gompd. Idle notifications come from
// an mpd.Watcher on its own connection; status queries use a command
// connection. Both are opened and closed together.
type mpdClient struct {
	addr       string
	password   string
	subsystems []string
	logger     *slog.Logger

	watcher *mpd.Watcher
	conn    *mpd.Client
}

func newMPDClient(addr, password string, logger *slog.Logger, subsystems ...string) *mpdClient {
	return &mpdClient{
		addr:       addr,
		password:   password,
		subsystems: subsystems,
		logger:     logger,
	}
}

func (c *mpdClient) Connect() error {
	c.Close()

	conn, err := mpd.DialAuthenticated("tcp", c.addr, c.password)
	if err != nil {
		return fmt.Errorf("connect to mpd at %s: %w", c.addr, err)
	}
	w, err := mpd.NewWatcher("tcp", c.addr, c.password, c.subsystems...)
	if err != nil {
		conn.Close()
		return fmt.Errorf("watch mpd at %s: %w", c.addr, err)
	}

	c.conn = conn
	c.watcher = w
	return nil
}

func (c *mpdClient) Idle(ctx context.Context) ([]string, error) {
	if c.watcher == nil {
		return nil, ErrPlayerDisconnected
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev, ok := <-c.watcher.Event:
		if !ok {
			return nil, ErrPlayerDisconnected
		}
		return []string{ev}, nil
	case err, ok := <-c.watcher.Error:
		if !ok {
			return nil, ErrPlayerDisconnected
		}
		return nil, fmt.Errorf("%w: %v", ErrPlayerDisconnected, err)
	}
}

func (c *mpdClient) Status() (PlayerStatus, error) {
	if c.conn == nil {
		return PlayerStatus{}, ErrPlayerDisconnected
	}

	attrs, err := c.conn.Status()
	if err != nil {
		// MPD closes command connections that sit unused longer than its
		// connection_timeout. Redial once before giving up on the session.
		c.logger.Debug("mpd status failed; redialing command connection", "addr", c.addr, "error", err)
		c.conn.Close()
		c.conn = nil

		conn, derr := mpd.DialAuthenticated("tcp", c.addr, c.password)
		if derr != nil {
			return PlayerStatus{}, fmt.Errorf("%w: %v", ErrPlayerDisconnected, derr)
		}
		c.conn = conn

		attrs, err = conn.Status()
		if err != nil {
			return PlayerStatus{}, fmt.Errorf("%w: %v", ErrPlayerDisconnected, err)
		}
	}
	return parsePlayerStatus(attrs)
}

func (c *mpdClient) Close() error {
	var errs []error
	if c.watcher != nil {
		errs = append(errs, c.watcher.Close())
		c.watcher = nil
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	return errors.Join(errs...)
}
