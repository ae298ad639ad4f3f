package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	errNotConnected       = errors.New("not connected to CamillaDSP")
	errIncompatibleEngine = errors.New("incompatible CamillaDSP version")
)

// CamillaDSPClient manages WebSocket communication with CamillaDSP.
//
// The connection is lazy: nothing is dialed until Connect is called, and a
// failed read or write drops the connection so the next caller reconnects.
type CamillaDSPClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	logger      *slog.Logger
	readTimeout time.Duration
	dialTimeout time.Duration
}

// NewCamillaDSPClient creates an unconnected CamillaDSP client.
func NewCamillaDSPClient(wsURL string, logger *slog.Logger, readTimeout time.Duration) (*CamillaDSPClient, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid websocket URL %q: scheme must be ws or wss", wsURL)
	}

	return &CamillaDSPClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: readTimeout,
		dialTimeout: defaultDialTimeout,
	}, nil
}

// camillaDSPURL builds the websocket URL for a CamillaDSP host and port.
func camillaDSPURL(host string, port int) string {
	return (&url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port))}).String()
}

// Connect establishes a WebSocket connection to CamillaDSP, replacing any
// existing one.
func (c *CamillaDSPClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	d := websocket.Dialer{
		HandshakeTimeout: c.dialTimeout,
	}

	conn, _, err := d.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("connect to CamillaDSP at %s: %w", c.url, err)
	}

	c.conn = conn
	c.logger.Debug("connected to CamillaDSP", "url", c.url)
	return nil
}

// IsConnected reports whether a connection is open.
func (c *CamillaDSPClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// sendAndRead sends a message and waits for a response
func (c *CamillaDSPClient) sendAndRead(v any) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errNotConnected
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.dropLocked()
		return nil, err
	}

	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, message, err := c.conn.ReadMessage()
	if err != nil {
		c.dropLocked()
		return nil, err
	}
	c.conn.SetReadDeadline(time.Time{})

	return message, nil
}

// dropLocked closes a broken connection. c.mu must be held.
func (c *CamillaDSPClient) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the WebSocket connection
func (c *CamillaDSPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
	}
	return nil
}

// camillaReply is the envelope CamillaDSP wraps around every response:
// {"<Command>": {"result": "Ok", "value": ...}}.
type camillaReply struct {
	Result string          `json:"result"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// command sends cmd and returns the reply for the named command.
func (c *CamillaDSPClient) command(name string, cmd any) (camillaReply, error) {
	response, err := c.sendAndRead(cmd)
	if err != nil {
		return camillaReply{}, err
	}

	var envelope map[string]camillaReply
	if err := json.Unmarshal(response, &envelope); err != nil {
		return camillaReply{}, fmt.Errorf("parse %s response: %w", name, err)
	}
	reply, ok := envelope[name]
	if !ok {
		return camillaReply{}, fmt.Errorf("unexpected response to %s: %s", name, response)
	}
	if reply.Result != "Ok" {
		return camillaReply{}, fmt.Errorf("%s: result %q", name, reply.Result)
	}
	return reply, nil
}

// SetVolume sets the main volume in dB.
func (c *CamillaDSPClient) SetVolume(targetDB float64) error {
	if _, err := c.command("SetVolume", map[string]any{"SetVolume": targetDB}); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}
	c.logger.Debug("SetVolume", "target_db", targetDB)
	return nil
}

// GetVolume queries CamillaDSP for the current main volume.
func (c *CamillaDSPClient) GetVolume() (float64, error) {
	reply, err := c.command("GetVolume", "GetVolume")
	if err != nil {
		return 0, fmt.Errorf("get volume: %w", err)
	}

	var vol float64
	if err := json.Unmarshal(reply.Value, &vol); err != nil {
		return 0, fmt.Errorf("get volume: parse value: %w", err)
	}

	c.logger.Debug("GetVolume", "volume_db", vol)
	return vol, nil
}

// GetVersion queries CamillaDSP for its version string (e.g. "2.0.3").
func (c *CamillaDSPClient) GetVersion() (string, error) {
	reply, err := c.command("GetVersion", "GetVersion")
	if err != nil {
		return "", fmt.Errorf("get version: %w", err)
	}

	var version string
	if err := json.Unmarshal(reply.Value, &version); err != nil {
		return "", fmt.Errorf("get version: parse value: %w", err)
	}
	return version, nil
}

// checkCamillaDSPVersion rejects versions older than minCamillaDSPMajorVersion.
func checkCamillaDSPVersion(version string) error {
	major, _, _ := strings.Cut(strings.TrimPrefix(strings.TrimSpace(version), "v"), ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return fmt.Errorf("%w: unparsable version %q", errIncompatibleEngine, version)
	}
	if n < minCamillaDSPMajorVersion {
		return fmt.Errorf("%w: %s (need >= %d.0.0)", errIncompatibleEngine, version, minCamillaDSPMajorVersion)
	}
	return nil
}

// probeCamillaDSP connects to CamillaDSP once at start-up and verifies that it
// speaks a compatible API. An unreachable engine is not an error; it may be
// started after this daemon.
func probeCamillaDSP(client *CamillaDSPClient, logger *slog.Logger) error {
	if err := client.Connect(); err != nil {
		logger.Warn("CamillaDSP not reachable at start-up; will retry on volume change", "url", client.url, "error", err)
		return nil
	}

	version, err := client.GetVersion()
	if err != nil {
		// A transport failure drops the connection; a reply we cannot
		// understand leaves it open.
		if !client.IsConnected() {
			logger.Warn("CamillaDSP connection lost during start-up probe", "url", client.url, "error", err)
			return nil
		}
		return fmt.Errorf("%w: %v", errIncompatibleEngine, err)
	}
	if err := checkCamillaDSPVersion(version); err != nil {
		return err
	}
	logger.Info("connected to CamillaDSP", "url", client.url, "version", version)
	return nil
}
