package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// Control Socket - Unix Domain Socket Interface
// ============================================================================
// Read-only window into the running daemon, used by cdspvolctl.
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "status"} or {"type": "ping"}
//   - Server responds: {"status": "ok", "data": {...}} or
//     {"status": "error", "error": "msg"}
// ============================================================================

// IPCRequest is one line sent by a control client.
type IPCRequest struct {
	Type string `json:"type"`
}

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string          `json:"status"`          // "ok" or "error"
	Error  string          `json:"error,omitempty"` // error message if status == "error"
	Data   *StatusSnapshot `json:"data,omitempty"`
}

// runIPCServer serves the control socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, status *SyncStatus, logger *slog.Logger) error {
	// Remove a stale socket left behind by a previous run
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("control socket listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("control socket closed")
				return nil
			}
			logger.Error("control socket accept error", "error", err)
			continue
		}

		go handleIPCConnection(conn, status, logger)
	}
}

// handleIPCConnection answers requests on a single control connection.
func handleIPCConnection(conn net.Conn, status *SyncStatus, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("control connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := handleIPCRequest([]byte(line), status)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("control socket failed to send response", "error", err)
			return
		}
	}
}

func handleIPCRequest(line []byte, status *SyncStatus) IPCResponse {
	var req IPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return IPCResponse{Status: "error", Error: fmt.Sprintf("parse request: %v", err)}
	}

	switch req.Type {
	case "ping":
		return IPCResponse{Status: "ok"}
	case "status":
		snap := status.Snapshot()
		return IPCResponse{Status: "ok", Data: &snap}
	default:
		return IPCResponse{Status: "error", Error: fmt.Sprintf("unknown request type %q", req.Type)}
	}
}

// SendIPCRequest sends a request to the daemon and returns its response.
func SendIPCRequest(socketPath string, req IPCRequest, timeout time.Duration) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp, nil
}
