package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

// ============================================================================
// cdspvolctl - Command-line client for the mpd2cdspvolume control socket
// ============================================================================
// Usage:
//   cdspvolctl status
//   cdspvolctl ping
//
// Options:
//   --socket PATH    Unix domain socket path (default: /run/mpd2cdspvolume.sock)
// ============================================================================

// Request and response types (duplicated from the daemon for a standalone binary)
type IPCRequest struct {
	Type string `json:"type"`
}

type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func main() {
	socketPath := flag.String("socket", "/run/mpd2cdspvolume.sock", "Unix domain socket path")
	timeout := flag.Duration("timeout", 2*time.Second, "Response timeout")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() != 1 {
		printUsage()
		os.Exit(1)
	}

	req := IPCRequest{Type: flag.Arg(0)}
	switch req.Type {
	case "status", "ping":
	default:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", req.Type)
		printUsage()
		os.Exit(1)
	}

	resp, err := send(*socketPath, req, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if resp.Status != "ok" {
		fmt.Fprintf(os.Stderr, "error: %s\n", resp.Error)
		os.Exit(1)
	}

	if len(resp.Data) == 0 {
		fmt.Println("ok")
		return
	}
	var pretty map[string]any
	if err := json.Unmarshal(resp.Data, &pretty); err != nil {
		fmt.Println(string(resp.Data))
		return
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
}

func send(socketPath string, req IPCRequest, timeout time.Duration) (IPCResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("failed to connect to daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return IPCResponse{}, fmt.Errorf("failed to send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

func printUsage() {
	fmt.Println("cdspvolctl - query the mpd2cdspvolume daemon")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  cdspvolctl [--socket PATH] <command>")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  status    Show the last synchronized MPD and CamillaDSP volume")
	fmt.Println("  ping      Check that the daemon is running")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Print(flag.CommandLine.FlagUsages())
}
