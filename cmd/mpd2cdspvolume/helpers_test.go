package main

import (
	"io"
	"log/slog"
	"testing"
)

// testLogger returns a logger that discards output.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return setupLogger(io.Discard, LogLevelDebug)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
