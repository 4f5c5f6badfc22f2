package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/framewall/internal/types"
)

func TestPrintSessions(t *testing.T) {
	var empty bytes.Buffer
	printSessions(&empty, nil)
	if !strings.Contains(empty.String(), "No sessions found") {
		t.Errorf("unexpected output for no sessions: %q", empty.String())
	}

	closed := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	records := []types.SessionRecord{
		{
			ID:             "0f8e2a9c-1111-2222-3333-444455556666",
			Surface:        "faceCanvas",
			Address:        "ws://localhost:8000/ws/faces",
			OpenedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			ClosedAt:       &closed,
			FramesReceived: 12,
			FramesDrawn:    10,
			DecodeFailures: 2,
			CloseReason:    "closed by peer",
		},
		{
			ID:       "short",
			Surface:  "videoCanvas",
			Address:  "ws://localhost:8000/ws/video",
			OpenedAt: time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	printSessions(&buf, records)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header, rule and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[2], "0f8e2a9c ") || strings.Contains(lines[2], "-1111") {
		t.Errorf("session id should be shortened to 8 chars: %q", lines[2])
	}
	if !strings.Contains(lines[2], "closed by peer") {
		t.Errorf("missing close reason: %q", lines[2])
	}
	if !strings.Contains(lines[3], "open") {
		t.Errorf("unclosed session should read open: %q", lines[3])
	}
}
