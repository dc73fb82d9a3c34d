package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// captureLogs swaps in an observer core for the duration of a test.
func captureLogs(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	old := logger
	logger = zap.New(core)
	t.Cleanup(func() { logger = old })
	return logs
}

func TestLogControlExchange(t *testing.T) {
	logs := captureLogs(t, zapcore.DebugLevel)

	LogControlExchange("192.168.1.50:65001", "/sys/version", 24, 40)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "Control exchange" {
		t.Errorf("Message = %q, want 'Control exchange'", entry.Message)
	}

	fields := entry.ContextMap()
	if fields["variable"] != "/sys/version" {
		t.Errorf("variable = %v, want /sys/version", fields["variable"])
	}
	if fields["request_bytes"] != int64(24) {
		t.Errorf("request_bytes = %v, want 24", fields["request_bytes"])
	}
	if fields["reply_bytes"] != int64(40) {
		t.Errorf("reply_bytes = %v, want 40", fields["reply_bytes"])
	}
}

func TestLogRawBytes(t *testing.T) {
	logs := captureLogs(t, zapcore.DebugLevel)

	LogRawBytes("Undecodable control reply", []byte{0x00, 0x05, 0x00, 0x00, 0x41, 0x42})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["length"] != int64(6) {
		t.Errorf("length = %v, want 6", fields["length"])
	}
	hexField, ok := fields["hex"].(string)
	if !ok || !strings.HasPrefix(hexField, "00050000") {
		t.Errorf("hex dump = %v, should start with '00050000'", fields["hex"])
	}
	asciiField, ok := fields["ascii"].(string)
	if !ok || !strings.Contains(asciiField, "AB") {
		t.Errorf("ascii dump = %v, should contain 'AB'", fields["ascii"])
	}
}

func TestLogDatagramSilentAboveDebug(t *testing.T) {
	logs := captureLogs(t, zapcore.InfoLevel)

	LogDatagram("192.168.1.50:65001", "received", []byte{0x00, 0x03})

	// Datagram logging is debug-level; nothing should come through.
	if got := logs.Len(); got != 0 {
		t.Errorf("Expected no log entries at info level, got %d", got)
	}
}

func TestHexDump(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{
			name: "empty",
			data: nil,
			want: "",
		},
		{
			name: "short frame",
			data: []byte{0x00, 0x03, 0xff},
			want: "0003ff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hexDump(tt.data); got != tt.want {
				t.Errorf("hexDump() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAsciiDump(t *testing.T) {
	got := asciiDump([]byte{'h', 'd', 'h', 'r', 0x00, 0x7f})
	if !strings.HasPrefix(got, "hdhr") {
		t.Errorf("asciiDump() = %q, should start with 'hdhr'", got)
	}
	if strings.ContainsAny(got[4:], "\x00\x7f") {
		t.Errorf("asciiDump() = %q, control bytes should be replaced", got)
	}
}
