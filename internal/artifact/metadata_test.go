package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteMetadata_Basic(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "camera-recording.webm")
	if err := os.WriteFile(recPath, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	meta := &Metadata{
		Version:    "1.2.3",
		SessionID:  "abc123",
		Artifact:   "camera-recording",
		MediaType:  "video/webm",
		StartedAt:  time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC),
		StoppedAt:  time.Date(2025, 1, 15, 15, 0, 0, 0, time.UTC),
		Duration:   "30m0s",
		DurationMs: 1800000,
		Bytes:      4,
		OutputFile: recPath,
	}

	if err := WriteMetadata(recPath, meta); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "camera-recording.meta.json"))
	if err != nil {
		t.Fatalf("read meta file: %v", err)
	}

	var got Metadata
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SessionID != "abc123" {
		t.Errorf("session_id = %q, want %q", got.SessionID, "abc123")
	}
	if got.MediaType != "video/webm" {
		t.Errorf("media_type = %q, want %q", got.MediaType, "video/webm")
	}
	if got.DurationMs != 1800000 {
		t.Errorf("duration_ms = %d, want %d", got.DurationMs, 1800000)
	}
}

func TestWriteMetadata_OmitsEmptySession(t *testing.T) {
	recPath := filepath.Join(t.TempDir(), "screen-recording.webm")
	if err := WriteMetadata(recPath, &Metadata{Version: "dev"}); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	data, err := os.ReadFile(MetadataPath(recPath))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["session_id"]; ok {
		t.Error("expected no 'session_id' field when empty")
	}
}

func TestMetadataPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"camera-recording.webm", "camera-recording.meta.json"},
		{"/path/to/screen-recording-2.mkv", "/path/to/screen-recording-2.meta.json"},
		{"no-ext", "no-ext.meta.json"},
	}
	for _, tt := range tests {
		if got := MetadataPath(tt.input); got != tt.want {
			t.Errorf("MetadataPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWriteMetadata_MissingDir(t *testing.T) {
	badPath := filepath.Join(t.TempDir(), "nonexistent", "sub", "camera-recording.webm")
	if err := WriteMetadata(badPath, &Metadata{Version: "dev"}); err == nil {
		t.Fatal("expected error for non-existent directory")
	}
}
