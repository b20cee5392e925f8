package artifact

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// Metadata is the sidecar written next to each saved recording.
type Metadata struct {
	Version    string    `json:"version"`
	SessionID  string    `json:"session_id,omitempty"`
	Artifact   string    `json:"artifact"`
	MediaType  string    `json:"media_type"`
	StartedAt  time.Time `json:"started_at"`
	StoppedAt  time.Time `json:"stopped_at"`
	Duration   string    `json:"duration"`
	DurationMs int64     `json:"duration_ms"`
	Bytes      int       `json:"bytes"`
	Chunks     int       `json:"chunks"`
	OutputFile string    `json:"output_file"`
}

// WriteMetadata writes <basepath>.meta.json next to the recording.
func WriteMetadata(recordingPath string, meta *Metadata) error {
	pending, err := renameio.NewPendingFile(MetadataPath(recordingPath), renameio.WithPermissions(0644))
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// MetadataPath returns <basepath>.meta.json for a recording path.
func MetadataPath(recordingPath string) string {
	ext := filepath.Ext(recordingPath)
	return recordingPath[:len(recordingPath)-len(ext)] + ".meta.json"
}
