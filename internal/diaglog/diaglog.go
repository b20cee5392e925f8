// Package diaglog provides structured NDJSON session diagnostics for dualcap.
// Activated by DUALCAP_DEBUG=true. When the env var is absent, all Log calls
// are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// maxFileMB caps the NDJSON file; one rotated backup is kept.
const maxFileMB = 10

// ── Component labels ─────────────────────────────────────────────────────────

const (
	ComponentCapture    = "capture-manager"
	ComponentUpload     = "upload-manager"
	ComponentRecorder   = "recording-coordinator"
	ComponentPlayback   = "playback-engine"
	ComponentController = "mode-controller"
	ComponentViewerWS   = "viewer-ws"
	ComponentDiagExport = "diag-export"
	ComponentCore       = "dualcap-core"
)

// ── Event names ──────────────────────────────────────────────────────────────

const (
	EventCaptureStart      = "capture_start"
	EventCaptureFailed     = "capture_failed"
	EventCaptureStop       = "capture_stop"
	EventUploadSet         = "upload_set"
	EventUploadClear       = "upload_clear"
	EventRecordingStart    = "recording_start"
	EventRecordingRejected = "recording_start_rejected"
	EventRecordingStop     = "recording_stop"
	EventArtifactOffered   = "artifact_offered"
	EventArtifactFailed    = "artifact_failed"
	EventModeChange        = "mode_change"
	EventModeRejected      = "mode_change_rejected"
	EventSwap              = "layout_swap"
	EventDriftCorrection   = "drift_correction"
	EventViewerConnect     = "viewer_connect"
	EventViewerDisconnect  = "viewer_disconnect"
	EventStartup           = "startup"
	EventShutdown          = "shutdown"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"` // RFC3339Nano
	Component string      `json:"component"`
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a size-rotated NDJSON file. When debug
// mode is disabled every Log call is a no-op.
type Logger struct {
	out     *lumberjack.Logger
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxFileMB,
		MaxBackups: 1,
	}
	return &Logger{out: out, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes it to the log
// file. Sensitive payload fields are redacted before serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(data)
}

// Enabled reports whether entries are being written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.out == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// IsDebugEnabled reports whether DUALCAP_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("DUALCAP_DEBUG") == "true"
}

// DefaultPath returns DUALCAP_LOG_PATH or the fallback under /tmp.
func DefaultPath() string {
	if p := os.Getenv("DUALCAP_LOG_PATH"); p != "" {
		return p
	}
	return "/tmp/dualcap-debug.log"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
