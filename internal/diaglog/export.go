package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/renameio/v2"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the first line written to the export file (valid NDJSON).
type DiagBundle struct {
	ExportedAt     string `json:"exported_at"`
	DualcapVersion string `json:"dualcap_version"`
	GoVersion      string `json:"go_version"`
	OS             string `json:"os"`
	Arch           string `json:"arch"`
	LogFile        string `json:"log_file"`
	SessionFilter  string `json:"session_filter,omitempty"`
	EntryCount     int    `json:"entry_count"`
}

// Export reads logPath, keeps the entries of sessionID (all entries when
// sessionID is empty), prepends a DiagBundle metadata line, and writes the
// result to dest/dualcap-diag-<ts>.ndjson. Returns the written file path and
// number of log lines included.
func Export(logPath, dest, sessionID string) (path string, lines int, err error) {
	src, err := os.Open(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	defer func() { _ = src.Close() }()

	// The log is capped at 10 MB, so buffering every line is fine.
	var kept [][]byte
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 10*1024*1024), 10*1024*1024)
	for scanner.Scan() {
		if sessionID != "" && !matchesSession(scanner.Bytes(), sessionID) {
			continue
		}
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		kept = append(kept, line)
	}
	if serr := scanner.Err(); serr != nil {
		return "", 0, fmt.Errorf("log file unreadable: %w", serr)
	}

	tstamp := time.Now().UTC().Format("20060102T150405")
	outPath := filepath.Join(dest, "dualcap-diag-"+tstamp+".ndjson")

	out, err := renameio.NewPendingFile(outPath)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Cleanup() }()

	bundle := DiagBundle{
		ExportedAt:     time.Now().UTC().Format(time.RFC3339),
		DualcapVersion: Version,
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		LogFile:        logPath,
		SessionFilter:  sessionID,
		EntryCount:     len(kept),
	}
	header, err := json.Marshal(bundle)
	if err != nil {
		return "", 0, err
	}

	w := bufio.NewWriter(out)
	if _, err := w.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}
	for _, line := range kept {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}
	if err := out.CloseAtomicallyReplace(); err != nil {
		return "", 0, fmt.Errorf("commit export: %w", err)
	}

	return outPath, len(kept), nil
}

func matchesSession(line []byte, sessionID string) bool {
	var entry struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(line, &entry); err != nil {
		return false
	}
	return entry.SessionID == sessionID
}
