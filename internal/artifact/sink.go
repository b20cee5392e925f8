// Package artifact saves finalized recordings to disk, one file per source
// plus a metadata sidecar.
package artifact

import (
	"fmt"
	"os"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/config"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/recorder"
)

// Saved describes one recording written by a FileSink.
type Saved struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int    `json:"size"`
}

// FileSink is a recorder.ArtifactSink that writes into a directory.
type FileSink struct {
	dir     string
	version string
	log     zerolog.Logger

	mu        sync.Mutex
	sessionID string
	saved     []Saved
	onSaved   func(Saved)
}

func NewFileSink(dir, version string) *FileSink {
	return &FileSink{
		dir:     dir,
		version: version,
		log:     logging.WithComponent("artifact"),
	}
}

// SetSessionID tags the sidecars of later recordings.
func (s *FileSink) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

// OnSaved registers fn to run after each successful save.
func (s *FileSink) OnSaved(fn func(Saved)) {
	s.mu.Lock()
	s.onSaved = fn
	s.mu.Unlock()
}

// OfferDownload writes a under its fixed name with the extension of its media
// type. A name already taken gets a numbered suffix.
func (s *FileSink) OfferDownload(a recorder.Artifact) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path, err := Reserve(s.dir, SanitizeForFilename(a.Name), Extension(a.MediaType))
	if err != nil {
		return err
	}
	if err := writeFile(path, a.Data); err != nil {
		os.Remove(path)
		return err
	}

	s.mu.Lock()
	session := s.sessionID
	s.mu.Unlock()

	dur := a.StoppedAt.Sub(a.StartedAt)
	meta := &Metadata{
		Version:    s.version,
		SessionID:  session,
		Artifact:   a.Name,
		MediaType:  a.MediaType,
		StartedAt:  a.StartedAt,
		StoppedAt:  a.StoppedAt,
		Duration:   dur.String(),
		DurationMs: dur.Milliseconds(),
		Bytes:      len(a.Data),
		Chunks:     a.Chunks,
		OutputFile: path,
	}
	if err := WriteMetadata(path, meta); err != nil {
		// The recording itself is safe; a missing sidecar is not fatal.
		s.log.Warn().Err(err).Str("path", path).Msg("write metadata")
	}

	saved := Saved{Name: a.Name, Path: path, Size: len(a.Data)}
	s.mu.Lock()
	s.saved = append(s.saved, saved)
	fn := s.onSaved
	s.mu.Unlock()

	s.log.Info().Str("artifact", a.Name).Str("path", path).Int("bytes", len(a.Data)).Msg("recording saved")
	if fn != nil {
		fn(saved)
	}
	return nil
}

// Saved returns every recording written so far.
func (s *FileSink) Saved() []Saved {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Saved(nil), s.saved...)
}

// Extension maps a media type to a file extension.
func Extension(mediaType string) string {
	if ext, ok := config.MediaTypes[mediaType]; ok {
		return ext
	}
	return ".bin"
}

func writeFile(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0644))
	if err != nil {
		return fmt.Errorf("create pending recording: %w", err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write recording: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace recording: %w", err)
	}
	return nil
}
