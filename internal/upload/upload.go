// Package upload manages the two user-supplied video files previewed in
// upload mode. Every resource URL it creates is revoked exactly once.
package upload

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/diaglog"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/source"
)

// Slot selects which side of the pair a file fills.
type Slot string

const (
	SlotCamera Slot = "camera"
	SlotScreen Slot = "screen"
)

// ParseSlot accepts "camera" or "screen".
func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotCamera, SlotScreen:
		return Slot(s), nil
	default:
		return "", fmt.Errorf("unknown upload slot %q", s)
	}
}

// Registry turns a local file into a playable reference.
type Registry interface {
	CreateResourceURL(path string) (string, error)
	RevokeResourceURL(url string) error
}

// PairState is a snapshot of both slots.
type PairState struct {
	Camera *source.Handle
	Screen *source.Handle
}

// Manager owns the file handles of both slots.
type Manager struct {
	registry Registry
	log      zerolog.Logger
	diag     *diaglog.Logger

	mu     sync.Mutex
	camera *source.Handle
	screen *source.Handle
}

// NewManager creates a Manager backed by registry.
func NewManager(registry Registry) *Manager {
	return &Manager{
		registry: registry,
		log:      logging.WithComponent("upload"),
		diag:     diaglog.NewNoOp(),
	}
}

// SetLogger injects the diagnostic event logger.
func (m *Manager) SetLogger(l *diaglog.Logger) {
	m.mu.Lock()
	m.diag = l
	m.mu.Unlock()
}

// SetSlot publishes path under a fresh resource URL and replaces the slot's
// previous handle, revoking only that slot's previous URL. On error the slot
// keeps its current handle.
func (m *Manager) SetSlot(slot Slot, path string) error {
	if _, err := ParseSlot(string(slot)); err != nil {
		return err
	}

	url, err := m.registry.CreateResourceURL(path)
	if err != nil {
		return fmt.Errorf("create resource url: %w", err)
	}
	h, err := source.NewFile(url, filepath.Base(path))
	if err != nil {
		m.revoke(url)
		return err
	}

	m.mu.Lock()
	ref := m.slotRef(slot)
	prev := *ref
	*ref = h
	diag := m.diag
	m.mu.Unlock()

	// prev is read under the same lock that installed h, so a concurrent
	// SetSlot on this slot revokes the handle it replaced, never ours.
	if prev != nil {
		m.revoke(prev.URL())
	}

	m.log.Info().Str("slot", string(slot)).Str("file", h.DisplayName()).Msg("upload slot set")
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentUpload,
		Event:     diaglog.EventUploadSet,
		Payload:   map[string]interface{}{"slot": string(slot), "path": path},
	})
	return nil
}

// ClearAll revokes both slots and resets to empty.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	cam, scr := m.camera, m.screen
	m.camera, m.screen = nil, nil
	diag := m.diag
	m.mu.Unlock()

	if cam == nil && scr == nil {
		return
	}
	if cam != nil {
		m.revoke(cam.URL())
	}
	if scr != nil {
		m.revoke(scr.URL())
	}
	m.log.Info().Msg("upload slots cleared")
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentUpload,
		Event:     diaglog.EventUploadClear,
	})
}

// Close is the teardown path; it releases everything still held.
func (m *Manager) Close() {
	m.ClearAll()
}

// Pair returns the current handles.
func (m *Manager) Pair() (camera, screen *source.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera, m.screen
}

// State returns a snapshot of both slots.
func (m *Manager) State() PairState {
	cam, scr := m.Pair()
	return PairState{Camera: cam, Screen: scr}
}

func (m *Manager) slotRef(slot Slot) **source.Handle {
	if slot == SlotCamera {
		return &m.camera
	}
	return &m.screen
}

func (m *Manager) revoke(url string) {
	if err := m.registry.RevokeResourceURL(url); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("revoke resource url")
	}
}
