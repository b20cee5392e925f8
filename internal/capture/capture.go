// Package capture owns the paired camera+microphone and display-share live
// handles. Either both are held or neither is.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/diaglog"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/metrics"
	"github.com/tiroq/dualcap/internal/source"
)

var (
	// ErrPermissionOrDevice wraps every acquisition failure.
	ErrPermissionOrDevice = errors.New("permission denied or device error")
	// ErrAcquisitionPending is returned by Start while a previous Start has
	// not resolved yet.
	ErrAcquisitionPending = errors.New("capture acquisition already in progress")
	// ErrAbandoned is returned by a Start that resolved after Stop was called.
	ErrAbandoned = errors.New("capture stopped while acquiring")
)

// UserMessage is the single user-visible text for a failed capture.
const UserMessage = "Permission denied or device error."

// DeviceProvider hands out live handles for the two capture devices.
// Acquisitions may block for as long as a permission prompt is open.
type DeviceProvider interface {
	AcquireCameraAndMic(ctx context.Context) (*source.Handle, error)
	AcquireDisplay(ctx context.Context) (*source.Handle, error)
	Release(h *source.Handle)
}

// PairState is a snapshot of the manager.
type PairState struct {
	Camera      *source.Handle
	Screen      *source.Handle
	IsCapturing bool
	LastError   error
}

// Manager acquires and releases both capture handles as a unit.
type Manager struct {
	devices DeviceProvider
	log     zerolog.Logger
	diag    *diaglog.Logger

	mu        sync.Mutex
	camera    *source.Handle
	screen    *source.Handle
	capturing bool
	lastErr   error
	pending   bool
	abandoned bool
	// pendingCam is the camera handle of an unresolved Start; Stop
	// releases it at once.
	pendingCam    *source.Handle
	cancelPending context.CancelFunc
}

// NewManager creates a Manager over devices.
func NewManager(devices DeviceProvider) *Manager {
	return &Manager{
		devices: devices,
		log:     logging.WithComponent("capture"),
		diag:    diaglog.NewNoOp(),
	}
}

// SetLogger injects the diagnostic event logger.
func (m *Manager) SetLogger(l *diaglog.Logger) {
	m.mu.Lock()
	m.diag = l
	m.mu.Unlock()
}

// Start acquires the camera+microphone handle and then the display handle.
// If either request fails, whatever was acquired is released and the error
// (wrapping ErrPermissionOrDevice) is returned and kept as LastError.
// Calling Start while capturing is a no-op. A Stop while Start is pending
// cancels the open request and makes Start return ErrAbandoned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.pending {
		m.mu.Unlock()
		return ErrAcquisitionPending
	}
	if m.capturing {
		m.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.pending = true
	m.abandoned = false
	m.lastErr = nil
	m.cancelPending = cancel
	m.mu.Unlock()

	cam, err := m.acquire(ctx, m.devices.AcquireCameraAndMic)
	if m.resolveAbandoned(cam) {
		return ErrAbandoned
	}
	if err != nil {
		return m.fail(err)
	}

	scr, err := m.acquire(ctx, m.devices.AcquireDisplay)
	if m.resolveAbandoned(scr) {
		return ErrAbandoned
	}
	if err != nil {
		if own := m.takePendingCam(); own != nil {
			m.devices.Release(own)
		}
		return m.fail(err)
	}

	m.mu.Lock()
	if m.abandoned {
		// Stop landed after the display resolved and already released
		// the camera.
		m.pending, m.abandoned = false, false
		m.pendingCam, m.cancelPending = nil, nil
		m.mu.Unlock()
		m.devices.Release(scr)
		return ErrAbandoned
	}
	m.pending = false
	m.pendingCam = nil
	m.cancelPending = nil
	m.camera, m.screen, m.capturing = cam, scr, true
	diag := m.diag
	m.mu.Unlock()

	metrics.CaptureAttempts.WithLabelValues("ok").Inc()
	metrics.BoolGauge(metrics.Capturing, true)
	m.log.Info().Str("camera", cam.Describe()).Str("screen", scr.Describe()).Msg("capture started")
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventCaptureStart,
		Payload:   map[string]interface{}{"camera": cam.Describe(), "screen": scr.Describe()},
	})
	return nil
}

// resolveAbandoned records h as the pending camera, or, when Stop already
// ran, releases h and ends the pending sequence. It reports whether the
// sequence was abandoned.
func (m *Manager) resolveAbandoned(h *source.Handle) bool {
	m.mu.Lock()
	if !m.abandoned {
		if h != nil && m.pendingCam == nil {
			m.pendingCam = h
		}
		m.mu.Unlock()
		return false
	}
	m.pending = false
	m.abandoned = false
	m.pendingCam = nil
	m.cancelPending = nil
	m.mu.Unlock()

	if h != nil {
		m.devices.Release(h)
	}
	m.log.Info().Msg("capture stopped while acquiring, released")
	return true
}

// takePendingCam hands the pending camera back to Start, or nil when Stop
// has already released it.
func (m *Manager) takePendingCam() *source.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.pendingCam
	m.pendingCam = nil
	return h
}

// acquire runs one device request and insists on a live handle back.
func (m *Manager) acquire(ctx context.Context, fn func(context.Context) (*source.Handle, error)) (*source.Handle, error) {
	h, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if !h.IsLive() {
		m.devices.Release(h)
		return nil, fmt.Errorf("device returned %s handle", h.Kind())
	}
	return h, nil
}

func (m *Manager) fail(cause error) error {
	err := fmt.Errorf("%w: %w", ErrPermissionOrDevice, cause)

	m.mu.Lock()
	m.pending = false
	m.abandoned = false
	m.pendingCam = nil
	m.cancelPending = nil
	m.camera, m.screen, m.capturing = nil, nil, false
	m.lastErr = err
	diag := m.diag
	m.mu.Unlock()

	metrics.CaptureAttempts.WithLabelValues("failed").Inc()
	metrics.BoolGauge(metrics.Capturing, false)
	m.log.Error().Err(cause).Msg("capture failed")
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCapture,
		Event:     diaglog.EventCaptureFailed,
		Reason:    cause.Error(),
	})
	return err
}

// Stop releases both handles and clears the capturing flag. It is safe to
// call at any time. A pending acquisition is cancelled: a camera handle it
// already holds is released now, anything else as soon as it resolves.
func (m *Manager) Stop() {
	m.mu.Lock()
	var pendingCam *source.Handle
	if m.pending {
		m.abandoned = true
		pendingCam = m.pendingCam
		m.pendingCam = nil
		if m.cancelPending != nil {
			m.cancelPending()
		}
	}
	cam, scr := m.camera, m.screen
	wasCapturing := m.capturing
	m.camera, m.screen, m.capturing = nil, nil, false
	diag := m.diag
	m.mu.Unlock()

	if pendingCam != nil {
		m.devices.Release(pendingCam)
	}
	if cam != nil {
		m.devices.Release(cam)
	}
	if scr != nil {
		m.devices.Release(scr)
	}
	metrics.BoolGauge(metrics.Capturing, false)

	if wasCapturing {
		m.log.Info().Msg("capture stopped")
		diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentCapture,
			Event:     diaglog.EventCaptureStop,
		})
	}
}

// IsCapturing reports whether both live handles are held.
func (m *Manager) IsCapturing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturing
}

// Pending reports whether an acquisition is in flight; callers disable their
// start trigger while it is true.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// LastError returns the error of the most recent failed Start, cleared by
// the next Start.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Pair returns the current handles (both nil unless capturing).
func (m *Manager) Pair() (camera, screen *source.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera, m.screen
}

// State returns a snapshot of the manager.
func (m *Manager) State() PairState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return PairState{
		Camera:      m.camera,
		Screen:      m.screen,
		IsCapturing: m.capturing,
		LastError:   m.lastErr,
	}
}
