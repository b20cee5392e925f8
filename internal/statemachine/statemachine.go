// Package statemachine holds the top-level mode controller. It selects which
// lifecycle manager feeds the playback engine and enforces teardown before
// every mode transition.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/capture"
	"github.com/tiroq/dualcap/internal/diaglog"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/playback"
	"github.com/tiroq/dualcap/internal/recorder"
	"github.com/tiroq/dualcap/internal/source"
	"github.com/tiroq/dualcap/internal/upload"
)

// Mode is the application mode.
type Mode string

const (
	ModeUnselected Mode = "unselected"
	ModeCapture    Mode = "capture"
	ModeUpload     Mode = "upload"
)

// ParseMode accepts "unselected" (or "none"), "capture" or "upload".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "unselected", "none":
		return ModeUnselected, nil
	case "capture":
		return ModeCapture, nil
	case "upload":
		return ModeUpload, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

var (
	// ErrInvalidTransition is returned for any transition other than
	// Unselected→Capture, Unselected→Upload and back to Unselected.
	ErrInvalidTransition = errors.New("invalid mode transition")
	// ErrWrongMode is returned by capture and upload operations outside
	// their mode.
	ErrWrongMode = errors.New("operation not available in current mode")
)

var transitions = map[Mode][]Mode{
	ModeUnselected: {ModeCapture, ModeUpload},
	ModeCapture:    {ModeUnselected},
	ModeUpload:     {ModeUnselected},
}

// Snapshot is the controller state published to the status file and viewers.
type Snapshot struct {
	SessionID      string    `json:"session_id"`
	Mode           Mode      `json:"mode"`
	Capturing      bool      `json:"capturing"`
	CapturePending bool      `json:"capture_pending"`
	Recording      bool      `json:"recording"`
	CameraEncoder  string    `json:"camera_encoder"`
	ScreenEncoder  string    `json:"screen_encoder"`
	Camera         string    `json:"camera"`
	Screen         string    `json:"screen"`
	Primary        string    `json:"primary"`
	Badge          string    `json:"badge"`
	Waiting        bool      `json:"waiting"`
	LastAction     string    `json:"last_action"`
	LastError      string    `json:"last_error"`
	Timestamp      time.Time `json:"timestamp"`
}

// Controller is the facade the daemon drives. Mode-scoped operations run
// with the mode locked, so a mode change waits for them to finish; only a
// pending capture acquisition runs unlocked.
type Controller struct {
	capture   *capture.Manager
	uploads   *upload.Manager
	recorder  *recorder.Coordinator
	engine    *playback.Engine
	sessionID string
	log       zerolog.Logger

	mu         sync.Mutex
	diag       *diaglog.Logger
	mode       Mode
	lastAction string
	lastError  string
	observers  []func(Snapshot)
}

// New wires a controller over the managers and the engine. It starts in
// ModeUnselected.
func New(cm *capture.Manager, um *upload.Manager, rc *recorder.Coordinator, engine *playback.Engine, sessionID string) *Controller {
	c := &Controller{
		capture:   cm,
		uploads:   um,
		recorder:  rc,
		engine:    engine,
		sessionID: sessionID,
		log:       logging.WithComponent("controller"),
		diag:      diaglog.NewNoOp(),
		mode:      ModeUnselected,
	}
	rc.SetSessionID(sessionID)
	engine.SetSources(nil, nil)
	return c
}

// SetLogger injects the diagnostic event logger into the controller and
// every component it drives.
func (c *Controller) SetLogger(l *diaglog.Logger) {
	c.mu.Lock()
	c.diag = l
	c.mu.Unlock()
	c.capture.SetLogger(l)
	c.uploads.SetLogger(l)
	c.recorder.SetLogger(l)
}

// OnChange registers fn to receive a snapshot after every operation.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode performs a mode transition with its teardown.
func (c *Controller) SetMode(target Mode) error {
	c.mu.Lock()
	from := c.mode
	diag := c.diag
	if !allowed(from, target) {
		c.mu.Unlock()
		err := fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, target)
		diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentController,
			Event:     diaglog.EventModeRejected,
			SessionID: c.sessionID,
			Reason:    err.Error(),
		})
		c.finish("set-mode "+string(target), err)
		return err
	}

	switch target {
	case ModeCapture:
		c.uploads.ClearAll()
	case ModeUpload:
		c.teardownCapture()
	case ModeUnselected:
		c.teardownCapture()
		c.uploads.ClearAll()
	}
	c.mode = target
	c.mu.Unlock()

	c.log.Info().Str("from", string(from)).Str("to", string(target)).Msg("mode changed")
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentController,
		Event:     diaglog.EventModeChange,
		SessionID: c.sessionID,
		Payload:   map[string]interface{}{"from": string(from), "to": string(target)},
	})
	c.finish("set-mode "+string(target), nil)
	return nil
}

func allowed(from, to Mode) bool {
	for _, m := range transitions[from] {
		if m == to {
			return true
		}
	}
	return false
}

// teardownCapture stops recording strictly before the capture handles are
// released, so no encoder is ever bound to a released handle.
func (c *Controller) teardownCapture() {
	c.recorder.Stop()
	c.capture.Stop()
}

// StartCapture acquires both devices. The controller lock is not held while
// acquisition is pending, so StopCapture or a mode change can still run.
func (c *Controller) StartCapture(ctx context.Context) error {
	if err := c.require(ModeCapture); err != nil {
		return c.finish("start-capture", err)
	}
	err := c.capture.Start(ctx)
	return c.finish("start-capture", err)
}

// StopCapture stops any recording and then releases both devices.
func (c *Controller) StopCapture() error {
	err := c.inMode(ModeCapture, func() error {
		c.teardownCapture()
		return nil
	})
	return c.finish("stop-capture", err)
}

// StartRecording records the current capture pair.
func (c *Controller) StartRecording() error {
	err := c.inMode(ModeCapture, func() error {
		cam, scr := c.capture.Pair()
		return c.recorder.Start(cam, scr)
	})
	return c.finish("start-recording", err)
}

// StopRecording stops both encoders; artifacts are offered as they finalize.
func (c *Controller) StopRecording() error {
	err := c.inMode(ModeCapture, func() error {
		c.recorder.Stop()
		return nil
	})
	return c.finish("stop-recording", err)
}

// SetUpload fills one upload slot with the file at path.
func (c *Controller) SetUpload(slot upload.Slot, path string) error {
	err := c.inMode(ModeUpload, func() error {
		return c.uploads.SetSlot(slot, path)
	})
	return c.finish("upload-"+string(slot), err)
}

// ClearUploads empties both upload slots.
func (c *Controller) ClearUploads() error {
	err := c.inMode(ModeUpload, func() error {
		c.uploads.ClearAll()
		return nil
	})
	return c.finish("clear-uploads", err)
}

// Swap exchanges the main and pip surfaces in any mode once both sources
// are present.
func (c *Controller) Swap() {
	if c.engine.Swap() {
		c.finish("swap", nil)
	}
}

// Activate and HandleKey make the controller the target of viewer input on
// the pip region.
func (c *Controller) Activate() {
	c.Swap()
}

func (c *Controller) HandleKey(key string) bool {
	if !c.engine.HandleKey(key) {
		return false
	}
	c.finish("swap", nil)
	return true
}

func (c *Controller) OnTimeUpdate(r playback.Role) { c.engine.OnTimeUpdate(r) }
func (c *Controller) OnPlay(r playback.Role)       { c.engine.OnPlay(r) }
func (c *Controller) OnPause(r playback.Role)      { c.engine.OnPause(r) }

// Refresh re-renders and republishes without changing state, e.g. after an
// artifact was saved in the background.
func (c *Controller) Refresh() {
	c.render()
	c.notify()
}

// Shutdown stops recording, waits for the artifacts to be offered (bounded
// by ctx), then releases capture and uploads and returns to ModeUnselected.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.recorder.Stop()
	c.mu.Unlock()

	waitErr := c.recorder.Wait(ctx)
	if waitErr != nil {
		c.log.Warn().Err(waitErr).Msg("recordings not finalized before shutdown")
	}

	c.mu.Lock()
	c.capture.Stop()
	c.uploads.Close()
	from := c.mode
	c.mode = ModeUnselected
	c.mu.Unlock()

	c.log.Info().Str("from", string(from)).Msg("controller shut down")
	c.finish("shutdown", nil)
	return waitErr
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	mode, action, lastErr := c.mode, c.lastAction, c.lastError
	c.mu.Unlock()

	capState := c.capture.State()
	camEnc, scrEnc := c.recorder.States()
	cam, scr := c.activePair(mode)
	layout := c.engine.Layout()

	return Snapshot{
		SessionID:      c.sessionID,
		Mode:           mode,
		Capturing:      capState.IsCapturing,
		CapturePending: c.capture.Pending(),
		Recording:      c.recorder.IsRecording(),
		CameraEncoder:  camEnc.String(),
		ScreenEncoder:  scrEnc.String(),
		Camera:         cam.Describe(),
		Screen:         scr.Describe(),
		Primary:        string(layout.Primary),
		Badge:          c.engine.Badge(),
		Waiting:        c.engine.Waiting(),
		LastAction:     action,
		LastError:      lastErr,
		Timestamp:      time.Now(),
	}
}

func (c *Controller) require(m Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkMode(m)
}

// inMode runs fn with the controller locked in mode m, so a concurrent
// SetMode waits for fn instead of tearing down under it.
func (c *Controller) inMode(m Mode, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkMode(m); err != nil {
		return err
	}
	return fn()
}

func (c *Controller) checkMode(m Mode) error {
	if c.mode != m {
		return fmt.Errorf("%w: %s requires %s mode", ErrWrongMode, c.mode, m)
	}
	return nil
}

// activePair returns the pair the engine shows in mode.
func (c *Controller) activePair(mode Mode) (camera, screen *source.Handle) {
	switch mode {
	case ModeCapture:
		return c.capture.Pair()
	case ModeUpload:
		return c.uploads.Pair()
	default:
		return nil, nil
	}
}

func (c *Controller) render() {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()
	cam, scr := c.activePair(mode)
	c.engine.SetSources(cam, scr)
}

// finish records the outcome of an operation, re-renders and notifies
// observers. It returns err unchanged.
func (c *Controller) finish(action string, err error) error {
	c.mu.Lock()
	c.lastAction = action
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrPermissionOrDevice):
		c.lastError = capture.UserMessage
	default:
		c.lastError = err.Error()
	}
	if err == nil && action == "start-capture" {
		c.lastError = ""
	}
	c.mu.Unlock()

	if err != nil {
		ev := c.log.Warn()
		if errors.Is(err, recorder.ErrPrecondition) {
			ev = c.log.Debug()
		}
		ev.Err(err).Str("action", action).Msg("operation failed")
	}

	c.render()
	c.notify()
	return err
}

func (c *Controller) notify() {
	c.mu.Lock()
	obs := append(([]func(Snapshot))(nil), c.observers...)
	c.mu.Unlock()
	if len(obs) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, fn := range obs {
		fn(snap)
	}
}
