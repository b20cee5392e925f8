package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tiroq/dualcap/internal/diaglog"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/metrics"
	"github.com/tiroq/dualcap/internal/source"
)

// Coordinator runs the camera and screen encoders of a recording.
type Coordinator struct {
	encoders EncoderProvider
	sink     ArtifactSink
	log      zerolog.Logger
	diag     *diaglog.Logger

	mu        sync.Mutex
	camera    *track
	screen    *track
	recording bool
	sessionID string
}

// NewCoordinator creates a Coordinator that builds encoders with encoders and
// offers finished recordings to sink.
func NewCoordinator(encoders EncoderProvider, sink ArtifactSink) *Coordinator {
	return &Coordinator{
		encoders: encoders,
		sink:     sink,
		log:      logging.WithComponent("recorder"),
		diag:     diaglog.NewNoOp(),
	}
}

// SetLogger injects the diagnostic event logger.
func (c *Coordinator) SetLogger(l *diaglog.Logger) {
	c.mu.Lock()
	c.diag = l
	c.mu.Unlock()
}

// SetSessionID tags subsequent diagnostic entries.
func (c *Coordinator) SetSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// Start records camera and screen. Unless both are live handles and no
// recording is active it does nothing and returns ErrPrecondition. Both
// encoders are created before either starts, so a failure never leaves a
// single encoder running.
func (c *Coordinator) Start(camera, screen *source.Handle) error {
	if !camera.IsLive() || !screen.IsLive() {
		c.reject("missing live handle")
		return ErrPrecondition
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recording {
		c.rejectLocked("already recording")
		return ErrPrecondition
	}

	camEnc, err := c.encoders.NewEncoder(camera)
	if err != nil {
		return fmt.Errorf("create camera encoder: %w", err)
	}
	scrEnc, err := c.encoders.NewEncoder(screen)
	if err != nil {
		return fmt.Errorf("create screen encoder: %w", err)
	}

	// Fresh tracks mean fresh buffers; a previous run may still be
	// finalizing into its own track.
	cam := newTrack(CameraArtifactName, camEnc)
	scr := newTrack(ScreenArtifactName, scrEnc)

	camErr := cam.start(c.finalize)
	scrErr := scr.start(c.finalize)
	if camErr != nil || scrErr != nil {
		cam.abort()
		scr.abort()
		if camErr != nil {
			return fmt.Errorf("start camera encoder: %w", camErr)
		}
		return fmt.Errorf("start screen encoder: %w", scrErr)
	}

	c.camera, c.screen = cam, scr
	c.recording = true
	metrics.BoolGauge(metrics.Recording, true)

	c.log.Info().Str("camera_type", camEnc.MediaType()).Str("screen_type", scrEnc.MediaType()).Msg("recording started")
	c.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentRecorder,
		Event:     diaglog.EventRecordingStart,
		SessionID: c.sessionID,
	})
	return nil
}

// Stop asks both encoders to stop, whatever their state. Safe to call when
// not recording and more than once.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cam, scr := c.camera, c.screen
	was := c.recording
	c.recording = false
	diag, session := c.diag, c.sessionID
	c.mu.Unlock()

	if cam != nil {
		cam.stop()
	}
	if scr != nil {
		scr.stop()
	}
	metrics.BoolGauge(metrics.Recording, false)

	if was {
		c.log.Info().Msg("recording stop requested")
		diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentRecorder,
			Event:     diaglog.EventRecordingStop,
			SessionID: session,
		})
	}
}

// IsRecording reports whether both encoders of the current run are recording.
func (c *Coordinator) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// States returns the encoder states of the current or last run.
func (c *Coordinator) States() (camera, screen EncoderState) {
	c.mu.Lock()
	cam, scr := c.camera, c.screen
	c.mu.Unlock()
	if cam != nil {
		camera = cam.State()
	}
	if scr != nil {
		screen = scr.State()
	}
	return camera, screen
}

// Wait blocks until both encoders of the current or last run are done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	tracks := []*track{c.camera, c.screen}
	c.mu.Unlock()

	for _, t := range tracks {
		if t == nil {
			continue
		}
		select {
		case <-t.done.Watch():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// finalize runs on its own goroutine per track, so a slow or failing sink
// for one recording never holds up the other.
func (c *Coordinator) finalize(t *track, encErr error) {
	defer t.markDone()

	c.mu.Lock()
	current := t == c.camera || t == c.screen
	ended := current && c.recording
	var peer *track
	if ended {
		// The encoder stopped on its own; keep both-or-neither.
		c.recording = false
		if t == c.camera {
			peer = c.screen
		} else {
			peer = c.camera
		}
	}
	diag, session := c.diag, c.sessionID
	c.mu.Unlock()

	if peer != nil {
		c.log.Warn().Str("track", t.name).Msg("encoder ended unexpectedly, stopping peer")
		metrics.BoolGauge(metrics.Recording, false)
		peer.stop()
	}

	a, offer := t.assemble()
	if !offer {
		return
	}
	if encErr != nil {
		c.log.Error().Err(encErr).Str("track", t.name).Int("chunks", a.Chunks).Msg("encoder error")
		if a.Chunks == 0 {
			metrics.Artifacts.WithLabelValues(t.name, "empty").Inc()
			return
		}
	}

	if err := c.sink.OfferDownload(a); err != nil {
		metrics.Artifacts.WithLabelValues(t.name, "failed").Inc()
		c.log.Error().Err(err).Str("artifact", a.Name).Msg("offer artifact")
		diag.Log(diaglog.LogEntry{
			Component: diaglog.ComponentRecorder,
			Event:     diaglog.EventArtifactFailed,
			SessionID: session,
			Reason:    err.Error(),
			Payload:   map[string]interface{}{"artifact": a.Name},
		})
		return
	}

	metrics.Artifacts.WithLabelValues(t.name, "ok").Inc()
	metrics.ArtifactBytes.WithLabelValues(t.name).Add(float64(len(a.Data)))
	c.log.Info().Str("artifact", a.Name).Int("bytes", len(a.Data)).Int("chunks", a.Chunks).Msg("artifact offered")
	diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentRecorder,
		Event:     diaglog.EventArtifactOffered,
		SessionID: session,
		Payload: map[string]interface{}{
			"artifact":   a.Name,
			"media_type": a.MediaType,
			"bytes":      len(a.Data),
			"chunks":     a.Chunks,
		},
	})
}

func (c *Coordinator) reject(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectLocked(reason)
}

func (c *Coordinator) rejectLocked(reason string) {
	c.log.Debug().Str("reason", reason).Msg("recording start ignored")
	c.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentRecorder,
		Event:     diaglog.EventRecordingRejected,
		SessionID: c.sessionID,
		Reason:    reason,
	})
}
