package statemachine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/dualcap/internal/capture"
	"github.com/tiroq/dualcap/internal/playback"
	"github.com/tiroq/dualcap/internal/recorder"
	"github.com/tiroq/dualcap/internal/source"
	"github.com/tiroq/dualcap/internal/statemachine"
	"github.com/tiroq/dualcap/internal/upload"
	"github.com/tiroq/dualcap/testutil"
)

// orderedDevices records whether every encoder had been stopped when a
// capture handle was released.
type orderedDevices struct {
	*testutil.FakeDevices
	encoders *testutil.FakeEncoderProvider

	mu              sync.Mutex
	releasedEarly   int
	releasedAfterRc int
}

func (d *orderedDevices) Release(h *source.Handle) {
	d.mu.Lock()
	encs := d.encoders.Encoders()
	early := false
	for _, e := range encs {
		if e.Stops() == 0 {
			early = true
		}
	}
	if early {
		d.releasedEarly++
	} else if len(encs) > 0 {
		d.releasedAfterRc++
	}
	d.mu.Unlock()
	d.FakeDevices.Release(h)
}

type harness struct {
	devices  *orderedDevices
	registry *testutil.MemoryRegistry
	encoders *testutil.FakeEncoderProvider
	sink     *testutil.MemorySink
	main     *testutil.Surface
	pip      *testutil.Surface
	engine   *playback.Engine
	ctrl     *statemachine.Controller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		registry: testutil.NewMemoryRegistry(),
		encoders: testutil.NewFakeEncoderProvider(),
		sink:     testutil.NewMemorySink(),
		main:     testutil.NewSurface(),
		pip:      testutil.NewSurface(),
	}
	h.devices = &orderedDevices{FakeDevices: testutil.NewFakeDevices(), encoders: h.encoders}
	h.engine = playback.NewEngine(h.main, h.pip, playback.Layout{Primary: playback.PrimaryCamera})
	h.ctrl = statemachine.New(
		capture.NewManager(h.devices),
		upload.NewManager(h.registry),
		recorder.NewCoordinator(h.encoders, h.sink),
		h.engine,
		"session-1",
	)
	return h
}

func (h *harness) waitOffers(t *testing.T, n int) []string {
	t.Helper()
	var names []string
	for i := 0; i < n; i++ {
		select {
		case name := <-h.sink.Offered():
			names = append(names, name)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d artifacts offered", i, n)
		}
	}
	return names
}

func TestController_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []statemachine.Mode
		target  statemachine.Mode
		wantErr bool
	}{
		{"unselected to capture", nil, statemachine.ModeCapture, false},
		{"unselected to upload", nil, statemachine.ModeUpload, false},
		{"capture to unselected", []statemachine.Mode{statemachine.ModeCapture}, statemachine.ModeUnselected, false},
		{"upload to unselected", []statemachine.Mode{statemachine.ModeUpload}, statemachine.ModeUnselected, false},
		{"capture to upload", []statemachine.Mode{statemachine.ModeCapture}, statemachine.ModeUpload, true},
		{"upload to capture", []statemachine.Mode{statemachine.ModeUpload}, statemachine.ModeCapture, true},
		{"unselected to unselected", nil, statemachine.ModeUnselected, true},
		{"capture to capture", []statemachine.Mode{statemachine.ModeCapture}, statemachine.ModeCapture, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			for _, m := range tt.path {
				require.NoError(t, h.ctrl.SetMode(m))
			}
			before := h.ctrl.Mode()

			err := h.ctrl.SetMode(tt.target)
			if tt.wantErr {
				assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
				assert.Equal(t, before, h.ctrl.Mode())
				assert.NotEmpty(t, h.ctrl.Snapshot().LastError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.target, h.ctrl.Mode())
		})
	}
}

func TestController_WrongMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.ctrl.StartCapture(ctx), statemachine.ErrWrongMode)
	assert.ErrorIs(t, h.ctrl.StopCapture(), statemachine.ErrWrongMode)
	assert.ErrorIs(t, h.ctrl.StartRecording(), statemachine.ErrWrongMode)
	assert.ErrorIs(t, h.ctrl.StopRecording(), statemachine.ErrWrongMode)
	assert.ErrorIs(t, h.ctrl.SetUpload(upload.SlotCamera, "/v/a.webm"), statemachine.ErrWrongMode)
	assert.ErrorIs(t, h.ctrl.ClearUploads(), statemachine.ErrWrongMode)

	require.NoError(t, h.ctrl.SetMode(statemachine.ModeUpload))
	assert.ErrorIs(t, h.ctrl.StartCapture(ctx), statemachine.ErrWrongMode)
	assert.ErrorIs(t, h.ctrl.StartRecording(), statemachine.ErrWrongMode)
	assert.Empty(t, h.devices.Acquired())
}

func TestController_CaptureRecordScenario(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeCapture))
	require.NoError(t, h.ctrl.StartCapture(context.Background()))

	snap := h.ctrl.Snapshot()
	assert.True(t, snap.Capturing)
	assert.False(t, snap.Waiting)
	assert.Equal(t, "Camera View", snap.Badge)

	require.NoError(t, h.ctrl.StartRecording())
	assert.True(t, h.ctrl.Snapshot().Recording)
	require.NoError(t, h.ctrl.StopRecording())
	names := h.waitOffers(t, 2)
	assert.ElementsMatch(t, []string{recorder.CameraArtifactName, recorder.ScreenArtifactName}, names)

	require.NoError(t, h.ctrl.StopCapture())
	assert.Zero(t, h.devices.Held())
	assert.Len(t, h.sink.Artifacts(), 2)
	assert.True(t, h.ctrl.Snapshot().Waiting)
}

func TestController_DisplayFailure(t *testing.T) {
	h := newHarness(t)
	h.devices.SetErrors(nil, testutil.ErrPermissionDenied)
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeCapture))

	err := h.ctrl.StartCapture(context.Background())
	assert.ErrorIs(t, err, capture.ErrPermissionOrDevice)

	snap := h.ctrl.Snapshot()
	assert.False(t, snap.Capturing)
	assert.Equal(t, capture.UserMessage, snap.LastError)
	assert.Zero(t, h.devices.Held())
	assert.True(t, snap.Waiting)

	h.devices.SetErrors(nil, nil)
	require.NoError(t, h.ctrl.StartCapture(context.Background()))
	assert.Empty(t, h.ctrl.Snapshot().LastError)
}

func TestController_RecordingStopsBeforeCaptureRelease(t *testing.T) {
	tests := []struct {
		name  string
		leave func(*statemachine.Controller) error
	}{
		{"stop capture", func(c *statemachine.Controller) error { return c.StopCapture() }},
		{"leave to unselected", func(c *statemachine.Controller) error { return c.SetMode(statemachine.ModeUnselected) }},
		{"shutdown", func(c *statemachine.Controller) error { return c.Shutdown(context.Background()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.ctrl.SetMode(statemachine.ModeCapture))
			require.NoError(t, h.ctrl.StartCapture(context.Background()))
			require.NoError(t, h.ctrl.StartRecording())

			require.NoError(t, tt.leave(h.ctrl))
			h.waitOffers(t, 2)

			assert.Zero(t, h.devices.Held())
			assert.Zero(t, h.devices.releasedEarly)
			assert.Equal(t, 2, h.devices.releasedAfterRc)
			assert.False(t, h.ctrl.Snapshot().Recording)
		})
	}
}

func TestController_UploadMode(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeUpload))

	require.NoError(t, h.ctrl.SetUpload(upload.SlotCamera, "/v/cam.webm"))
	assert.True(t, h.ctrl.Snapshot().Waiting)
	require.NoError(t, h.ctrl.SetUpload(upload.SlotScreen, "/v/scr.webm"))

	snap := h.ctrl.Snapshot()
	assert.False(t, snap.Waiting)
	assert.Equal(t, "file:cam.webm", snap.Camera)
	_, url, opts := h.main.Bound()
	assert.NotEmpty(t, url)
	assert.True(t, opts.Controls)

	require.NoError(t, h.ctrl.SetMode(statemachine.ModeUnselected))
	assert.Zero(t, h.registry.Outstanding())
	_, url, _ = h.main.Bound()
	assert.Empty(t, url)
}

func TestController_EnterUploadTearsDownCapture(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeCapture))
	require.NoError(t, h.ctrl.StartCapture(context.Background()))
	require.NoError(t, h.ctrl.StartRecording())
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeUnselected))
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeUpload))

	h.waitOffers(t, 2)
	assert.Zero(t, h.devices.Held())
	assert.False(t, h.ctrl.Snapshot().Capturing)
}

func TestController_UploadRacingModeExit(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SetMode(statemachine.ModeUpload))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.ctrl.SetUpload(upload.SlotCamera, "/v/cam.webm")
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.ctrl.SetMode(statemachine.ModeUnselected))
		}()
		wg.Wait()

		assert.Equal(t, statemachine.ModeUnselected, h.ctrl.Mode())
		assert.Zero(t, h.registry.Outstanding(), "iteration %d", i)
	}
}

func TestController_RecordingRacingModeExit(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness(t)
		require.NoError(t, h.ctrl.SetMode(statemachine.ModeCapture))
		require.NoError(t, h.ctrl.StartCapture(context.Background()))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.ctrl.StartRecording()
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.ctrl.SetMode(statemachine.ModeUnselected))
		}()
		wg.Wait()

		assert.False(t, h.ctrl.Snapshot().Recording, "iteration %d", i)
		assert.Zero(t, h.devices.Held())
		for _, e := range h.encoders.Encoders() {
			assert.NotZero(t, e.Stops(), "iteration %d", i)
		}
		h.devices.mu.Lock()
		assert.Zero(t, h.devices.releasedEarly, "iteration %d", i)
		h.devices.mu.Unlock()
	}
}

func TestController_StartRecordingWithoutCapture(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeCapture))
	assert.ErrorIs(t, h.ctrl.StartRecording(), recorder.ErrPrecondition)
	assert.Empty(t, h.encoders.Encoders())
}

func TestController_SwapAndObservers(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeUpload))
	require.NoError(t, h.ctrl.SetUpload(upload.SlotCamera, "/v/cam.webm"))
	h.ctrl.Swap()
	assert.False(t, h.ctrl.HandleKey("Enter"))
	assert.Equal(t, "camera", h.ctrl.Snapshot().Primary)
	require.NoError(t, h.ctrl.SetUpload(upload.SlotScreen, "/v/scr.webm"))

	var mu sync.Mutex
	var snaps []statemachine.Snapshot
	h.ctrl.OnChange(func(s statemachine.Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	h.ctrl.Swap()
	assert.True(t, h.ctrl.HandleKey("Enter"))
	assert.False(t, h.ctrl.HandleKey("x"))
	h.ctrl.Activate()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snaps, 3)
	assert.Equal(t, "screen", snaps[0].Primary)
	assert.Equal(t, "camera", snaps[1].Primary)
	assert.Equal(t, "Screen View", snaps[2].Badge)
	assert.Equal(t, "session-1", snaps[2].SessionID)
}

func TestController_StopDuringPendingCapture(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.devices.DisplayGate = gate
	require.NoError(t, h.ctrl.SetMode(statemachine.ModeCapture))

	done := make(chan error, 1)
	go func() { done <- h.ctrl.StartCapture(context.Background()) }()
	require.Eventually(t, func() bool { return h.ctrl.Snapshot().CapturePending }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.ctrl.SetMode(statemachine.ModeUnselected))
	close(gate)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, capture.ErrAbandoned)
	case <-time.After(2 * time.Second):
		t.Fatal("pending capture did not resolve")
	}
	assert.Zero(t, h.devices.Held())
	assert.Equal(t, statemachine.ModeUnselected, h.ctrl.Mode())
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]statemachine.Mode{
		"none":       statemachine.ModeUnselected,
		"unselected": statemachine.ModeUnselected,
		"capture":    statemachine.ModeCapture,
		"upload":     statemachine.ModeUpload,
	} {
		got, err := statemachine.ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := statemachine.ParseMode("record")
	assert.Error(t, err)
}
