package recorder_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tiroq/dualcap/internal/recorder"
	"github.com/tiroq/dualcap/internal/source"
	"github.com/tiroq/dualcap/testutil"
)

func liveHandles(t *testing.T) (cam, scr *source.Handle) {
	t.Helper()
	cam, err := source.NewLive(testutil.NewFakeStream("camera"))
	require.NoError(t, err)
	scr, err = source.NewLive(testutil.NewFakeStream("display"))
	require.NoError(t, err)
	return cam, scr
}

func waitDone(t *testing.T, c *recorder.Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func TestCoordinator_RecordAndOffer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	enc := testutil.NewFakeEncoderProvider()
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(enc, sink)
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	assert.True(t, c.IsRecording())
	camState, scrState := c.States()
	assert.Equal(t, recorder.StateRecording, camState)
	assert.Equal(t, recorder.StateRecording, scrState)

	encoders := enc.Encoders()
	require.Len(t, encoders, 2)
	encoders[0].Chunk([]byte("c1"))
	encoders[1].Chunk([]byte("s1"))
	encoders[0].Chunk([]byte("c2"))
	encoders[0].Chunk(nil)
	encoders[1].Chunk([]byte("s2"))

	c.Stop()
	assert.False(t, c.IsRecording())
	waitDone(t, c)

	camArt, ok := sink.ByName(recorder.CameraArtifactName)
	require.True(t, ok)
	assert.Equal(t, []byte("c1c2"), camArt.Data)
	assert.Equal(t, 2, camArt.Chunks)
	assert.Equal(t, "video/webm", camArt.MediaType)

	scrArt, ok := sink.ByName(recorder.ScreenArtifactName)
	require.True(t, ok)
	assert.Equal(t, []byte("s1s2"), scrArt.Data)

	camState, scrState = c.States()
	assert.Equal(t, recorder.StateDone, camState)
	assert.Equal(t, recorder.StateDone, scrState)
}

func TestCoordinator_StartPreconditions(t *testing.T) {
	cam, scr := liveHandles(t)
	file, err := source.NewFile("blob:test/1", "a.webm")
	require.NoError(t, err)

	tests := []struct {
		name   string
		camera *source.Handle
		screen *source.Handle
	}{
		{"both missing", nil, nil},
		{"screen missing", cam, nil},
		{"camera missing", nil, scr},
		{"file handle", file, scr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := testutil.NewFakeEncoderProvider()
			c := recorder.NewCoordinator(enc, testutil.NewMemorySink())

			err := c.Start(tt.camera, tt.screen)
			assert.ErrorIs(t, err, recorder.ErrPrecondition)
			assert.False(t, c.IsRecording())
			assert.Empty(t, enc.Encoders())
		})
	}
}

func TestCoordinator_StartWhileRecordingIsRejected(t *testing.T) {
	enc := testutil.NewFakeEncoderProvider()
	c := recorder.NewCoordinator(enc, testutil.NewMemorySink())
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	assert.ErrorIs(t, c.Start(cam, scr), recorder.ErrPrecondition)
	assert.Len(t, enc.Encoders(), 2)

	c.Stop()
	waitDone(t, c)
}

func TestCoordinator_StopIdempotent(t *testing.T) {
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(testutil.NewFakeEncoderProvider(), sink)

	c.Stop()
	cam, scr := liveHandles(t)
	require.NoError(t, c.Start(cam, scr))
	c.Stop()
	c.Stop()
	waitDone(t, c)

	assert.Len(t, sink.Artifacts(), 2)
}

func TestCoordinator_EmptyRecordingStillOffered(t *testing.T) {
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(testutil.NewFakeEncoderProvider(), sink)
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	c.Stop()
	waitDone(t, c)

	a, ok := sink.ByName(recorder.CameraArtifactName)
	require.True(t, ok)
	assert.Empty(t, a.Data)
}

func TestCoordinator_FreshBuffersPerRun(t *testing.T) {
	enc := testutil.NewFakeEncoderProvider()
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(enc, sink)
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	enc.Encoders()[0].Chunk([]byte("first"))
	c.Stop()
	waitDone(t, c)

	require.NoError(t, c.Start(cam, scr))
	enc.Encoders()[2].Chunk([]byte("second"))
	c.Stop()
	waitDone(t, c)

	arts := sink.Artifacts()
	require.Len(t, arts, 4)
	last, ok := sink.ByName(recorder.CameraArtifactName)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), last.Data)
}

func TestCoordinator_SinkFailureIsolated(t *testing.T) {
	sink := testutil.NewMemorySink()
	sink.Err[recorder.CameraArtifactName] = errors.New("disk full")
	c := recorder.NewCoordinator(testutil.NewFakeEncoderProvider(), sink)
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	c.Stop()
	waitDone(t, c)

	_, ok := sink.ByName(recorder.CameraArtifactName)
	assert.False(t, ok)
	_, ok = sink.ByName(recorder.ScreenArtifactName)
	assert.True(t, ok)
}

func TestCoordinator_SlowSinkDoesNotBlockPeer(t *testing.T) {
	sink := testutil.NewMemorySink()
	gate := make(chan struct{})
	sink.Block[recorder.CameraArtifactName] = gate
	c := recorder.NewCoordinator(testutil.NewFakeEncoderProvider(), sink)
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	c.Stop()

	select {
	case name := <-sink.Offered():
		assert.Equal(t, recorder.ScreenArtifactName, name)
	case <-time.After(2 * time.Second):
		t.Fatal("screen artifact was held up by the camera offer")
	}
	close(gate)
	waitDone(t, c)
	assert.Len(t, sink.Artifacts(), 2)
}

func TestCoordinator_EncoderEndingStopsPeer(t *testing.T) {
	enc := testutil.NewFakeEncoderProvider()
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(enc, sink)
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	encoders := enc.Encoders()
	encoders[0].Chunk([]byte("c"))
	encoders[1].Chunk([]byte("s"))
	encoders[1].Finish(errors.New("track ended"))

	waitDone(t, c)
	assert.False(t, c.IsRecording())
	assert.Equal(t, 1, encoders[0].Stops())
	assert.Len(t, sink.Artifacts(), 2)
}

func TestCoordinator_EncoderErrorWithoutDataSkipsOffer(t *testing.T) {
	enc := testutil.NewFakeEncoderProvider()
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(enc, sink)
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	encoders := enc.Encoders()
	encoders[0].Chunk([]byte("c"))
	encoders[1].Finish(errors.New("device lost"))

	waitDone(t, c)
	_, ok := sink.ByName(recorder.ScreenArtifactName)
	assert.False(t, ok)
	_, ok = sink.ByName(recorder.CameraArtifactName)
	assert.True(t, ok)
}

func TestCoordinator_EncoderCreationFailure(t *testing.T) {
	enc := testutil.NewFakeEncoderProvider()
	enc.FailOn = 2
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(enc, sink)
	cam, scr := liveHandles(t)

	err := c.Start(cam, scr)
	require.Error(t, err)
	assert.False(t, c.IsRecording())

	encoders := enc.Encoders()
	require.Len(t, encoders, 1)
	assert.False(t, encoders[0].Started())
	assert.Empty(t, sink.Artifacts())
}

func TestCoordinator_EncoderStartFailureAbortsBoth(t *testing.T) {
	enc := testutil.NewFakeEncoderProvider()
	enc.StartErr = errors.New("unsupported")
	sink := testutil.NewMemorySink()
	c := recorder.NewCoordinator(enc, sink)
	cam, scr := liveHandles(t)

	require.Error(t, c.Start(cam, scr))
	assert.False(t, c.IsRecording())
	assert.Empty(t, sink.Artifacts())
}

func TestCoordinator_WaitHonoursContext(t *testing.T) {
	enc := testutil.NewFakeEncoderProvider()
	enc.AutoFinish = false
	c := recorder.NewCoordinator(enc, testutil.NewMemorySink())
	cam, scr := liveHandles(t)

	require.NoError(t, c.Start(cam, scr))
	c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)

	for _, e := range enc.Encoders() {
		e.Finish(nil)
	}
	waitDone(t, c)
}
