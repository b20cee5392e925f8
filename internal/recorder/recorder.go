// Package recorder records the two live capture handles with two independent
// encoders and hands each finalized recording to an artifact sink.
package recorder

import (
	"errors"
	"time"

	"github.com/tiroq/dualcap/internal/source"
)

// Fixed artifact names, before the container extension.
const (
	CameraArtifactName = "camera-recording"
	ScreenArtifactName = "screen-recording"
)

var (
	// ErrPrecondition is returned by Start when it was a no-op.
	ErrPrecondition = errors.New("recording requires two live handles and no active recording")
	ErrNotLive      = errors.New("encoder requires a live handle")
	ErrNoSource     = errors.New("encoder requires a source handle")
	ErrStreamEnded  = errors.New("live stream already ended")
)

// Encoder turns one live handle into an ordered sequence of encoded chunks.
// Start and Stop return immediately; onChunk is called in emission order and
// onStop exactly once after the last chunk.
type Encoder interface {
	Start(onChunk func([]byte), onStop func(error)) error
	Stop()
	MediaType() string
}

// EncoderProvider binds a new encoder to a live handle.
type EncoderProvider interface {
	NewEncoder(h *source.Handle) (Encoder, error)
}

// Artifact is one finalized recording.
type Artifact struct {
	Name      string
	MediaType string
	Data      []byte
	Chunks    int
	StartedAt time.Time
	StoppedAt time.Time
}

// ArtifactSink receives finalized recordings, e.g. by saving them for the user.
type ArtifactSink interface {
	OfferDownload(a Artifact) error
}
