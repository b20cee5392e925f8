// Package source defines the handle shared by the capture, upload, recording
// and playback layers: either a live hardware stream or a file resource.
package source

import (
	"errors"
	"fmt"
)

// Kind tags the variant held by a Handle.
type Kind int

const (
	KindLive Kind = iota + 1
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindLive:
		return "live"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Stream is an active hardware-backed audio/video feed.
type Stream interface {
	ID() string
	Label() string
	// Subscribe registers fn for every payload read from the feed, in order.
	// The returned func removes the subscription.
	Subscribe(fn func([]byte)) (cancel func())
	// Stop ends all tracks of the feed. Safe to call more than once.
	Stop()
	// Done is closed once the feed has ended for any reason.
	Done() <-chan struct{}
	Active() bool
}

var (
	ErrNilStream = errors.New("source: nil stream")
	ErrEmptyURL  = errors.New("source: empty resource url")
)

// Handle is either Live or File, never both. A nil *Handle means absent.
type Handle struct {
	kind        Kind
	stream      Stream
	url         string
	displayName string
}

// NewLive wraps a live stream.
func NewLive(s Stream) (*Handle, error) {
	if s == nil {
		return nil, ErrNilStream
	}
	return &Handle{kind: KindLive, stream: s}, nil
}

// NewFile wraps a revocable resource URL and the name shown to the user.
func NewFile(url, displayName string) (*Handle, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	return &Handle{kind: KindFile, url: url, displayName: displayName}, nil
}

func (h *Handle) Kind() Kind {
	if h == nil {
		return 0
	}
	return h.kind
}

// IsLive reports whether h is a non-nil live handle.
func (h *Handle) IsLive() bool {
	return h != nil && h.kind == KindLive
}

// IsFile reports whether h is a non-nil file handle.
func (h *Handle) IsFile() bool {
	return h != nil && h.kind == KindFile
}

// Stream returns the live stream, or nil for file handles.
func (h *Handle) Stream() Stream {
	if !h.IsLive() {
		return nil
	}
	return h.stream
}

// URL returns the resource URL, or "" for live handles.
func (h *Handle) URL() string {
	if !h.IsFile() {
		return ""
	}
	return h.url
}

func (h *Handle) DisplayName() string {
	if !h.IsFile() {
		return ""
	}
	return h.displayName
}

// Describe returns a short label for logs and status output.
func (h *Handle) Describe() string {
	switch h.Kind() {
	case KindLive:
		return "live:" + h.stream.Label()
	case KindFile:
		return "file:" + h.displayName
	default:
		return "none"
	}
}

// Both reports whether a and b are both present.
func Both(a, b *Handle) bool {
	return a != nil && b != nil
}
