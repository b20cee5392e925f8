package testutil

import (
	"sync"

	"github.com/tiroq/dualcap/internal/playback"
	"github.com/tiroq/dualcap/internal/source"
)

// SurfaceCall is one recorded call on a Surface.
type SurfaceCall struct {
	Op      string
	URL     string
	Stream  source.Stream
	Options playback.Options
	Seek    float64
}

// Surface is a playback.Surface that records calls and keeps the binding
// state a real player would.
type Surface struct {
	mu       sync.Mutex
	calls    []SurfaceCall
	live     source.Stream
	url      string
	opts     playback.Options
	position float64
	playing  bool
}

func NewSurface() *Surface { return &Surface{} }

func (s *Surface) BindLive(st source.Stream, opts playback.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = ""
	s.live, s.opts = st, opts
	s.calls = append(s.calls, SurfaceCall{Op: "bind_live", Stream: st, Options: opts})
}

func (s *Surface) BindURL(url string, opts playback.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = nil
	s.url, s.opts = url, opts
	s.position = 0
	s.calls = append(s.calls, SurfaceCall{Op: "bind_url", URL: url, Options: opts})
}

func (s *Surface) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live, s.url, s.opts = nil, "", playback.Options{}
	s.calls = append(s.calls, SurfaceCall{Op: "detach"})
}

func (s *Surface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *Surface) Seek(sec float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = sec
	s.calls = append(s.calls, SurfaceCall{Op: "seek", Seek: sec})
}

func (s *Surface) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	s.calls = append(s.calls, SurfaceCall{Op: "play"})
}

func (s *Surface) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.calls = append(s.calls, SurfaceCall{Op: "pause"})
}

// SetPosition simulates playback progress without recording a call.
func (s *Surface) SetPosition(sec float64) {
	s.mu.Lock()
	s.position = sec
	s.mu.Unlock()
}

func (s *Surface) Calls() []SurfaceCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SurfaceCall(nil), s.calls...)
}

// CallsOf returns the recorded calls with the given op.
func (s *Surface) CallsOf(op string) []SurfaceCall {
	var out []SurfaceCall
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *Surface) Reset() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// Bound returns the live stream or URL currently bound.
func (s *Surface) Bound() (source.Stream, string, playback.Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live, s.url, s.opts
}

func (s *Surface) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}
