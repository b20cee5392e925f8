package surfacews

import (
	"sync"

	"github.com/tiroq/dualcap/internal/playback"
	"github.com/tiroq/dualcap/internal/resource"
	"github.com/tiroq/dualcap/internal/source"
)

// LiveURL returns the path viewers fetch a live stream from.
func LiveURL(streamID string) string {
	return "/live/" + streamID
}

// ResourceHref maps a blob:dualcap/<id> URL to the path serving the file.
// Other URLs are returned unchanged.
func ResourceHref(url string) string {
	if id, ok := resource.IDFromURL(url); ok {
		return "/resources/" + id
	}
	return url
}

// RemoteSurface is a playback.Surface rendered by every connected viewer.
// It remembers its binding so late viewers can be brought up to date.
type RemoteSurface struct {
	role playback.Role
	hub  *Hub

	mu       sync.Mutex
	binding  *CommandData
	position float64
}

func (s *RemoteSurface) BindLive(st source.Stream, opts playback.Options) {
	cmd := &CommandData{
		Surface:  surfaceName(s.role),
		Action:   ActionBindLive,
		StreamID: st.ID(),
		Label:    st.Label(),
		URL:      LiveURL(st.ID()),
		Href:     LiveURL(st.ID()),
		Options:  &opts,
	}
	s.mu.Lock()
	s.binding = cmd
	s.position = 0
	s.mu.Unlock()
	s.hub.broadcastCommand(*cmd)
}

func (s *RemoteSurface) BindURL(url string, opts playback.Options) {
	cmd := &CommandData{
		Surface: surfaceName(s.role),
		Action:  ActionBindURL,
		URL:     url,
		Href:    ResourceHref(url),
		Options: &opts,
	}
	s.mu.Lock()
	s.binding = cmd
	s.position = 0
	s.mu.Unlock()
	s.hub.broadcastCommand(*cmd)
}

func (s *RemoteSurface) Detach() {
	s.mu.Lock()
	s.binding = nil
	s.position = 0
	s.mu.Unlock()
	s.hub.broadcastCommand(CommandData{Surface: surfaceName(s.role), Action: ActionDetach})
}

// Position is the last position a viewer reported, or the last seek target.
func (s *RemoteSurface) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *RemoteSurface) Seek(sec float64) {
	s.mu.Lock()
	s.position = sec
	s.mu.Unlock()
	s.hub.broadcastCommand(CommandData{Surface: surfaceName(s.role), Action: ActionSeek, Seconds: sec})
}

func (s *RemoteSurface) Play() {
	s.hub.broadcastCommand(CommandData{Surface: surfaceName(s.role), Action: ActionPlay})
}

func (s *RemoteSurface) Pause() {
	s.hub.broadcastCommand(CommandData{Surface: surfaceName(s.role), Action: ActionPause})
}

func (s *RemoteSurface) report(pos float64) {
	s.mu.Lock()
	s.position = pos
	s.mu.Unlock()
}

// current returns the binding command to replay, or a detach.
func (s *RemoteSurface) current() CommandData {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binding == nil {
		return CommandData{Surface: surfaceName(s.role), Action: ActionDetach}
	}
	return *s.binding
}
