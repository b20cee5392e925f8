// Package playback renders a camera/screen pair on a main surface and a
// picture-in-picture surface, and keeps two file-backed surfaces in step.
package playback

import (
	"fmt"

	"github.com/tiroq/dualcap/internal/source"
)

// Role identifies a surface within the layout.
type Role int

const (
	RoleMain Role = iota
	RolePIP
)

func (r Role) String() string {
	switch r {
	case RoleMain:
		return "main"
	case RolePIP:
		return "pip"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Options are the playback attributes applied with a binding.
type Options struct {
	Muted    bool `json:"muted"`
	Autoplay bool `json:"autoplay"`
	Loop     bool `json:"loop"`
	Controls bool `json:"controls"`
}

// Surface is a playback sink. A surface holds at most one binding: binding a
// URL drops a live binding and vice versa. Implementations must not call back
// into the Engine from these methods.
type Surface interface {
	BindLive(s source.Stream, opts Options)
	BindURL(url string, opts Options)
	Detach()
	// Position is the playback position in seconds; only meaningful for
	// URL bindings.
	Position() float64
	Seek(seconds float64)
	Play()
	Pause()
}

// EventSink receives timing and transport notifications from surfaces.
type EventSink interface {
	OnTimeUpdate(r Role)
	OnPlay(r Role)
	OnPause(r Role)
}
