// Package surfacews exposes the two playback surfaces to remote viewers over
// a websocket. The daemon decides what each surface shows; viewers render it
// and report playback progress and user input back.
package surfacews

import (
	"encoding/json"

	"github.com/tiroq/dualcap/internal/playback"
)

// ProtocolVersion is sent in Hello.
const ProtocolVersion = 1

// Message is the envelope of every frame in both directions.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// Op codes.
const (
	OpHello      = 0 // server → viewer
	OpIdentify   = 1 // viewer → server
	OpIdentified = 2 // server → viewer
	OpEvent      = 5 // viewer → server
	OpCommand    = 6 // server → viewer
	OpViewState  = 7 // server → viewer
)

type HelloData struct {
	ProtocolVersion int    `json:"protocolVersion"`
	SessionID       string `json:"sessionId"`
}

type IdentifyData struct {
	ProtocolVersion int    `json:"protocolVersion"`
	Name            string `json:"name,omitempty"`
}

type IdentifiedData struct {
	ViewerID string `json:"viewerId"`
}

// Surface actions carried by CommandData.
const (
	ActionBindLive = "bind_live"
	ActionBindURL  = "bind_url"
	ActionDetach   = "detach"
	ActionSeek     = "seek"
	ActionPlay     = "play"
	ActionPause    = "pause"
)

// CommandData tells a viewer what to do with one surface.
type CommandData struct {
	Surface  string            `json:"surface"`
	Action   string            `json:"action"`
	URL      string            `json:"url,omitempty"`
	Href     string            `json:"href,omitempty"` // HTTP path the viewer loads
	StreamID string            `json:"streamId,omitempty"`
	Label    string            `json:"label,omitempty"`
	Options  *playback.Options `json:"options,omitempty"`
	Seconds  float64           `json:"seconds,omitempty"`
}

// Viewer event types carried by EventData.
const (
	EventTimeUpdate = "timeupdate"
	EventPlay       = "play"
	EventPause      = "pause"
	EventActivate   = "activate"
	EventKey        = "key"
)

// EventData reports playback progress or input on one surface.
type EventData struct {
	Surface  string  `json:"surface"`
	Type     string  `json:"type"`
	Position float64 `json:"position,omitempty"`
	Key      string  `json:"key,omitempty"`
}

// ViewState is what the viewer draws around the surfaces.
type ViewState struct {
	Waiting     bool   `json:"waiting"`
	WaitingText string `json:"waitingText,omitempty"`
	Badge       string `json:"badge"`
	Primary     string `json:"primary"`
	Mode        string `json:"mode"`
	Recording   bool   `json:"recording"`
}

func encode(op int, d interface{}) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Op: op, D: raw})
}

func surfaceName(r playback.Role) string {
	return r.String()
}

func parseSurface(s string) (playback.Role, bool) {
	switch s {
	case "main":
		return playback.RoleMain, true
	case "pip":
		return playback.RolePIP, true
	default:
		return 0, false
	}
}
