package ipc

import (
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"

	"github.com/tiroq/dualcap/internal/artifact"
	"github.com/tiroq/dualcap/internal/statemachine"
)

// StatusSnapshot is the daemon state published to status.json.
type StatusSnapshot struct {
	statemachine.Snapshot
	PID        int    `json:"pid"`
	Version    string `json:"version"`
	ListenAddr string `json:"listen_addr"`
	Viewers    int    `json:"viewers"`
	// ViewerEvents counts playback events and input received from viewers.
	ViewerEvents     int64            `json:"viewer_events"`
	ResourcesCreated int              `json:"resources_created"`
	ResourcesRevoked int              `json:"resources_revoked"`
	Saved            []artifact.Saved `json:"saved,omitempty"`
}

// WriteStatus atomically replaces status.json.
func WriteStatus(p Paths, status *StatusSnapshot) error {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(p.Status(), append(data, '\n'), 0644)
}

// ReadStatus loads status.json.
func ReadStatus(p Paths) (*StatusSnapshot, error) {
	data, err := os.ReadFile(p.Status())
	if err != nil {
		return nil, err
	}
	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
