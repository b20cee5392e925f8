package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/dualcap/internal/config"
	"github.com/tiroq/dualcap/internal/ipc"
	"github.com/tiroq/dualcap/internal/statemachine"
	"github.com/tiroq/dualcap/internal/upload"
)

func TestWriteConfig(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.yaml")
	require.NoError(t, os.WriteFile(src, []byte("server:\n  listen_addr: 127.0.0.1:9999\n"), 0644))

	dest := filepath.Join(dir, "nested", "config.yaml")
	require.NoError(t, writeConfig(src, dest))

	cfg, err := config.Load(dest)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddr)
	assert.Equal(t, config.Default().Recording.MediaType, cfg.Recording.MediaType)
}

func TestWriteConfig_InvalidSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.yaml")
	require.NoError(t, os.WriteFile(src, []byte("recording:\n  media_type: audio/ogg\n"), 0644))

	dest := filepath.Join(dir, "config.yaml")
	assert.Error(t, writeConfig(src, dest))
	assert.NoFileExists(t, dest)
}

func TestDaemon_StatusCountsResources(t *testing.T) {
	t.Setenv("DUALCAP_DEBUG", "")
	cfg := config.Default()
	cfg.Recording.OutputDir = t.TempDir()
	paths := ipc.Paths{Dir: t.TempDir()}

	d, err := newDaemon(cfg, paths)
	require.NoError(t, err)
	defer d.hub.Close()

	clip := filepath.Join(t.TempDir(), "cam.webm")
	require.NoError(t, os.WriteFile(clip, []byte("webm"), 0644))

	require.NoError(t, d.ctrl.SetMode(statemachine.ModeUpload))
	require.NoError(t, d.ctrl.SetUpload(upload.SlotCamera, clip))

	st, err := ipc.ReadStatus(paths)
	require.NoError(t, err)
	assert.Equal(t, statemachine.ModeUpload, st.Mode)
	assert.Equal(t, 1, st.ResourcesCreated)
	assert.Zero(t, st.ResourcesRevoked)
	assert.Zero(t, st.Viewers)

	require.NoError(t, d.ctrl.SetMode(statemachine.ModeUnselected))
	st = d.status(d.ctrl.Snapshot())
	assert.Equal(t, 1, st.ResourcesCreated)
	assert.Equal(t, 1, st.ResourcesRevoked)
	assert.Equal(t, os.Getpid(), st.PID)
}
