package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tiroq/dualcap/internal/artifact"
	"github.com/tiroq/dualcap/internal/capture"
	"github.com/tiroq/dualcap/internal/config"
	"github.com/tiroq/dualcap/internal/device"
	"github.com/tiroq/dualcap/internal/diaglog"
	"github.com/tiroq/dualcap/internal/ipc"
	"github.com/tiroq/dualcap/internal/logging"
	"github.com/tiroq/dualcap/internal/pidfile"
	"github.com/tiroq/dualcap/internal/playback"
	"github.com/tiroq/dualcap/internal/recorder"
	"github.com/tiroq/dualcap/internal/resource"
	"github.com/tiroq/dualcap/internal/server"
	"github.com/tiroq/dualcap/internal/statemachine"
	"github.com/tiroq/dualcap/internal/surfacews"
	"github.com/tiroq/dualcap/internal/upload"
	"github.com/tiroq/dualcap/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// daemon holds the wired components.
type daemon struct {
	cfg       *config.Config
	paths     ipc.Paths
	sessionID string
	log       zerolog.Logger
	diag      *diaglog.Logger

	devices  *device.CommandProvider
	registry *resource.LocalRegistry
	sink     *artifact.FileSink
	hub      *surfacews.Hub
	ctrl     *statemachine.Controller
}

func run(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	level := cfg.Log.Level
	if l := c.String("log-level"); l != "" {
		level = l
	}
	logging.Configure(logging.Config{
		Level:     level,
		File:      cfg.Log.File,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Service:   "dualcap-core",
		Version:   Version,
	})
	defer logging.Close()
	log := logging.WithComponent("core")

	paths := ipc.Paths{Dir: c.String("state-dir")}
	pf, err := pidfile.Acquire(paths.PID())
	if err != nil {
		log.Error().Err(err).Str("pid_file", paths.PID()).Msg("failed to claim pid file")
		return err
	}
	defer func() {
		if err := pf.Release(); err != nil {
			log.Warn().Err(err).Msg("failed to remove pid file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Str("state_dir", paths.Dir).Msg("starting dualcap-core")

	health := validation.CheckCaptureHealth(cfg, nil)
	if health.OK {
		log.Info().Msg(health.Message)
	} else {
		// Upload mode works without the capture tools, so this is not fatal.
		log.Warn().Strs("issues", health.Issues).Strs("fixes", health.Fixes).Msg(health.Message)
	}

	d, err := newDaemon(cfg, paths)
	if err != nil {
		return err
	}
	return d.run(ctx)
}

func newDaemon(cfg *config.Config, paths ipc.Paths) (*daemon, error) {
	d := &daemon{
		cfg:       cfg,
		paths:     paths,
		sessionID: uuid.NewString(),
		log:       logging.WithComponent("core"),
	}

	diaglog.Version = Version
	diag, err := diaglog.New(diaglog.DefaultPath())
	if err != nil {
		d.log.Warn().Err(err).Msg("diagnostic log unavailable")
		diag = diaglog.NewNoOp()
	}
	d.diag = diag

	primary, err := playback.ParsePrimary(cfg.Playback.StartPrimary)
	if err != nil {
		return nil, err
	}

	d.devices = device.NewCommandProvider(cfg.Devices)
	d.registry = resource.NewLocalRegistry()
	d.sink = artifact.NewFileSink(cfg.Recording.OutputDir, Version)
	d.sink.SetSessionID(d.sessionID)
	d.hub = surfacews.NewHub(d.sessionID)
	d.hub.SetLogger(diag)

	engine := playback.NewEngine(d.hub.Main(), d.hub.PIP(), playback.Layout{Primary: primary},
		playback.WithDriftThreshold(cfg.Playback.DriftThresholdSeconds),
		playback.WithLogger(diag),
	)
	d.ctrl = statemachine.New(
		capture.NewManager(d.devices),
		upload.NewManager(d.registry),
		recorder.NewCoordinator(recorder.StreamEncoderProvider{MediaType: cfg.Recording.MediaType}, d.sink),
		engine,
		d.sessionID,
	)
	d.ctrl.SetLogger(diag)
	d.hub.Attach(d.ctrl)
	d.ctrl.OnChange(d.publish)
	d.sink.OnSaved(func(artifact.Saved) { d.ctrl.Refresh() })
	return d, nil
}

func (d *daemon) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventStartup,
		SessionID: d.sessionID,
		Payload:   map[string]interface{}{"version": Version, "listen_addr": d.cfg.Server.ListenAddr},
	})

	router := server.NewRouter(server.Options{
		Viewer:             d.hub,
		Resources:          d.registry,
		Streams:            d.devices,
		Status:             func() any { return d.status(d.ctrl.Snapshot()) },
		MediaType:          d.cfg.Recording.MediaType,
		RateLimitPerMinute: d.cfg.Server.RateLimitPerMinute,
	})
	srv := server.New(d.cfg.Server.ListenAddr, router)

	g, gctx := errgroup.WithContext(ctx)
	watcher := ipc.NewWatcher(d.paths, func(cmd ipc.Command) {
		if cmd.Name == ipc.CmdCaptureStart {
			// Acquisition may wait on a permission prompt; keep taking
			// commands so capture-stop can abandon it.
			g.Go(func() error {
				_ = dispatch(gctx, d.ctrl, cmd, cancel)
				return nil
			})
			return
		}
		_ = dispatch(gctx, d.ctrl, cmd, cancel)
	})

	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })

	d.ctrl.Refresh()
	d.log.Info().Str("addr", d.cfg.Server.ListenAddr).Str("session_id", d.sessionID).Msg("dualcap-core ready")

	runErr := g.Wait()
	if runErr != nil {
		d.log.Error().Err(runErr).Msg("daemon stopped with error")
	}
	d.shutdown()
	return runErr
}

func (d *daemon) shutdown() {
	d.log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := d.ctrl.Shutdown(ctx); err != nil {
		d.log.Warn().Err(err).Msg("controller shutdown")
	}
	d.hub.Close()
	if err := d.devices.Close(ctx); err != nil {
		d.log.Warn().Err(err).Msg("capture tools did not exit")
	}
	d.diag.Log(diaglog.LogEntry{
		Component: diaglog.ComponentCore,
		Event:     diaglog.EventShutdown,
		SessionID: d.sessionID,
	})
	_ = d.diag.Close()
}

// publish mirrors every controller change to the viewers and status.json.
func (d *daemon) publish(snap statemachine.Snapshot) {
	d.hub.PublishState(viewState(snap))
	if err := ipc.WriteStatus(d.paths, d.status(snap)); err != nil {
		d.log.Warn().Err(err).Msg("failed to write status")
	}
}

func (d *daemon) status(snap statemachine.Snapshot) *ipc.StatusSnapshot {
	created, revoked := d.registry.Counts()
	return &ipc.StatusSnapshot{
		Snapshot:         snap,
		PID:              os.Getpid(),
		Version:          Version,
		ListenAddr:       d.cfg.Server.ListenAddr,
		Viewers:          d.hub.Viewers(),
		ViewerEvents:     d.hub.Received(),
		ResourcesCreated: created,
		ResourcesRevoked: revoked,
		Saved:            d.sink.Saved(),
	}
}

func viewState(snap statemachine.Snapshot) surfacews.ViewState {
	st := surfacews.ViewState{
		Waiting:   snap.Waiting,
		Badge:     snap.Badge,
		Primary:   snap.Primary,
		Mode:      string(snap.Mode),
		Recording: snap.Recording,
	}
	if st.Waiting {
		st.WaitingText = playback.WaitingText
	}
	return st
}
