// Command dualcap-core is the dual-capture daemon. It owns the camera and
// display devices, records both feeds, serves the viewer and takes commands
// from dualcap-ctl through the state dir.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/tiroq/dualcap/internal/config"
	"github.com/tiroq/dualcap/internal/diaglog"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC in dualcap-core: %v\n", r)
			os.Exit(1)
		}
	}()

	cmd := &cli.Command{
		Name:        "dualcap-core",
		Usage:       "dual camera + screen capture daemon",
		Version:     Version,
		Description: "captures camera and display, records both and serves the viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "yaml config file",
				Sources: cli.EnvVars("DUALCAP_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "state-dir",
				Usage: "directory for cmd.txt, status.json and the pid file",
				Value: config.StateDir(),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "overrides log.level",
			},
			&cli.StringFlag{
				Name:  "write-config",
				Usage: "write the effective configuration to this path and exit",
			},
			&cli.BoolFlag{
				Name:  "export-diag",
				Usage: "write a diagnostics bundle from the debug log and exit",
			},
			&cli.StringFlag{
				Name:  "session",
				Usage: "with --export-diag, keep only this session's entries",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "with --export-diag, directory to write the bundle to",
				Value: ".",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Bool("export-diag") {
				return exportDiag(c.String("session"), c.String("out"))
			}
			if dest := c.String("write-config"); dest != "" {
				return writeConfig(c.String("config"), dest)
			}
			return run(ctx, c)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// writeConfig loads the configuration the daemon would run with and saves
// it to dest, e.g. to seed ~/.config/dualcap/config.yaml.
func writeConfig(src, dest string) error {
	cfg, err := config.Load(src)
	if err != nil {
		return err
	}
	if err := config.Save(dest, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote: %s\n", dest)
	return nil
}

func exportDiag(session, out string) error {
	diaglog.Version = Version
	logPath := diaglog.DefaultPath()
	path, n, err := diaglog.Export(logPath, out, session)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "hint: run with DUALCAP_DEBUG=true to enable logging")
		}
		return err
	}
	fmt.Printf("Wrote: %s (%d lines)\n", path, n)
	return nil
}
