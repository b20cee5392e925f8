// Command dualcap-ctl sends commands to a running dualcap-core and prints
// its status.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/tiroq/dualcap/internal/config"
	"github.com/tiroq/dualcap/internal/ipc"
	"github.com/tiroq/dualcap/internal/pidfile"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "dualcap-ctl",
		Usage:     "control a running dualcap-core",
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "state-dir",
				Usage: "state dir of the daemon",
				Value: config.StateDir(),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "mode",
				Usage:     "switch mode: capture, upload or none",
				ArgsUsage: "<capture|upload|none>",
				Action: func(ctx context.Context, c *cli.Command) error {
					switch c.Args().First() {
					case "capture":
						return send(c, ipc.Command{Name: ipc.CmdModeCapture})
					case "upload":
						return send(c, ipc.Command{Name: ipc.CmdModeUpload})
					case "none", "unselected":
						return send(c, ipc.Command{Name: ipc.CmdModeNone})
					default:
						return fmt.Errorf("unknown mode %q (want capture, upload or none)", c.Args().First())
					}
				},
			},
			{
				Name:  "capture",
				Usage: "start or stop the camera and display",
				Commands: []*cli.Command{
					simple("start", "acquire camera and display", ipc.CmdCaptureStart),
					simple("stop", "release camera and display", ipc.CmdCaptureStop),
				},
			},
			{
				Name:  "record",
				Usage: "start or stop recording both feeds",
				Commands: []*cli.Command{
					simple("start", "start both encoders", ipc.CmdRecordStart),
					simple("stop", "stop and save both recordings", ipc.CmdRecordStop),
				},
			},
			{
				Name:  "upload",
				Usage: "load files into the upload slots",
				Commands: []*cli.Command{
					uploadSlot("camera", ipc.CmdUploadCamera),
					uploadSlot("screen", ipc.CmdUploadScreen),
					simple("clear", "empty both slots", ipc.CmdUploadClear),
				},
			},
			simple("swap", "exchange the main and pip views", ipc.CmdSwap),
			simple("quit", "shut the daemon down", ipc.CmdQuit),
			{
				Name:  "status",
				Usage: "print the daemon status",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print the raw status.json"},
				},
				Action: printStatus,
			},
		},
	}
}

func simple(name, usage string, cmd ipc.CommandName) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Present() {
				return fmt.Errorf("%s takes no arguments", name)
			}
			return send(c, ipc.Command{Name: cmd})
		},
	}
}

func uploadSlot(slot string, cmd ipc.CommandName) *cli.Command {
	return &cli.Command{
		Name:      slot,
		Usage:     "load a video file into the " + slot + " slot",
		ArgsUsage: "<file>",
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.Args().First()
			if path == "" {
				return errors.New("a file path is required")
			}
			if _, err := os.Stat(path); err != nil {
				return err
			}
			return send(c, ipc.Command{Name: cmd, Arg: path})
		},
	}
}

func send(c *cli.Command, cmd ipc.Command) error {
	paths := ipc.Paths{Dir: c.String("state-dir")}
	if _, ok := pidfile.Running(paths.PID()); !ok {
		fmt.Fprintln(c.Root().ErrWriter, "warning: dualcap-core does not appear to be running")
	}
	if err := ipc.WriteCommand(paths, cmd); err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "sent: %s\n", cmd)
	return nil
}

func printStatus(ctx context.Context, c *cli.Command) error {
	paths := ipc.Paths{Dir: c.String("state-dir")}
	st, err := ipc.ReadStatus(paths)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("no status yet; is dualcap-core running?")
		}
		return err
	}
	w := c.Root().Writer

	if c.Bool("json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	running := "no"
	if pid, ok := pidfile.Running(paths.PID()); ok {
		running = fmt.Sprintf("yes (PID %d)", pid)
	}
	fmt.Fprintf(w, "Running:    %s\n", running)
	fmt.Fprintf(w, "Mode:       %s\n", st.Mode)
	fmt.Fprintf(w, "Capturing:  %s\n", yesNo(st.Capturing, st.CapturePending))
	fmt.Fprintf(w, "Recording:  %s [camera: %s, screen: %s]\n", yesNo(st.Recording, false), st.CameraEncoder, st.ScreenEncoder)
	fmt.Fprintf(w, "Camera:     %s\n", st.Camera)
	fmt.Fprintf(w, "Screen:     %s\n", st.Screen)
	fmt.Fprintf(w, "Main view:  %s (badge %q)\n", st.Primary, st.Badge)
	fmt.Fprintf(w, "Viewers:    %d at http://%s (%d events)\n", st.Viewers, st.ListenAddr, st.ViewerEvents)
	fmt.Fprintf(w, "Files:      %d opened, %d released\n", st.ResourcesCreated, st.ResourcesRevoked)
	if st.LastAction != "" {
		fmt.Fprintf(w, "Last:       %s\n", st.LastAction)
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Error:      %s\n", st.LastError)
	}
	if len(st.Saved) > 0 {
		fmt.Fprintln(w, "Saved:")
		for _, s := range st.Saved {
			fmt.Fprintf(w, "  %s (%d bytes)\n", s.Path, s.Size)
		}
	}
	return nil
}

func yesNo(v, pending bool) string {
	var b strings.Builder
	if v {
		b.WriteString("yes")
	} else {
		b.WriteString("no")
	}
	if pending {
		b.WriteString(" (waiting for permission)")
	}
	return b.String()
}
