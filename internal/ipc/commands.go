// Package ipc connects dualcap-ctl to the daemon through the state dir: a
// command file the daemon consumes and a status file it publishes.
package ipc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// CommandName is the verb of a control command.
type CommandName string

const (
	CmdModeCapture  CommandName = "mode-capture"  // Enter capture mode
	CmdModeUpload   CommandName = "mode-upload"   // Enter upload mode
	CmdModeNone     CommandName = "mode-none"     // Return to unselected
	CmdCaptureStart CommandName = "capture-start" // Acquire camera and display
	CmdCaptureStop  CommandName = "capture-stop"  // Release both devices
	CmdRecordStart  CommandName = "record-start"  // Record both feeds
	CmdRecordStop   CommandName = "record-stop"   // Stop and save both recordings
	CmdUploadCamera CommandName = "upload-camera" // Load a file into the camera slot
	CmdUploadScreen CommandName = "upload-screen" // Load a file into the screen slot
	CmdUploadClear  CommandName = "upload-clear"  // Empty both upload slots
	CmdSwap         CommandName = "swap"          // Exchange main and pip
	CmdQuit         CommandName = "quit"          // Shut the daemon down
)

var takesPath = map[CommandName]bool{
	CmdUploadCamera: true,
	CmdUploadScreen: true,
}

var known = map[CommandName]bool{
	CmdModeCapture: true, CmdModeUpload: true, CmdModeNone: true,
	CmdCaptureStart: true, CmdCaptureStop: true,
	CmdRecordStart: true, CmdRecordStop: true,
	CmdUploadCamera: true, CmdUploadScreen: true, CmdUploadClear: true,
	CmdSwap: true, CmdQuit: true,
}

// ErrUnknownCommand is returned by ParseCommand for an unknown verb.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one line of the command file: a verb and an optional argument.
type Command struct {
	Name CommandName
	Arg  string
}

func (c Command) String() string {
	if c.Arg == "" {
		return string(c.Name)
	}
	return string(c.Name) + " " + c.Arg
}

// ParseCommand parses "verb" or "verb argument". Upload verbs need a path;
// other verbs take none.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	name, arg, _ := strings.Cut(line, " ")
	cmd := Command{Name: CommandName(name), Arg: strings.TrimSpace(arg)}

	if !known[cmd.Name] {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if takesPath[cmd.Name] && cmd.Arg == "" {
		return Command{}, fmt.Errorf("%s requires a file path", name)
	}
	if !takesPath[cmd.Name] && cmd.Arg != "" {
		return Command{}, fmt.Errorf("%s takes no argument", name)
	}
	return cmd, nil
}

// Paths locates the files of a state dir.
type Paths struct {
	Dir string
}

func (p Paths) Command() string { return filepath.Join(p.Dir, "cmd.txt") }
func (p Paths) Status() string  { return filepath.Join(p.Dir, "status.json") }
func (p Paths) PID() string     { return filepath.Join(p.Dir, "dualcap-core.pid") }

// WriteCommand atomically replaces the command file with cmd. Upload paths
// are made absolute, since the daemon runs in another directory.
func WriteCommand(p Paths, cmd Command) error {
	if takesPath[cmd.Name] {
		abs, err := filepath.Abs(cmd.Arg)
		if err != nil {
			return err
		}
		cmd.Arg = abs
	}
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return err
	}
	return renameio.WriteFile(p.Command(), []byte(cmd.String()+"\n"), 0644)
}

// ReadCommand takes the pending command, if any, out of the command file.
// The file is moved aside before reading so a command written concurrently
// is never lost. ok is false when no command was pending.
func ReadCommand(p Paths) (cmd Command, ok bool, err error) {
	taking := p.Command() + ".taking"
	if err := os.Rename(p.Command(), taking); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Command{}, false, nil
		}
		return Command{}, false, err
	}
	defer os.Remove(taking)

	data, err := os.ReadFile(taking)
	if err != nil {
		return Command{}, false, err
	}
	if strings.TrimSpace(string(data)) == "" {
		return Command{}, false, nil
	}
	cmd, err = ParseCommand(string(data))
	if err != nil {
		return Command{}, false, err
	}
	return cmd, true, nil
}
