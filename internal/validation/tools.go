// Package validation checks that the configured capture tools and output
// directory are usable before the daemon starts.
package validation

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/tiroq/dualcap/internal/config"
)

// ValidationResult contains the result of a startup check
type ValidationResult struct {
	OK       bool
	Message  string
	Issues   []string
	Warnings []string
	Fixes    []string
}

func (r *ValidationResult) merge(other *ValidationResult) {
	if !other.OK {
		r.OK = false
	}
	r.Issues = append(r.Issues, other.Issues...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Fixes = append(r.Fixes, other.Fixes...)
}

// LookPath resolves a binary name; exec.LookPath in production.
type LookPath func(file string) (string, error)

// ValidateDeviceCommand checks that the capture tool for device resolves.
func ValidateDeviceCommand(device string, cmd config.DeviceCommand, look LookPath) *ValidationResult {
	result := &ValidationResult{OK: true}

	if len(cmd.Command) == 0 {
		result.OK = false
		result.Message = fmt.Sprintf("No capture command configured for %s", device)
		result.Issues = append(result.Issues, result.Message)
		result.Fixes = append(result.Fixes, fmt.Sprintf("Set devices.%s.command in ~/.config/dualcap/config.yaml", device))
		return result
	}

	bin := cmd.Command[0]
	path, err := look(bin)
	if err != nil {
		result.OK = false
		result.Message = fmt.Sprintf("%s capture tool %q not found", device, bin)
		result.Issues = append(result.Issues, result.Message)
		if bin == "ffmpeg" {
			result.Fixes = append(result.Fixes, "Install ffmpeg (e.g. apt install ffmpeg) or point the command at an absolute path")
		} else {
			result.Fixes = append(result.Fixes, fmt.Sprintf("Install %s or use an absolute path in devices.%s.command", bin, device))
		}
		return result
	}

	result.Message = fmt.Sprintf("%s capture tool: %s", device, path)
	return result
}

// ValidateOutputDir checks that recordings can be written to dir, creating
// it if needed.
func ValidateOutputDir(dir string) *ValidationResult {
	result := &ValidationResult{OK: true}

	if err := os.MkdirAll(dir, 0755); err != nil {
		result.OK = false
		result.Message = fmt.Sprintf("Cannot create output directory %s", dir)
		result.Issues = append(result.Issues, err.Error())
		result.Fixes = append(result.Fixes, "Choose a writable recording.output_dir")
		return result
	}
	f, err := os.CreateTemp(dir, ".dualcap-writecheck-*")
	if err != nil {
		result.OK = false
		result.Message = fmt.Sprintf("Output directory %s is not writable", dir)
		result.Issues = append(result.Issues, err.Error())
		result.Fixes = append(result.Fixes, "Fix the directory permissions or choose another recording.output_dir")
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Message = fmt.Sprintf("Output directory %s is writable", dir)
	return result
}

// CheckCaptureHealth runs every startup check against cfg.
func CheckCaptureHealth(cfg *config.Config, look LookPath) *ValidationResult {
	if look == nil {
		look = exec.LookPath
	}
	result := &ValidationResult{OK: true}
	var messages []string

	for _, check := range []*ValidationResult{
		ValidateDeviceCommand("camera", cfg.Devices.Camera, look),
		ValidateDeviceCommand("display", cfg.Devices.Display, look),
		ValidateOutputDir(cfg.Recording.OutputDir),
	} {
		result.merge(check)
		messages = append(messages, check.Message)
	}

	result.Message = strings.Join(messages, " | ")
	if result.OK {
		result.Message = "Capture health check passed: " + result.Message
	} else {
		result.Message = "Capture health check FAILED: " + result.Message
	}
	return result
}

// SuggestedFixes returns troubleshooting steps for a device acquisition
// error, keyed on what the capture tool printed.
func SuggestedFixes(err error) []string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	var fixes []string

	switch {
	case errors.Is(err, exec.ErrNotFound):
		fixes = append(fixes, "The capture tool is not installed or not on PATH")
		fixes = append(fixes, "  1. Install ffmpeg or the configured tool")
		fixes = append(fixes, "  2. Or set an absolute path in devices.*.command")

	case strings.Contains(msg, "Permission denied"):
		fixes = append(fixes, "The capture tool was denied access to the device")
		fixes = append(fixes, "")
		fixes = append(fixes, "Steps to fix:")
		fixes = append(fixes, "  1. Add your user to the video group: sudo usermod -aG video $USER")
		fixes = append(fixes, "  2. Log out and back in")
		fixes = append(fixes, "  3. For screen capture, allow access to the X display or portal")

	case strings.Contains(msg, "Device or resource busy"):
		fixes = append(fixes, "The device is in use by another application")
		fixes = append(fixes, "  1. Close other apps using the camera")
		fixes = append(fixes, "  2. Check with: fuser /dev/video*")

	case strings.Contains(msg, "No such file or directory"):
		fixes = append(fixes, "The configured device does not exist")
		fixes = append(fixes, "  1. List cameras with: v4l2-ctl --list-devices")
		fixes = append(fixes, "  2. Update the -i argument in devices.camera.command")

	default:
		fixes = append(fixes, fmt.Sprintf("Error: %s", msg))
		fixes = append(fixes, "Run the configured command by hand to see its full output")
	}
	return fixes
}
