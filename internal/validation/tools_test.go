package validation

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tiroq/dualcap/internal/config"
)

func fakeLook(known ...string) LookPath {
	return func(file string) (string, error) {
		for _, k := range known {
			if k == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
	}
}

func TestValidateDeviceCommand(t *testing.T) {
	tests := []struct {
		name   string
		cmd    config.DeviceCommand
		wantOK bool
	}{
		{"found", config.DeviceCommand{Command: []string{"ffmpeg", "-i", "x"}}, true},
		{"missing binary", config.DeviceCommand{Command: []string{"wf-recorder"}}, false},
		{"empty", config.DeviceCommand{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateDeviceCommand("camera", tt.cmd, fakeLook("ffmpeg"))
			if result.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v (%s)", result.OK, tt.wantOK, result.Message)
			}
			if !tt.wantOK && len(result.Fixes) == 0 {
				t.Error("expected fixes for a failed check")
			}
		})
	}
}

func TestValidateOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out", "nested")
	result := ValidateOutputDir(dir)
	if !result.OK {
		t.Fatalf("expected OK, got %s", result.Message)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("write check file left behind: %v", entries)
	}

	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if ValidateOutputDir(filepath.Join(file, "sub")).OK {
		t.Error("expected failure below a regular file")
	}
}

func TestCheckCaptureHealth(t *testing.T) {
	cfg := config.Default()
	cfg.Recording.OutputDir = t.TempDir()

	result := CheckCaptureHealth(cfg, fakeLook("ffmpeg"))
	if !result.OK {
		t.Fatalf("expected pass, got %s", result.Message)
	}
	if !strings.HasPrefix(result.Message, "Capture health check passed") {
		t.Errorf("unexpected message %q", result.Message)
	}

	result = CheckCaptureHealth(cfg, fakeLook())
	if result.OK {
		t.Fatal("expected failure without ffmpeg")
	}
	if len(result.Issues) != 2 {
		t.Errorf("want 2 issues, got %d: %v", len(result.Issues), result.Issues)
	}
}

func TestSuggestedFixes(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}, "not installed"},
		{errors.New("camera exited: /dev/video0: Permission denied"), "video group"},
		{errors.New("camera exited: Device or resource busy"), "in use"},
		{errors.New("No such file or directory"), "v4l2-ctl"},
		{errors.New("boom"), "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			fixes := strings.Join(SuggestedFixes(tt.err), "\n")
			if !strings.Contains(fixes, tt.want) {
				t.Errorf("fixes for %v missing %q:\n%s", tt.err, tt.want, fixes)
			}
		})
	}
	if SuggestedFixes(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
