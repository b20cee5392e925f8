package main

import (
	"context"
	"fmt"

	"github.com/tiroq/dualcap/internal/ipc"
	"github.com/tiroq/dualcap/internal/statemachine"
	"github.com/tiroq/dualcap/internal/upload"
)

// dispatch applies one control command to the controller. quit is called
// for the quit command. Errors are already recorded in the controller's
// status, so callers may ignore them.
func dispatch(ctx context.Context, ctrl *statemachine.Controller, cmd ipc.Command, quit func()) error {
	switch cmd.Name {
	case ipc.CmdModeCapture:
		return ctrl.SetMode(statemachine.ModeCapture)
	case ipc.CmdModeUpload:
		return ctrl.SetMode(statemachine.ModeUpload)
	case ipc.CmdModeNone:
		return ctrl.SetMode(statemachine.ModeUnselected)
	case ipc.CmdCaptureStart:
		return ctrl.StartCapture(ctx)
	case ipc.CmdCaptureStop:
		return ctrl.StopCapture()
	case ipc.CmdRecordStart:
		return ctrl.StartRecording()
	case ipc.CmdRecordStop:
		return ctrl.StopRecording()
	case ipc.CmdUploadCamera:
		return ctrl.SetUpload(upload.SlotCamera, cmd.Arg)
	case ipc.CmdUploadScreen:
		return ctrl.SetUpload(upload.SlotScreen, cmd.Arg)
	case ipc.CmdUploadClear:
		return ctrl.ClearUploads()
	case ipc.CmdSwap:
		ctrl.Swap()
		return nil
	case ipc.CmdQuit:
		quit()
		return nil
	default:
		return fmt.Errorf("%w: %q", ipc.ErrUnknownCommand, cmd.Name)
	}
}
