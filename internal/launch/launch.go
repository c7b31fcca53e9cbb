// Package launch shells out to the desktop session: opening URLs in the
// default browser and starting the platform screenshot tool.
package launch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Desktop launches desktop helpers. The zero value uses the platform
// defaults.
type Desktop struct {
	// CaptureCommand overrides the platform screenshot command.
	CaptureCommand []string
}

// OpenURL hands rawURL to the user's default browser. The helper is
// started and reaped but not waited on.
func (d *Desktop) OpenURL(ctx context.Context, rawURL string) error {
	return start(ctx, openURLArgs(rawURL))
}

// StartCapture launches the interactive screenshot tool so the user can
// snip a region to the clipboard.
func (d *Desktop) StartCapture(ctx context.Context) error {
	args := d.CaptureCommand
	if len(args) == 0 {
		args = captureArgs()
	}
	return start(ctx, args)
}

func start(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("no command configured")
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", args[0], err)
	}
	go cmd.Wait() // reap; the exit status is the desktop's business
	return nil
}
