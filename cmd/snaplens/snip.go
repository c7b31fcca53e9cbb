package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/snaplens/internal/launch"
	"go.klb.dev/snaplens/internal/message"
	"go.klb.dev/snaplens/internal/settings"
)

func newSnipCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "snip",
		Short: "Arm the trigger and launch the screenshot tool",
		Long: `Arms a one-shot trigger so the next clipboard image is delivered even
outside the correlation window, then launches the OS screenshot tool.

With a reachable daemon the request goes over the control socket. Otherwise
the trigger token is staged in the settings file, where the daemon's watcher
picks it up.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnip(cmd, v)
		},
	}

	f := cmd.Flags()
	f.Bool("no-launch", false, "arm only; do not start the screenshot tool")
	f.StringSlice("capture-command", nil, "override the screenshot tool command")
	f.String("settings", defaultSettingsPath(), "settings file (fallback when the daemon is unreachable)")
	addClientFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runSnip(cmd *cobra.Command, v *viper.Viper) error {
	noLaunch := v.GetBool("no-launch")

	resp, err := request(cmd, v, &message.Message{Type: message.TypeArm, Launch: !noLaunch})
	if err == nil {
		fmt.Printf("armed (token %s)\n", resp.Token)
		return nil
	}
	if !errors.Is(err, errNoDaemon) {
		return err
	}

	// Control socket unreachable. Stage the token in the settings file;
	// a daemon watching it arms immediately, and we launch the tool
	// ourselves.
	id := uuid.NewString()
	path := v.GetString("settings")
	if _, err := settings.Update(path, func(f *settings.File) { f.TriggerToken = id }); err != nil {
		return fmt.Errorf("no daemon running and settings unwritable: %w", err)
	}
	fmt.Printf("no control socket; trigger %s staged in %s\n", id, path)

	if !noLaunch {
		desktop := &launch.Desktop{CaptureCommand: v.GetStringSlice("capture-command")}
		if err := desktop.StartCapture(cmd.Context()); err != nil {
			return fmt.Errorf("starting screenshot tool: %w", err)
		}
	}
	return nil
}
