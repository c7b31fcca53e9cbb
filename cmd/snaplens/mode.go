package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/snaplens/internal/message"
	"go.klb.dev/snaplens/internal/policy"
	"go.klb.dev/snaplens/internal/settings"
)

func newModeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "mode [pause|tray|always]",
		Short: "Show or change the detection mode",
		Long: `Without an argument, prints the current mode. With one, switches it:

  pause   detection off
  tray    deliver only explicitly armed snips ("snaplens snip")
  always  deliver armed snips and tool-correlated clipboard images

Changes go to the running daemon and are persisted in the settings file. If
no daemon is reachable, the settings file is edited directly and the change
applies when the daemon starts.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMode(cmd, v, args)
		},
	}

	cmd.Flags().String("settings", defaultSettingsPath(), "settings file (fallback when the daemon is unreachable)")
	addClientFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runMode(cmd *cobra.Command, v *viper.Viper, args []string) error {
	req := &message.Message{Type: message.TypeMode}
	if len(args) == 1 {
		// Validate locally for a better error than a daemon round trip.
		if _, err := policy.ParseMode(args[0]); err != nil {
			return err
		}
		req.Mode = args[0]
	}

	resp, err := request(cmd, v, req)
	if err == nil {
		printModeLine(resp.Status)
		return nil
	}
	if !errors.Is(err, errNoDaemon) {
		return err
	}

	path := v.GetString("settings")
	if len(args) == 0 {
		f, lerr := settings.Load(path)
		if lerr != nil {
			return fmt.Errorf("no daemon running and settings unreadable: %w", lerr)
		}
		fmt.Printf("mode: %s (paused: %v) [daemon not running]\n", policy.Mode(f.Mode), f.Paused)
		return nil
	}
	m, _ := policy.ParseMode(args[0])
	if _, err := settings.Update(path, func(f *settings.File) { f.Mode = int(m) }); err != nil {
		return err
	}
	fmt.Printf("mode %s staged in %s (daemon not running)\n", m, path)
	return nil
}

func printModeLine(st *message.StatusInfo) {
	if st == nil {
		return
	}
	fmt.Printf("mode: %s (paused: %v)\n", st.Mode, st.Paused)
}

func newPauseCmd() *cobra.Command {
	return newPauseToggle("pause", true, "Suspend detection until resumed")
}

func newResumeCmd() *cobra.Command {
	return newPauseToggle("resume", false, "Resume detection in the configured mode")
}

func newPauseToggle(use string, paused bool, short string) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPauseToggle(cmd, v, paused)
		},
	}

	cmd.Flags().String("settings", defaultSettingsPath(), "settings file (fallback when the daemon is unreachable)")
	addClientFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runPauseToggle(cmd *cobra.Command, v *viper.Viper, paused bool) error {
	p := paused
	resp, err := request(cmd, v, &message.Message{Type: message.TypeMode, Paused: &p})
	if err == nil {
		printModeLine(resp.Status)
		return nil
	}
	if !errors.Is(err, errNoDaemon) {
		return err
	}

	path := v.GetString("settings")
	if _, err := settings.Update(path, func(f *settings.File) { f.Paused = paused }); err != nil {
		return err
	}
	word := "resume"
	if paused {
		word = "pause"
	}
	fmt.Printf("%s staged in %s (daemon not running)\n", word, path)
	return nil
}
