package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/snaplens/internal/message"
	"go.klb.dev/snaplens/internal/policy"
	"go.klb.dev/snaplens/internal/settings"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Displays the running daemon's state: mode, trigger, watcher counters,
and the last delivered URL.

A local daemon is queried over the IPC socket. Pass --server to target a
daemon's TCP control port instead.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, v)
		},
	}

	f := cmd.Flags()
	f.Bool("json", false, "output raw JSON")
	f.String("settings", defaultSettingsPath(), "settings file (read when the daemon is not running)")
	addClientFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	resp, err := request(cmd, v, &message.Message{Type: message.TypeStatus})
	if err != nil {
		if !errors.Is(err, errNoDaemon) {
			return err
		}
		f, lerr := settings.Load(v.GetString("settings"))
		if lerr != nil {
			return fmt.Errorf("daemon not running and settings unreadable: %w", lerr)
		}
		fmt.Printf("daemon not running\nconfigured mode: %s (paused: %v)\n", policy.Mode(f.Mode), f.Paused)
		return nil
	}
	if resp.Status == nil {
		return errors.New("malformed status response")
	}

	if v.GetBool("json") {
		enc, err := json.MarshalIndent(resp.Status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	}
	printStatus(resp.Status)
	return nil
}

func printStatus(st *message.StatusInfo) {
	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Version:\t%s\n", st.Version)
	fmt.Fprintf(w, "Backend:\t%s\n", st.Backend)
	mode := st.Mode
	if st.Paused {
		mode += " (paused)"
	}
	fmt.Fprintf(w, "Mode:\t%s\n", mode)
	fmt.Fprintf(w, "Trigger:\t%s\n", armedStr(st.Armed))
	fmt.Fprintf(w, "Started:\t%s (%s)\n", st.StartedAt.Local().Format(time.RFC3339), fmtAge(st.StartedAt))
	if st.LastSighting != nil {
		fmt.Fprintf(w, "Tool seen:\t%s\n", fmtAge(*st.LastSighting))
	} else {
		fmt.Fprintf(w, "Tool seen:\tnever\n")
	}
	if st.LastURL != "" {
		fmt.Fprintf(w, "Last URL:\t%s\n", st.LastURL)
	}
	fmt.Fprintf(w, "Scans:\t%d\n", st.Scans)
	fmt.Fprintf(w, "New images:\t%d\n", st.Changes)
	fmt.Fprintf(w, "Accepted:\t%d\n", st.Accepted)
	fmt.Fprintf(w, "Rejected:\t%d\n", st.Rejected)
	fmt.Fprintf(w, "Delivered:\t%d\n", st.Delivered)
	fmt.Fprintf(w, "Failed:\t%d\n", st.Failed)
	w.Flush()
}

func armedStr(armed bool) string {
	if armed {
		return "armed"
	}
	return "idle"
}

// fmtAge renders a timestamp as a short relative age for recent times and
// a clock time otherwise.
func fmtAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	default:
		return t.Local().Format("15:04:05")
	}
}
