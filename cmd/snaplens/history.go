package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/snaplens/internal/history"
	"go.klb.dev/snaplens/internal/message"
)

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent captures",
		Long: `Lists recent captures, newest first: when they happened, why they were
accepted, and the hosted URL (or the error that stopped delivery).

A local daemon is queried over the IPC socket. Without one, the history
database is read directly.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd, v)
		},
	}

	f := cmd.Flags()
	f.Int("limit", 20, "number of entries")
	f.Bool("json", false, "output raw JSON")
	f.String("db", defaultDBPath(), "history database (read when the daemon is not running)")
	addClientFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runHistory(cmd *cobra.Command, v *viper.Viper) error {
	limit := v.GetInt("limit")

	var entries []message.HistoryEntry
	resp, err := request(cmd, v, &message.Message{Type: message.TypeHistory, Limit: limit})
	switch {
	case err == nil:
		entries = resp.Entries
	case errors.Is(err, errNoDaemon):
		store, oerr := history.Open(v.GetString("db"))
		if oerr != nil {
			return fmt.Errorf("daemon not running and history unreadable: %w", oerr)
		}
		defer store.Close()
		rows, rerr := store.Recent(cmd.Context(), limit)
		if rerr != nil {
			return rerr
		}
		for _, r := range rows {
			entries = append(entries, message.HistoryEntry{
				At:          r.At,
				Origin:      r.Origin,
				Fingerprint: r.Fingerprint,
				Reason:      r.Reason,
				URL:         r.URL,
				Error:       r.Error,
				DurationMS:  r.DurationMS,
			})
		}
	default:
		return err
	}

	if v.GetBool("json") {
		enc, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	}
	if len(entries) == 0 {
		fmt.Println("No captures recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "WHEN\tORIGIN\tREASON\tRESULT\n")
	for _, e := range entries {
		result := e.URL
		if e.Error != "" {
			result = "error: " + e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", fmtAge(e.At), e.Origin, e.Reason, result)
	}
	return w.Flush()
}
