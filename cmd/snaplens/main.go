// snaplens: reverse image search for screen snips.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/snaplens/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "snaplens",
		Short: "Reverse image search for screen snips",
		Long: `snaplens watches for screenshots that land on the clipboard, uploads
them to an image host, and opens the reverse-image-search results in the
browser.

Run "snaplens daemon" in the background. Snip a region with the OS screenshot
tool (the daemon correlates the tool's process with the new clipboard image),
or run "snaplens snip" to launch the tool pre-armed. Use mode/pause/resume to
control when detection is live.

Config file search order (first found wins):
  /etc/snaplens/snaplens.toml
  $HOME/.config/snaplens/snaplens.toml
  path supplied via --config

All flags can be set via SNAPLENS_<FLAG> env vars or config-file keys.
See "snaplens daemon --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newDaemonCmd(),
		newSnipCmd(),
		newModeCmd(),
		newPauseCmd(),
		newResumeCmd(),
		newStatusCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("snaplens %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr, logFile string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	if err := logging.Setup(format, level, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "logging setup: %v\n", err)
	}
}
