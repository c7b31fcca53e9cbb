package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/snaplens/internal/clip"
	"go.klb.dev/snaplens/internal/control"
	"go.klb.dev/snaplens/internal/crypto"
	"go.klb.dev/snaplens/internal/deliver"
	"go.klb.dev/snaplens/internal/engine"
	"go.klb.dev/snaplens/internal/history"
	"go.klb.dev/snaplens/internal/ipc"
	"go.klb.dev/snaplens/internal/launch"
	"go.klb.dev/snaplens/internal/policy"
	"go.klb.dev/snaplens/internal/procwatch"
	"go.klb.dev/snaplens/internal/settings"
	"go.klb.dev/snaplens/internal/trigger"
	"go.klb.dev/snaplens/internal/watch"
)

func newDaemonCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the snip detection daemon",
		Long: `Starts the snaplens daemon. It polls the process table for the OS
screenshot tool and the clipboard for new images. When a tool sighting and a
fresh clipboard image land within the correlation window (or a trigger is
armed), the capture is uploaded to the image host and the reverse-image-search
results page is opened in the browser.

The daemon answers CLI requests on a local socket and, with --control-addr,
on a TCP port that serves both the wire protocol and a small REST API
(GET /v1/status, GET /v1/history). Set --token to require authentication on
the TCP port; the wire protocol is then also encrypted with a key derived
from the token.

Mode and pause state live in the settings file and survive restarts. The file
is watched, so edits from a tray applet or a second snaplens process take
effect immediately.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindViper(cmd, v)
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(v)
		},
	}

	f := cmd.Flags()
	f.Duration("proc-interval", procwatch.DefaultInterval, "process table poll interval")
	f.Duration("clip-interval", watch.DefaultInterval, "clipboard poll interval")
	f.Duration("window", policy.DefaultWindow, "correlation window after a tool sighting")
	f.StringSlice("proc-names", nil, "screenshot tool process names (default: per-OS list)")
	f.String("upload-url", deliver.DefaultUploadURL, "image host upload endpoint")
	f.String("url-prefix", deliver.DefaultURLPrefix, "URL prefix a successful upload must return")
	f.String("upload-expiry", "", "ask the host to expire uploads (e.g. 1h, 24h; empty = keep)")
	f.Duration("upload-timeout", deliver.DefaultTimeout, "upload timeout, clamped to 10s..60s")
	f.String("search-url", deliver.DefaultSearchURL, "reverse image search endpoint")
	f.StringSlice("capture-command", nil, "override the screenshot tool command for 'snip'")
	f.String("settings", defaultSettingsPath(), "settings file (mode, pause, trigger token)")
	f.String("db", defaultDBPath(), "capture history database")
	f.Bool("no-history", false, "do not record captures")
	f.Int("history-keep", 500, "rows to keep when pruning the history database")
	f.String("control-addr", "", "also listen on this TCP address (e.g. 127.0.0.1:7465)")
	f.String("token", "", "shared secret for the TCP control port")
	f.Int("workers", engine.DefaultWorkers, "concurrent uploads")
	f.Int("queue", engine.DefaultQueueSize, "pending uploads before new captures are dropped")
	f.Duration("drain-grace", engine.DefaultDrainGrace, "time to finish in-flight uploads on shutdown")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)
	return cmd
}

func runDaemon(v *viper.Viper) error {
	setupLogging(v)

	if ipc.IsRunning() {
		return fmt.Errorf("daemon already running (socket %s)", ipc.SocketPath())
	}

	settingsPath := v.GetString("settings")
	saved, err := settings.Load(settingsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run. Write the defaults so the watcher has a file to
		// watch and tray applets have a file to edit.
		if werr := settings.Save(settingsPath, saved); werr != nil {
			slog.Warn("writing initial settings failed", "path", settingsPath, "err", werr)
		}
	case err != nil:
		slog.Warn("settings unreadable, using defaults", "path", settingsPath, "err", err)
	}

	token := v.GetString("token")
	var key *[32]byte
	if token != "" {
		if key, err = crypto.DeriveKey(token); err != nil {
			return fmt.Errorf("key derivation: %w", err)
		}
	}

	backend := clip.New()
	defer backend.Close()

	var store *history.Store
	if !v.GetBool("no-history") {
		dbPath := v.GetString("db")
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			slog.Warn("history disabled", "path", dbPath, "err", err)
		} else if store, err = history.Open(dbPath); err != nil {
			slog.Warn("history disabled", "path", dbPath, "err", err)
			store = nil
		} else {
			defer store.Close()
			if n, perr := store.Prune(context.Background(), v.GetInt("history-keep")); perr != nil {
				slog.Warn("history prune failed", "err", perr)
			} else if n > 0 {
				slog.Debug("history pruned", "rows", n)
			}
		}
	}

	desktop := &launch.Desktop{CaptureCommand: v.GetStringSlice("capture-command")}
	modes := settings.NewController(policy.Mode(saved.Mode), saved.Paused)

	eng := engine.New(engine.Config{
		Version: Version,
		Source:  backend,
		Modes:   modes,
		Tokens:  &trigger.Store{},
		Pipeline: deliver.New(deliver.Config{
			UploadURL: v.GetString("upload-url"),
			URLPrefix: v.GetString("url-prefix"),
			SearchURL: v.GetString("search-url"),
			Expiry:    v.GetString("upload-expiry"),
			Timeout:   v.GetDuration("upload-timeout"),
			UserAgent: "snaplens/" + Version,
			Opener:    desktop,
		}),
		Desktop:      desktop,
		History:      store,
		ProcNames:    v.GetStringSlice("proc-names"),
		ProcInterval: v.GetDuration("proc-interval"),
		ClipInterval: v.GetDuration("clip-interval"),
		Window:       v.GetDuration("window"),
		Workers:      v.GetInt("workers"),
		QueueSize:    v.GetInt("queue"),
		DrainGrace:   v.GetDuration("drain-grace"),
		SettingsPath: settingsPath,
	})
	eng.Prime(saved)

	slog.Info("snaplens daemon starting",
		"version", Version,
		"backend", backend.Name(),
		"mode", modes.Mode(),
		"paused", modes.Paused(),
		"window", v.GetDuration("window"),
		"upload", v.GetString("upload-url"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := settings.Watch(ctx, settingsPath, eng.ApplySettings); err != nil {
		slog.Warn("settings watcher unavailable", "path", settingsPath, "err", err)
	}

	ctrl := control.New(eng, token, key)

	ipcLn, err := ipc.Listen()
	if err != nil {
		slog.Warn("IPC socket unavailable", "err", err)
	} else {
		defer ipcLn.Close()
		slog.Info("IPC listening", "path", ipc.SocketPath())
		go ctrl.ServeIPC(ipcLn)
	}

	if addr := v.GetString("control-addr"); addr != "" {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		defer ln.Close()
		slog.Info("control listening", "addr", ln.Addr(), "encrypted", key != nil)
		go ctrl.ServeControl(ln)
	}

	eng.Run(ctx)
	slog.Info("snaplens daemon stopped")
	return nil
}
