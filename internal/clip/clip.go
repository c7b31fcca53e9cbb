// Package clip provides a unified snapshot view of the system clipboard
// across platforms. Build constraints select the implementation:
//
//	clip_desktop.go  — Linux, Windows, macOS via golang.design/x/clipboard
//	clip_other.go    — headless / container stub
//
// A Source never watches or mutates the clipboard; the caller owns the poll
// cadence and change detection. Snapshot prefers in-memory image data over a
// copied file path when both are present. File paths reach the clipboard as
// text (file:// URIs from GTK file managers, plain absolute paths from
// Explorer and terminals) and are verified before being reported, see
// file.go.
package clip

import "log/slog"

// Source is the capability the clipboard watcher consumes.
type Source interface {
	// Name returns a human-readable name for the source.
	Name() string

	// Snapshot returns the image-like content currently on the clipboard.
	// Returns None (not an error) when the clipboard is empty or holds only
	// unsupported types; errors are reserved for transient read failures.
	Snapshot() (Content, error)

	// Close releases any resources held by the source.
	Close()
}

// headlessSource is the shared no-op fallback for environments without a
// display server. Platform constructors return it when clipboard
// initialisation fails.
type headlessSource struct{}

func newHeadless(err error) Source {
	if err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
	}
	return headlessSource{}
}

func (headlessSource) Name() string               { return "headless (no-op)" }
func (headlessSource) Snapshot() (Content, error) { return None(), nil }
func (headlessSource) Close()                     {}
