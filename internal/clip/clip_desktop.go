//go:build linux || windows || darwin

package clip

import (
	"runtime"

	"golang.design/x/clipboard"
)

type desktopSource struct{}

// New returns the desktop clipboard source, or a headless no-op source if
// the display environment is unavailable (e.g. a Linux server without X11 or
// Wayland). clipboard.Init is called here rather than in init() so that CLI
// sub-commands that never read the clipboard don't trigger the warning.
func New() Source {
	if err := clipboard.Init(); err != nil {
		return newHeadless(err)
	}
	return desktopSource{}
}

func (desktopSource) Name() string {
	switch runtime.GOOS {
	case "windows":
		return "Windows clipboard"
	case "darwin":
		return "macOS pasteboard"
	default:
		return "X11/Wayland clipboard"
	}
}

func (desktopSource) Snapshot() (Content, error) {
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		return Image(img), nil
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		if c, ok := fromText(string(text)); ok {
			return c, nil
		}
	}
	return None(), nil
}

func (desktopSource) Close() {}
