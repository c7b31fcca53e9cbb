//go:build !linux && !windows && !darwin

package launch

func openURLArgs(url string) []string {
	return []string{"xdg-open", url}
}

func captureArgs() []string {
	return []string{"gnome-screenshot", "-c", "-a"}
}
