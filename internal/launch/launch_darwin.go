package launch

func openURLArgs(url string) []string {
	return []string{"open", url}
}

func captureArgs() []string {
	return []string{"screencapture", "-i", "-c"}
}
