package launch

func openURLArgs(url string) []string {
	return []string{"rundll32", "url.dll,FileProtocolHandler", url}
}

func captureArgs() []string {
	return []string{"explorer.exe", "ms-screenclip:"}
}
