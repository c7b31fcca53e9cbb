package clip

import (
	"fmt"
	"image"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	// Registered so DecodeConfig recognises everything the extension gate
	// lets through.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// imageExts are the file extensions accepted from clipboard file paths.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
}

// fromText extracts the first verified image file path from clipboard text.
func fromText(text string) (Content, bool) {
	for _, cand := range candidatePaths(text) {
		if err := VerifyImageFile(cand); err == nil {
			return File(cand), true
		}
	}
	return None(), false
}

// candidatePaths splits clipboard text into plausible filesystem paths.
// GTK file managers put one file:// URI per line, sometimes under an
// x-special/nautilus-clipboard header with a copy/cut verb; Windows Explorer
// and terminals paste plain absolute paths.
func candidatePaths(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, `"`)
		if line == "" || line == "copy" || line == "cut" || strings.HasPrefix(line, "x-special/") {
			continue
		}
		if strings.HasPrefix(line, "file://") {
			if p := uriToPath(line); p != "" {
				out = append(out, p)
			}
			continue
		}
		if filepath.IsAbs(line) {
			out = append(out, line)
		}
	}
	return out
}

// uriToPath converts a file:// URI to a local path, or "" if it cannot.
func uriToPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return ""
	}
	p := u.Path
	if runtime.GOOS == "windows" {
		// file:///C:/x/y.png parses to /C:/x/y.png
		p = filepath.FromSlash(strings.TrimPrefix(p, "/"))
	}
	return p
}

// VerifyImageFile reports whether path is a regular file with an accepted
// image extension whose header actually decodes as an image. The extension
// gate runs first so arbitrary copied files are rejected without touching
// the disk.
func VerifyImageFile(path string) error {
	if !imageExts[strings.ToLower(filepath.Ext(path))] {
		return fmt.Errorf("%s: not an image extension", path)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s: not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
