// Package deliver turns an accepted clipboard image into a hosted URL and
// a reverse-image-search page.
//
// Delivery is three stages run at most once each: stage the image as a
// file, upload it to the image host, and hand the search page for the
// hosted URL to the browser. A failed upload is not retried; the next
// clipboard image gets a fresh attempt. A failed browser launch is logged
// and does not fail the delivery.
package deliver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.klb.dev/snaplens/internal/clip"
)

// Defaults for the public catbox.moe host and Google Lens.
const (
	DefaultUploadURL = "https://catbox.moe/user/api.php"
	DefaultURLPrefix = "https://files.catbox.moe/"
	DefaultSearchURL = "https://lens.google.com/uploadbyurl"

	DefaultTimeout = 30 * time.Second
	MinTimeout     = 10 * time.Second
	MaxTimeout     = 60 * time.Second
)

const (
	maxResponseBytes = 4096
	snippetLen       = 120
)

// Stage identifies the step of the pipeline an Outcome failed in.
type Stage string

const (
	StageStaging Stage = "staging"
	StageUpload  Stage = "upload"
	StageOpen    Stage = "open"
)

// Outcome reports one delivery attempt end to end.
type Outcome struct {
	OK        bool
	URL       string // hosted image URL
	SearchURL string // reverse-image-search page for URL
	Stage     Stage  // stage that failed, empty on success
	Err       error
	Elapsed   time.Duration
}

// UploadError is a host response that was not an accepted upload. Body
// holds a truncated snippet of the reply, never the full payload.
type UploadError struct {
	Status int
	Body   string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("image host returned %d: %q", e.Status, e.Body)
}

// Opener hands a URL to the desktop. *launch.Desktop satisfies it.
type Opener interface {
	OpenURL(ctx context.Context, rawURL string) error
}

// Config parameterizes a Pipeline. Zero values fall back to the catbox
// defaults above.
type Config struct {
	UploadURL string // multipart endpoint
	URLPrefix string // required prefix of an accepted host reply
	SearchURL string // search page; the hosted URL lands in its url= query
	Expiry    string // time= form field for expiring hosts, empty for none
	Timeout   time.Duration
	UserAgent string
	Client    *http.Client
	Opener    Opener
}

func (c Config) withDefaults() Config {
	if c.UploadURL == "" {
		c.UploadURL = DefaultUploadURL
	}
	if c.URLPrefix == "" {
		c.URLPrefix = DefaultURLPrefix
	}
	if c.SearchURL == "" {
		c.SearchURL = DefaultSearchURL
	}
	if c.Timeout < MinTimeout || c.Timeout > MaxTimeout {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Pipeline delivers clipboard images to the configured host.
type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg.withDefaults()}
}

// Deliver stages c, uploads it, and opens the search page. It blocks for
// at most the configured upload timeout plus local disk time.
func (p *Pipeline) Deliver(ctx context.Context, c clip.Content) Outcome {
	start := time.Now()

	path, cleanup, err := p.stageContent(c)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return Outcome{Stage: StageStaging, Err: err, Elapsed: time.Since(start)}
	}

	hosted, err := p.upload(ctx, path)
	if err != nil {
		return Outcome{Stage: StageUpload, Err: err, Elapsed: time.Since(start)}
	}

	out := Outcome{OK: true, URL: hosted, SearchURL: p.searchFor(hosted)}
	if p.cfg.Opener != nil && out.SearchURL != "" {
		if err := p.cfg.Opener.OpenURL(ctx, out.SearchURL); err != nil {
			// Logged, not fatal. The image is hosted either way.
			slog.Warn("opening search page failed", "url", out.SearchURL, "error", err)
		}
	}
	out.Elapsed = time.Since(start)
	return out
}

// stageContent resolves c to an on-disk path. Inline image bytes land in a
// temp file and cleanup removes it; file content is used in place and
// never deleted.
func (p *Pipeline) stageContent(c clip.Content) (string, func(), error) {
	switch c.Kind {
	case clip.KindImage:
		f, err := os.CreateTemp("", "snaplens-*.png")
		if err != nil {
			return "", nil, fmt.Errorf("creating staging file: %w", err)
		}
		name := f.Name()
		cleanup := func() { os.Remove(name) }
		if _, err := f.Write(c.Data); err != nil {
			f.Close()
			return name, cleanup, fmt.Errorf("writing staging file: %w", err)
		}
		if err := f.Close(); err != nil {
			return name, cleanup, fmt.Errorf("writing staging file: %w", err)
		}
		return name, cleanup, nil
	case clip.KindFile:
		if _, err := os.Stat(c.Path); err != nil {
			return "", nil, fmt.Errorf("clipboard file vanished: %w", err)
		}
		return c.Path, nil, nil
	default:
		return "", nil, errors.New("nothing to deliver")
	}
}

func (p *Pipeline) upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening staged image: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("reqtype", "fileupload"); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if p.cfg.Expiry != "" {
		err = mw.WriteField("time", p.cfg.Expiry)
	} else {
		err = mw.WriteField("userhash", "")
	}
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	part, err := mw.CreatePart(filePartHeader(filepath.Base(path)))
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("reading staged image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.UploadURL, &body)
	if err != nil {
		return "", fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}

	client := p.cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("uploading image: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading host response: %w", err)
	}
	reply := strings.TrimSpace(string(raw))
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(reply, p.cfg.URLPrefix) {
		return "", &UploadError{Status: resp.StatusCode, Body: snippet(reply)}
	}
	return reply, nil
}

// searchFor builds the search page URL with hosted in the url= query
// parameter, escaped.
func (p *Pipeline) searchFor(hosted string) string {
	u, err := url.Parse(p.cfg.SearchURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("url", hosted)
	u.RawQuery = q.Encode()
	return u.String()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func filePartHeader(name string) textproto.MIMEHeader {
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="fileToUpload"; filename="%s"`, quoteEscaper.Replace(name)))
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	return h
}

func snippet(s string) string {
	if len(s) > snippetLen {
		return s[:snippetLen] + "..."
	}
	return s
}
