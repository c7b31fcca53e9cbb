package clip

// Kind discriminates what a clipboard snapshot yielded.
type Kind int

const (
	// KindNone means the clipboard is empty or holds nothing image-like.
	KindNone Kind = iota
	// KindImage is an in-memory image (raw PNG bytes).
	KindImage
	// KindFile is a path to an image file on disk. The file belongs to the
	// user; it is read but never moved or deleted.
	KindFile
)

// Content is a tagged variant describing one clipboard snapshot.
type Content struct {
	Kind Kind
	Data []byte // KindImage only
	Path string // KindFile only
}

// None returns the empty snapshot.
func None() Content { return Content{Kind: KindNone} }

// Image wraps in-memory PNG bytes.
func Image(data []byte) Content { return Content{Kind: KindImage, Data: data} }

// File wraps a verified image file path.
func File(path string) Content { return Content{Kind: KindFile, Path: path} }

// IsNone reports whether the snapshot holds no image.
func (c Content) IsNone() bool { return c.Kind == KindNone }

// Origin names the variant for history rows and logs.
func (c Content) Origin() string {
	switch c.Kind {
	case KindImage:
		return "inline"
	case KindFile:
		return "file"
	default:
		return "none"
	}
}
