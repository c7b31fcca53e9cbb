// Package fingerprint derives stable identity values for clipboard images.
//
// A fingerprint answers exactly one question: is this the same image the
// watcher already looked at? Byte-identical content always produces the same
// value; the hash is fast and low-collision, not cryptographic. Files are
// hashed by content, not by name, so an overwritten screenshot at a stable
// path reads as a new capture.
package fingerprint

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Value is an opaque image identity. The zero value is never produced for
// non-empty input in practice, but callers should track presence separately
// rather than compare against zero.
type Value uint64

// String renders the value as fixed-width hex for logs and history rows.
func (v Value) String() string {
	return fmt.Sprintf("%016x", uint64(v))
}

// Bytes fingerprints an in-memory image.
func Bytes(b []byte) Value {
	return Value(xxhash.Sum64(b))
}

// File fingerprints a file on disk by streaming its content.
func File(path string) (Value, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	defer f.Close()

	d := xxhash.New()
	if _, err := io.Copy(d, f); err != nil {
		return 0, fmt.Errorf("fingerprint %s: %w", path, err)
	}
	return Value(d.Sum64()), nil
}
