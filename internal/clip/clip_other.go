//go:build !darwin && !windows && !linux

package clip

// New returns a no-op source suitable for headless containers.
func New() Source {
	return newHeadless(nil)
}
