// Package ipc provides the local control channel CLI commands use to talk
// to a running snaplens daemon: a Unix domain socket on Linux and macOS, a
// named pipe on Windows.
//
// Traffic on the channel is the newline-delimited JSON protocol from
// internal/message, one request and one response per connection. CLI
// sub-commands probe for the socket and fall back to working on the
// settings file directly when no daemon is listening.
package ipc

import (
	"net"
	"os"
)

// SocketPath returns the platform-appropriate path for the control socket.
// $SNAPLENS_SOCKET overrides it on every platform.
func SocketPath() string {
	if s := os.Getenv("SNAPLENS_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether a snaplens daemon appears to be listening on
// the control socket. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	c, err := dialIPC(SocketPath())
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen creates a net.Listener on the control socket, removing any stale
// socket file from a previous (crashed) run first.
func Listen() (net.Listener, error) {
	path := SocketPath()
	removeStale(path)
	return listenIPC(path)
}

// Dial connects to the control socket of a running daemon.
func Dial() (net.Conn, error) {
	return dialIPC(SocketPath())
}
