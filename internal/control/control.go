// Package control exposes a running daemon to clients: the local IPC
// socket the CLI talks to, and an optional TCP listener that multiplexes
// a small HTTP API and the wire protocol on a single port.
package control

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/soheilhy/cmux"

	"go.klb.dev/snaplens/internal/message"
	"go.klb.dev/snaplens/internal/policy"
	"go.klb.dev/snaplens/internal/wire"
)

const (
	readTimeout = 5 * time.Second
	authTimeout = 10 * time.Second
)

// Daemon is the engine surface the control plane needs.
type Daemon interface {
	Status() message.StatusInfo
	Arm(launch bool) string
	SetMode(m policy.Mode)
	SetPaused(p bool)
	Recent(ctx context.Context, limit int) ([]message.HistoryEntry, error)
}

// Server answers control requests on behalf of a Daemon.
type Server struct {
	daemon Daemon
	token  string
	key    *[32]byte
}

// New builds a Server. token guards the TCP listener; when it is empty
// remote connections are neither authenticated nor encrypted. The local
// IPC socket is always plain: reaching it already means local access.
func New(daemon Daemon, token string, key *[32]byte) *Server {
	return &Server{daemon: daemon, token: token, key: key}
}

// ServeIPC handles CLI connections until ln is closed. One request, one
// response per connection.
func (s *Server) ServeIPC(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleIPCConn(conn)
	}
}

func (s *Server) handleIPCConn(conn net.Conn) {
	defer conn.Close()
	wc := wire.New(conn, nil)
	wc.SetReadDeadline(readTimeout)
	msg, err := wc.ReadMsg()
	if err != nil {
		return
	}
	wc.SetReadDeadline(0)
	_ = wc.WriteMsg(s.respond(msg))
}

// ServeControl serves the TCP control listener until it is closed. HTTP/1
// requests go to the REST API; any other connection speaks the wire
// protocol.
func (s *Server) ServeControl(ln net.Listener) {
	m := cmux.New(ln)
	httpLn := m.Match(cmux.HTTP1Fast())
	wireLn := m.Match(cmux.Any())

	go s.serveHTTP(httpLn)
	go s.serveWire(wireLn)

	if err := m.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("control listener failed", "err", err)
	}
}

func (s *Server) serveHTTP(ln net.Listener) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	srv := &http.Server{
		Handler:           s.requireAuth(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	_ = srv.Serve(ln)
}

// requireAuth gates the HTTP API behind the shared token when one is set.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.daemon.Status()
	writeJSON(w, st)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := s.daemon.Recent(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []message.HistoryEntry{}
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) serveWire(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go s.handleWireConn(conn)
	}
}

// handleWireConn authenticates the remote, then answers one request.
func (s *Server) handleWireConn(conn net.Conn) {
	defer conn.Close()
	wc := wire.New(conn, s.key)
	log := slog.With("peer", conn.RemoteAddr())

	if s.token != "" {
		wc.SetReadDeadline(authTimeout)
		msg, err := wc.ReadMsg()
		if err != nil {
			log.Warn("auth read failed", "err", err)
			return
		}
		wc.SetReadDeadline(0)

		tokenBytes, _ := base64.StdEncoding.DecodeString(msg.Payload)
		if msg.Type != message.TypeAuth || string(tokenBytes) != s.token {
			log.Warn("auth failed")
			_ = wc.WriteMsg(&message.Message{
				Type:  message.TypeError,
				Error: "auth_failed",
			})
			return
		}
		log.Debug("authenticated", "source", msg.Source)
	}

	wc.SetReadDeadline(readTimeout)
	msg, err := wc.ReadMsg()
	if err != nil {
		return
	}
	wc.SetReadDeadline(0)
	_ = wc.WriteMsg(s.respond(msg))
}

// respond maps one request to one reply.
func (s *Server) respond(msg *message.Message) *message.Message {
	switch msg.Type {
	case message.TypeArm:
		id := s.daemon.Arm(msg.Launch)
		return &message.Message{Type: message.TypeArmed, Token: id}

	case message.TypeMode:
		if msg.Mode != "" {
			m, err := policy.ParseMode(msg.Mode)
			if err != nil {
				return &message.Message{Type: message.TypeError, Error: err.Error()}
			}
			s.daemon.SetMode(m)
		}
		if msg.Paused != nil {
			s.daemon.SetPaused(*msg.Paused)
		}
		st := s.daemon.Status()
		return &message.Message{Type: message.TypeStatusResponse, Status: &st}

	case message.TypeStatus:
		st := s.daemon.Status()
		return &message.Message{Type: message.TypeStatusResponse, Status: &st}

	case message.TypeHistory:
		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		defer cancel()
		entries, err := s.daemon.Recent(ctx, msg.Limit)
		if err != nil {
			return &message.Message{Type: message.TypeError, Error: err.Error()}
		}
		return &message.Message{Type: message.TypeHistoryResponse, Entries: entries}

	default:
		return &message.Message{
			Type:  message.TypeError,
			Error: fmt.Sprintf("unexpected message type %q", msg.Type),
		}
	}
}
