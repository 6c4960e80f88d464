package localserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"
)

// DefaultMode is the permission of the socket file.
const DefaultMode os.FileMode = 0o600

// LocalAddr is the RemoteAddr given to requests on the socket.
const LocalAddr = "local:0"

// ErrInUse is returned when another process answers on the socket.
var ErrInUse = errors.New("localserver: socket in use")

// Config configures the socket listener.
type Config struct {
	Path string

	// Mode is the socket file permission (0 = DefaultMode).
	Mode os.FileMode
}

// Server represents the local management server.
type Server struct {
	path string
	mode os.FileMode
	http *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server that serves h on the socket at cfg.Path.
func New(cfg Config, h http.Handler) *Server {
	mode := cfg.Mode
	if mode == 0 {
		mode = DefaultMode
	}
	return &Server{
		path: cfg.Path,
		mode: mode,
		http: &http.Server{
			Handler:           Handler(h),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler gives socket requests a stable peer address. Unix sockets
// carry none, which leaves audit logs and rate limits without a key.
func Handler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.RemoteAddr == "" || r.RemoteAddr == "@" {
			r.RemoteAddr = LocalAddr
		}
		h.ServeHTTP(w, r)
	})
}

// Listen creates the socket. It replaces a stale socket file and refuses
// to take over a live one.
func (s *Server) Listen() error {
	if err := removeStale(s.path); err != nil {
		return err
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.path, s.mode); err != nil {
		ln.Close()
		return fmt.Errorf("localserver: chmod %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve serves on the socket created by Listen. It returns nil after
// Shutdown.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("localserver: Serve called before Listen")
	}
	if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe combines Listen and Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown drains open requests and removes the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.mu.Lock()
	if s.listener != nil {
		// Already closed when Serve ran.
		_ = s.listener.Close()
	}
	s.mu.Unlock()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("localserver: %s exists and is not a socket", path)
	}
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrInUse, path)
	}
	return os.Remove(path)
}
