package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ioTimeout bounds how long a connection may take to deliver its command and
// accept the reply.
const ioTimeout = 5 * time.Second

// HandlerFunc handles one action. The returned value is JSON-encoded into
// [Response.Data].
type HandlerFunc func(ctx context.Context, cmd Command) (any, error)

// Server listens on a unix socket and dispatches commands to handlers.
type Server struct {
	path     string
	handlers map[Action]HandlerFunc

	wg sync.WaitGroup
}

// NewServer returns a Server for the socket at path.
func NewServer(path string) *Server {
	return &Server{path: path, handlers: make(map[Action]HandlerFunc)}
}

// Handle registers fn for action. It must be called before [Server.Serve].
func (s *Server) Handle(a Action, fn HandlerFunc) {
	s.handlers[a] = fn
}

// Serve accepts connections until ctx is cancelled. A stale socket file left
// by a crashed daemon is replaced. The socket is created with mode 0600 and
// removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("control: create socket dir: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("control: remove stale socket: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "unix", s.path)
	if err != nil {
		return fmt.Errorf("control: listen %q: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("control: chmod socket: %w", err)
	}
	slog.Info("control socket listening", "path", s.path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	defer func() {
		s.wg.Wait()
		_ = os.Remove(s.path)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("control: accept failed", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		slog.Debug("control: read command", "err", err)
		return
	}

	var cmd Command
	var resp Response
	if err := json.Unmarshal(line, &cmd); err != nil {
		resp = Response{Error: "invalid command: " + err.Error()}
	} else {
		resp = s.dispatch(ctx, cmd)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: encode response", "err", err)
		return
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		slog.Debug("control: write response", "err", err)
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) (resp Response) {
	resp.ID = cmd.ID
	fn, ok := s.handlers[cmd.Action]
	if !ok {
		resp.Error = fmt.Sprintf("unknown action %q", cmd.Action)
		return resp
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("control: handler panicked", "action", cmd.Action, "panic", r)
			resp = Response{ID: cmd.ID, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	v, err := fn(ctx, cmd)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			resp.Error = "encode result: " + err.Error()
			return resp
		}
		resp.Data = data
	}
	resp.Success = true
	slog.Debug("control command handled", "id", cmd.ID, "action", cmd.Action)
	return resp
}
