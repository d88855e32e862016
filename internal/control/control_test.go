package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// socketPath returns a short socket path; t.TempDir paths can exceed the
// 108-byte sun_path limit.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "vc")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func startServer(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", s.path); err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("socket never became ready")
}

func TestServer_ToggleAndStatus(t *testing.T) {
	t.Parallel()
	path := socketPath(t)
	s := NewServer(path)

	var toggles atomic.Int32
	s.Handle(ActionToggle, func(context.Context, Command) (any, error) {
		toggles.Add(1)
		return nil, nil
	})
	s.Handle(ActionStatus, func(context.Context, Command) (any, error) {
		return map[string]any{"status": "idle", "errorCount": 2}, nil
	})
	startServer(t, s)

	ctx := context.Background()
	if _, err := Send(ctx, path, ActionToggle); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if toggles.Load() != 1 {
		t.Errorf("toggles = %d", toggles.Load())
	}

	resp, err := Send(ctx, path, ActionStatus)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var snap struct {
		Status     string `json:"status"`
		ErrorCount int    `json:"errorCount"`
	}
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if snap.Status != "idle" || snap.ErrorCount != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("socket perm = %o", perm)
	}
}

func TestServer_HandlerErrorAndUnknownAction(t *testing.T) {
	t.Parallel()
	path := socketPath(t)
	s := NewServer(path)
	s.Handle(ActionToggle, func(context.Context, Command) (any, error) {
		return nil, errors.New("recorder unavailable")
	})
	s.Handle(ActionStatus, func(context.Context, Command) (any, error) {
		panic("boom")
	})
	startServer(t, s)

	ctx := context.Background()
	resp, err := Send(ctx, path, ActionToggle)
	if err == nil || !strings.Contains(err.Error(), "recorder unavailable") {
		t.Fatalf("err = %v", err)
	}
	if resp == nil || resp.Success {
		t.Errorf("resp = %+v", resp)
	}

	if _, err := Send(ctx, path, Action("reboot")); err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Errorf("unknown action err = %v", err)
	}

	if _, err := Send(ctx, path, ActionStatus); err == nil || !strings.Contains(err.Error(), "internal error") {
		t.Errorf("panicking handler err = %v", err)
	}
}

func TestServer_InvalidJSON(t *testing.T) {
	t.Parallel()
	path := socketPath(t)
	startServer(t, NewServer(path))

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatal(err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success || !strings.HasPrefix(resp.Error, "invalid command") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestServer_ReplacesStaleSocketAndCleansUp(t *testing.T) {
	t.Parallel()
	path := socketPath(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(path)
	s.Handle(ActionToggle, func(context.Context, Command) (any, error) { return nil, nil })
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var sendErr error
	for range 100 {
		if _, sendErr = Send(ctx, path, ActionToggle); sendErr == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sendErr != nil {
		t.Fatalf("Send: %v", sendErr)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("socket not removed: %v", err)
	}
}

func TestSend_DaemonNotRunning(t *testing.T) {
	t.Parallel()
	_, err := Send(context.Background(), socketPath(t), ActionStatus)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("err = %v, want ErrDaemonNotRunning", err)
	}
}

func TestNewCommand(t *testing.T) {
	t.Parallel()
	a, b := NewCommand(ActionToggle), NewCommand(ActionToggle)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids %q %q should be unique", a.ID, b.ID)
	}
	if a.Action != ActionToggle || a.Timestamp.IsZero() {
		t.Errorf("cmd = %+v", a)
	}
}
