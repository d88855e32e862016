package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
	"time"
)

// ErrDaemonNotRunning is returned by [Send] when nothing listens on the socket.
var ErrDaemonNotRunning = errors.New("control: daemon is not running")

// Send delivers action to the daemon listening at path and returns its
// response. A response with Success == false is returned as an error.
func Send(ctx context.Context, path string, a Action) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, ErrDaemonNotRunning
		}
		return nil, fmt.Errorf("control: dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(ioTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)

	cmd := NewCommand(a)
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("control: encode: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, fmt.Errorf("control: send: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("control: read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("control: decode response: %w", err)
	}
	if resp.ID != cmd.ID {
		return nil, fmt.Errorf("control: response id %q does not match command %q", resp.ID, cmd.ID)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("control: %s: %s", a, resp.Error)
	}
	return &resp, nil
}
