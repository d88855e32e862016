// Package control implements the daemon's local command channel: a unix
// socket carrying newline-delimited JSON. Each connection sends one [Command]
// and reads one [Response].
package control

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action names a control command.
type Action string

const (
	// ActionToggle starts or stops a recording, like pressing the hotkey.
	ActionToggle Action = "toggle"
	// ActionStatus returns the daemon state snapshot.
	ActionStatus Action = "status"
)

// Command is a request from the CLI to the daemon.
type Command struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCommand returns a Command with a fresh id.
func NewCommand(a Action) Command {
	return Command{ID: uuid.NewString(), Action: a, Timestamp: time.Now().UTC()}
}

// Response answers a Command with the same id.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
