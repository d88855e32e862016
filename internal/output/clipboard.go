// Package output delivers finished transcripts to the desktop: the system
// clipboard and desktop notifications.
package output

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/atotto/clipboard"
)

// Clipboard writes transcripts to the system clipboard. In append mode each
// new transcript is joined onto the current clipboard text with one space, so
// several short dictations collect into one paste.
type Clipboard struct {
	appendMode atomic.Bool

	mu    sync.Mutex
	read  func() (string, error)
	write func(string) error
}

// NewClipboard returns a Clipboard backed by the system clipboard
// (xclip, xsel or wl-clipboard on Linux).
func NewClipboard(appendMode bool) *Clipboard {
	c := &Clipboard{read: clipboard.ReadAll, write: clipboard.WriteAll}
	c.appendMode.Store(appendMode)
	return c
}

// SetAppend switches append mode on or off.
func (c *Clipboard) SetAppend(on bool) { c.appendMode.Store(on) }

// Append delivers text. Empty text is ignored.
func (c *Clipboard) Append(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	out := text
	if c.appendMode.Load() {
		// An unreadable clipboard (empty selection, no owner) is treated as empty.
		if cur, err := c.read(); err == nil {
			out = join(cur, text)
		}
	}
	if err := c.write(out); err != nil {
		return fmt.Errorf("output: write clipboard: %w", err)
	}
	return nil
}

func join(existing, text string) string {
	if strings.TrimSpace(existing) == "" {
		return text
	}
	if strings.HasSuffix(existing, " ") || strings.HasSuffix(existing, "\n") {
		return existing + text
	}
	return existing + " " + text
}
