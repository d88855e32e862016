package output

import (
	"log/slog"
	"sync/atomic"

	"github.com/gen2brain/beeep"
)

// Severity grades a notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityError
	SeverityCritical
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeveritySuccess:
		return "success"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Notifier shows desktop notifications. Delivery failures are logged, never
// returned. Critical notifications use an alert (with sound) where the
// desktop supports it.
type Notifier struct {
	enabled atomic.Bool

	notify func(title, body string, icon any) error
	alert  func(title, body string, icon any) error
}

// NewNotifier returns a Notifier. A disabled notifier drops everything.
func NewNotifier(enabled bool) *Notifier {
	beeep.AppName = "voice-cli"
	n := &Notifier{notify: beeep.Notify, alert: beeep.Alert}
	n.enabled.Store(enabled)
	return n
}

// SetEnabled toggles delivery at runtime.
func (n *Notifier) SetEnabled(on bool) { n.enabled.Store(on) }

// Notify shows title and body with the given severity.
func (n *Notifier) Notify(title, body string, sev Severity) {
	if n == nil || !n.enabled.Load() {
		return
	}
	send := n.notify
	if sev == SeverityCritical {
		send = n.alert
	}
	if err := send(title, body, ""); err != nil {
		slog.Debug("notification failed", "title", title, "severity", sev.String(), "err", err)
	}
}
