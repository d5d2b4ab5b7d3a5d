package notifier

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// QuietWindow is one suppression window: a standard 5-field cron spec for
// the window start plus its duration. While a window is active, nothing is
// dispatched (evaluation and receipt bookkeeping still run).
type QuietWindow struct {
	Spec     string
	Duration time.Duration

	sched cron.Schedule
}

// ParseQuietWindow validates the cron spec and duration.
func ParseQuietWindow(spec string, duration time.Duration) (QuietWindow, error) {
	if duration <= 0 {
		return QuietWindow{}, fmt.Errorf("quiet window %q: duration must be > 0", spec)
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return QuietWindow{}, fmt.Errorf("quiet window %q: %w", spec, err)
	}
	return QuietWindow{Spec: spec, Duration: duration, sched: sched}, nil
}

// Contains reports whether t falls inside the window, i.e. whether the
// schedule fired within the last Duration.
func (w QuietWindow) Contains(t time.Time) bool {
	if w.sched == nil || w.Duration <= 0 {
		return false
	}
	start := w.sched.Next(t.Add(-w.Duration))
	return !start.After(t)
}

// quietWindowAt returns the active window at t, or nil.
func (n *Notifier) quietWindowAt(t time.Time) *QuietWindow {
	cfg := n.configSnapshot()
	for i := range cfg.QuietHours {
		if cfg.QuietHours[i].Contains(t) {
			return &cfg.QuietHours[i]
		}
	}
	return nil
}
