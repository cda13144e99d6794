package timesync

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"crocker/internal/errcode"
	appLog "crocker/internal/log"
)

const (
	DefaultDailySpec   = "0 2 * * *"
	DefaultDailyWindow = time.Hour
)

// Requester is the link side of the daily schedule resend.
type Requester interface {
	Connected() bool
	RequestScheduleSync() error
}

// Daily asks the host to resend the schedule once per cron occurrence. An
// occurrence is due from its scheduled time until the window closes, and is
// consumed on the first check inside it whether or not the link is up.
type Daily struct {
	spec   string
	sched  cron.Schedule
	window time.Duration
	last   time.Time
}

func NewDaily(spec string, window time.Duration) (*Daily, error) {
	if spec == "" {
		spec = DefaultDailySpec
	}
	if window <= 0 {
		window = DefaultDailyWindow
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "timesync.daily", fmt.Errorf("cron %q: %w", spec, err))
	}
	return &Daily{spec: spec, sched: sched, window: window}, nil
}

func (d *Daily) Spec() string { return d.spec }

// Due reports whether an unconsumed occurrence lies in (now-window, now],
// and consumes it.
func (d *Daily) Due(now time.Time) bool {
	occ := d.sched.Next(now.Add(-d.window))
	if occ.IsZero() || occ.After(now) || occ.Equal(d.last) {
		return false
	}
	d.last = occ
	return true
}

// Check consumes a due occurrence and, when the link is up, sends the
// request. It reports whether a request was sent.
func (d *Daily) Check(now time.Time, r Requester) bool {
	if !d.Due(now) {
		return false
	}
	if r == nil || !r.Connected() {
		appLog.Info("daily schedule sync due; link down", "at", now.Format(time.RFC3339))
		return false
	}
	if err := r.RequestScheduleSync(); err != nil {
		appLog.Error("daily schedule sync request failed", err)
		return false
	}
	appLog.Info("daily schedule sync requested", "at", now.Format(time.RFC3339))
	return true
}
