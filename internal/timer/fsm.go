// Package timer runs the countdown for the schedule's current event and
// sounds the alarm when it expires.
//
// The machine has four states:
//
//	Init  -> Start  when the schedule has a current event
//	Start -> Run    once the session is active
//	Run   -> End    when the session duration has elapsed
//	End   -> Start  when a different event is current and the alarm is done
//	End   -> Init   when no event is current and the alarm is done
//
// Each Tick evaluates at most one transition and then runs the action of the
// resulting state.
package timer

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	appLog "crocker/internal/log"
	"crocker/internal/model"
	"crocker/internal/schedule"
	"crocker/internal/tick"
)

type State int

const (
	Init State = iota
	Start
	Run
	End
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Start:
		return "start"
	case Run:
		return "run"
	case End:
		return "end"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Idle presentation.
const (
	IdleText    = "Ready"
	UnknownTime = "--:--"
)

// Schedule is the part of the schedule cache the machine reads.
type Schedule interface {
	Current(now tick.Tick, minutes uint16) (model.Event, bool)
	Generation() uint64
}

// Alarm is the part of the alarm generator the machine drives.
type Alarm interface {
	Trigger(now tick.Tick)
	Active() bool
}

// Presenter receives what the screen should show.
type Presenter interface {
	SetEventText(text string)
	SetTimeText(text string)
	SetProgress(percent int)
	SetBackground(path string)
}

// Session is one countdown for one event.
type Session struct {
	ID         string
	StartTick  tick.Tick
	DurationMs uint32
	Active     bool
	Event      model.Event
}

// Elapsed returns the session's elapsed time at now, capped at its
// duration.
func (s Session) Elapsed(now tick.Tick) time.Duration {
	e := now.Sub(s.StartTick)
	if d := time.Duration(s.DurationMs) * time.Millisecond; e > d {
		return d
	}
	return e
}

// Remaining returns the time left at now.
func (s Session) Remaining(now tick.Tick) time.Duration {
	return time.Duration(s.DurationMs)*time.Millisecond - s.Elapsed(now)
}

// FSM is not safe for concurrent use.
type FSM struct {
	sched   Schedule
	alarm   Alarm
	present Presenter
	policy  ReloadPolicy

	state      State
	session    Session
	sessionGen uint64
	alarmFired bool
}

func New(sched Schedule, alarm Alarm, present Presenter, policy ReloadPolicy) *FSM {
	if policy == "" {
		policy = PolicyFinish
	}
	return &FSM{sched: sched, alarm: alarm, present: present, policy: policy}
}

func (f *FSM) State() State         { return f.state }
func (f *FSM) Session() Session     { return f.session }
func (f *FSM) Policy() ReloadPolicy { return f.policy }

// Tick advances the machine. minutes is the local wall-clock minute of day;
// when timeValid is false the wall clock is unknown and no event is
// considered current.
func (f *FSM) Tick(now tick.Tick, minutes uint16, timeValid bool) {
	cur, hasCur := f.current(now, minutes, timeValid)
	f.applyPolicy(cur, hasCur)

	switch f.state {
	case Init:
		if hasCur {
			f.enterStart(now, cur)
		}
	case Start:
		if f.session.Active {
			f.state = Run
		}
	case Run:
		if f.session.Elapsed(now) >= time.Duration(f.session.DurationMs)*time.Millisecond {
			f.enterEnd()
		}
	case End:
		if !f.alarm.Active() {
			switch {
			case hasCur && cur != f.session.Event:
				f.enterStart(now, cur)
			case !hasCur:
				f.state = Init
				appLog.Debug("timer idle")
			}
		}
	}

	switch f.state {
	case Init:
		f.showIdle(minutes, timeValid)
	case Run:
		f.showProgress(now)
	case End:
		if !f.alarmFired {
			f.alarmFired = true
			f.alarm.Trigger(now)
		}
		f.present.SetProgress(100)
		f.present.SetTimeText(FormatCountdown(0))
	}
}

// Cancel ends the running session without sounding the alarm.
func (f *FSM) Cancel() {
	if f.state == Init {
		return
	}
	appLog.Info("timer session cancelled", "session", f.session.ID, "label", f.session.Event.Label)
	f.session.Active = false
	f.state = Init
}

func (f *FSM) current(now tick.Tick, minutes uint16, timeValid bool) (model.Event, bool) {
	if !timeValid {
		return model.Event{}, false
	}
	return f.sched.Current(now, minutes)
}

func (f *FSM) applyPolicy(cur model.Event, hasCur bool) {
	if f.state != Start && f.state != Run {
		return
	}
	gen := f.sched.Generation()
	if gen == f.sessionGen {
		return
	}
	f.sessionGen = gen

	switch f.policy {
	case PolicyCancel:
		f.Cancel()
	case PolicyRevalidate:
		if !hasCur || cur != f.session.Event {
			f.Cancel()
		}
	}
}

func (f *FSM) enterStart(now tick.Tick, ev model.Event) {
	f.session = Session{
		ID:         uuid.NewString(),
		StartTick:  now,
		DurationMs: uint32(ev.Duration) * 1000,
		Active:     true,
		Event:      ev,
	}
	f.sessionGen = f.sched.Generation()
	f.alarmFired = false
	f.state = Start

	f.present.SetEventText(ev.Label)
	f.present.SetBackground(ev.Path)
	f.present.SetProgress(0)
	f.present.SetTimeText(FormatCountdown(f.session.Remaining(now)))

	appLog.Info("timer session started",
		"session", f.session.ID,
		"label", ev.Label,
		"start", schedule.FormatHHMM(int(ev.Start)),
		"duration_s", ev.Duration,
	)
}

func (f *FSM) enterEnd() {
	f.session.Active = false
	f.state = End
	appLog.Info("timer session ended", "session", f.session.ID, "label", f.session.Event.Label)
}

func (f *FSM) showProgress(now tick.Tick) {
	total := time.Duration(f.session.DurationMs) * time.Millisecond
	pct := 100
	if total > 0 {
		pct = int(f.session.Elapsed(now) * 100 / total)
	}
	f.present.SetProgress(pct)
	f.present.SetTimeText(FormatCountdown(f.session.Remaining(now)))
}

func (f *FSM) showIdle(minutes uint16, timeValid bool) {
	f.present.SetEventText(IdleText)
	f.present.SetBackground("")
	f.present.SetProgress(0)
	if timeValid {
		f.present.SetTimeText(schedule.FormatHHMM(int(minutes)))
	} else {
		f.present.SetTimeText(UnknownTime)
	}
}

// FormatCountdown renders d as "M:SS", rounding partial seconds up so the
// display reaches 0:00 only when the time is actually up.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
