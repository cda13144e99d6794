package device

import (
	"time"

	"crocker/internal/display"
	"crocker/internal/model"
	"crocker/internal/schedule"
	"crocker/internal/tick"
	"crocker/internal/timer"
)

// Snapshot is an immutable copy of the device state taken at the end of a
// step. It is safe to read from any goroutine.
type Snapshot struct {
	Tick       uint32       `json:"tick"`
	TimeValid  bool         `json:"time_valid"`
	Wall       *time.Time   `json:"wall,omitempty"`
	State      string       `json:"state"`
	Session    *SessionView `json:"session,omitempty"`
	Alarm      AlarmView    `json:"alarm"`
	Screen     display.View `json:"screen"`
	Generation uint64       `json:"generation"`
	Events     []EventView  `json:"-"`
	Connected  bool         `json:"connected"`
	Dropped    uint64       `json:"dropped"`
}

type SessionView struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Remaining string `json:"remaining"`
	Active    bool   `json:"active"`
}

type AlarmView struct {
	Enabled bool `json:"enabled"`
	Active  bool `json:"active"`
}

// EventView is an event in API form.
type EventView struct {
	Start       string `json:"start"`
	StartMinute uint16 `json:"start_minute"`
	End         string `json:"end"`
	Duration    uint16 `json:"duration"`
	Label       string `json:"label"`
	Path        string `json:"path,omitempty"`
}

func viewEvent(ev model.Event) EventView {
	return EventView{
		Start:       schedule.FormatHHMM(int(ev.Start)),
		StartMinute: ev.Start,
		End:         schedule.FormatHHMM(ev.EndMinute()),
		Duration:    ev.Duration,
		Label:       ev.Label,
		Path:        ev.Path,
	}
}

// Snapshot returns the latest published state, or nil before Boot.
func (d *Device) Snapshot() *Snapshot { return d.snap.Load() }

func (d *Device) publish(now tick.Tick, wall wallClock) {
	if gen := d.Cache.Generation(); d.events == nil || gen != d.eventsGen || d.Sync.TakeRefresh() {
		d.events = d.Cache.All(now)
		d.eventsGen = gen
	}

	s := &Snapshot{
		Tick:       uint32(now),
		TimeValid:  wall.valid,
		State:      d.fsm.State().String(),
		Alarm:      AlarmView{Enabled: d.Alarm.Enabled(), Active: d.Alarm.Active()},
		Screen:     d.Screen.View(),
		Generation: d.eventsGen,
		Events:     make([]EventView, 0, len(d.events)),
		Connected:  d.Sink.Connected(),
		Dropped:    d.dropped,
	}
	if wall.valid {
		at := wall.at
		s.Wall = &at
	}
	if d.fsm.State() != timer.Init {
		sess := d.fsm.Session()
		s.Session = &SessionView{
			ID:        sess.ID,
			Label:     sess.Event.Label,
			Remaining: timer.FormatCountdown(sess.Remaining(now)),
			Active:    sess.Active,
		}
	}
	for _, ev := range d.events {
		s.Events = append(s.Events, viewEvent(ev))
	}
	d.snap.Store(s)
}
