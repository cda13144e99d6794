package timer

import (
	"testing"
	"time"

	"crocker/internal/model"
	"crocker/internal/tick"
)

type fakeSchedule struct {
	events []model.Event
	gen    uint64
}

func (s *fakeSchedule) Current(_ tick.Tick, m uint16) (model.Event, bool) {
	for _, ev := range s.events {
		if ev.ActiveAt(m) {
			return ev, true
		}
	}
	return model.Event{}, false
}

func (s *fakeSchedule) Generation() uint64 { return s.gen }

type fakeAlarm struct {
	triggers int
	active   bool
}

func (a *fakeAlarm) Trigger(tick.Tick) {
	a.triggers++
	a.active = true
}

func (a *fakeAlarm) Active() bool { return a.active }

type screen struct {
	event, time, background string
	progress                int
}

func (s *screen) SetEventText(t string)  { s.event = t }
func (s *screen) SetTimeText(t string)   { s.time = t }
func (s *screen) SetProgress(p int)      { s.progress = p }
func (s *screen) SetBackground(p string) { s.background = p }

var breakfast = model.Event{Start: 420, Duration: 1800, Label: "Breakfast", Path: "/b"}

func newFSM(events []model.Event, policy ReloadPolicy) (*FSM, *fakeSchedule, *fakeAlarm, *screen) {
	sched := &fakeSchedule{events: events}
	al := &fakeAlarm{}
	sc := &screen{}
	return New(sched, al, sc, policy), sched, al, sc
}

func TestNoEventsStaysInit(t *testing.T) {
	f, _, al, sc := newFSM(nil, "")
	for m := uint16(0); m < model.MinutesPerDay; m++ {
		f.Tick(tick.Tick(m)*60_000, m, true)
		if f.State() != Init {
			t.Fatalf("left Init at minute %d", m)
		}
	}
	if al.triggers != 0 {
		t.Fatal("alarm fired without events")
	}
	if sc.event != IdleText || sc.time != "23:59" {
		t.Fatalf("idle screen = %+v", sc)
	}
}

func TestPastEventNeverStarts(t *testing.T) {
	f, _, _, _ := newFSM([]model.Event{breakfast}, "")
	for m := uint16(450); m < 600; m++ {
		f.Tick(tick.Tick(m)*60_000, m, true)
		if f.State() != Init {
			t.Fatalf("started at minute %d", m)
		}
	}
}

func TestUnknownTimeMeansNoEvent(t *testing.T) {
	f, _, _, sc := newFSM([]model.Event{breakfast}, "")
	f.Tick(0, 430, false)
	if f.State() != Init || sc.time != UnknownTime || sc.event != IdleText {
		t.Fatalf("state=%s screen=%+v", f.State(), sc)
	}
}

func TestFullCycle(t *testing.T) {
	ev := model.Event{Start: 420, Duration: 120, Label: "Stretch", Path: "/s"}
	f, _, al, sc := newFSM([]model.Event{ev}, "")
	clock := tick.NewManual(1000)

	f.Tick(clock.Now(), 420, true)
	if f.State() != Start {
		t.Fatalf("state=%s", f.State())
	}
	if sc.event != "Stretch" || sc.background != "/s" || sc.time != "2:00" {
		t.Fatalf("start screen = %+v", sc)
	}
	s := f.Session()
	if s.ID == "" || !s.Active || s.DurationMs != 120_000 || s.StartTick != 1000 {
		t.Fatalf("session = %+v", s)
	}

	f.Tick(clock.Advance(5*time.Millisecond), 420, true)
	if f.State() != Run {
		t.Fatalf("state=%s", f.State())
	}

	f.Tick(clock.Advance(60*time.Second), 421, true)
	if sc.progress != 50 || sc.time != "1:00" {
		t.Fatalf("mid screen = %+v", sc)
	}

	f.Tick(clock.Advance(60*time.Second), 422, true)
	if f.State() != End || al.triggers != 1 || sc.progress != 100 || sc.time != "0:00" {
		t.Fatalf("state=%s triggers=%d screen=%+v", f.State(), al.triggers, sc)
	}

	f.Tick(clock.Advance(time.Second), 422, true)
	if f.State() != End || al.triggers != 1 {
		t.Fatal("alarm must be triggered once")
	}

	al.active = false
	f.Tick(clock.Advance(time.Second), 422, true)
	if f.State() != Init || sc.event != IdleText || sc.time != "07:02" {
		t.Fatalf("state=%s screen=%+v", f.State(), sc)
	}
}

func TestEndWaitsForAlarmThenPicksUpAdjacentEvent(t *testing.T) {
	a := model.Event{Start: 420, Duration: 60, Label: "A", Path: "/a"}
	b := model.Event{Start: 421, Duration: 600, Label: "B", Path: "/b"}
	f, _, al, _ := newFSM([]model.Event{a, b}, "")
	clock := tick.NewManual(0)

	f.Tick(clock.Now(), 420, true)
	f.Tick(clock.Advance(time.Millisecond), 420, true)
	f.Tick(clock.Advance(60*time.Second), 421, true)
	if f.State() != End {
		t.Fatalf("state=%s", f.State())
	}

	f.Tick(clock.Advance(time.Second), 421, true)
	if f.State() != End {
		t.Fatal("left End while the alarm was playing")
	}

	al.active = false
	f.Tick(clock.Advance(time.Second), 421, true)
	if f.State() != Start || f.Session().Event.Label != "B" {
		t.Fatalf("state=%s session=%+v", f.State(), f.Session())
	}
	if al.triggers != 1 {
		t.Fatalf("triggers=%d", al.triggers)
	}
}

func TestReloadPolicies(t *testing.T) {
	other := model.Event{Start: 400, Duration: 3600, Label: "Other", Path: "/o"}
	cases := []struct {
		policy    ReloadPolicy
		events    []model.Event
		cancelled bool
	}{
		{PolicyFinish, []model.Event{other}, false},
		{PolicyCancel, []model.Event{breakfast}, true},
		{PolicyRevalidate, []model.Event{breakfast}, false},
		{PolicyRevalidate, []model.Event{other}, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.policy), func(t *testing.T) {
			f, sched, _, _ := newFSM([]model.Event{breakfast}, tc.policy)
			f.Tick(0, 425, true)
			f.Tick(1, 425, true)
			first := f.Session().ID

			sched.events = tc.events
			sched.gen++
			f.Tick(2, 426, true)

			if tc.cancelled {
				// A cancelled session is replaced by a fresh one for whatever is current.
				if f.Session().ID == first || f.State() != Start {
					t.Fatalf("expected a new session, state=%s", f.State())
				}
			} else if f.Session().ID != first || f.State() != Run {
				t.Fatalf("session disturbed, state=%s", f.State())
			}
		})
	}
}

func TestCancel(t *testing.T) {
	f, _, al, _ := newFSM([]model.Event{breakfast}, "")
	f.Tick(0, 425, true)
	f.Cancel()
	f.Cancel()
	if f.State() != Init || f.Session().Active {
		t.Fatalf("state=%s", f.State())
	}
	if al.triggers != 0 {
		t.Fatal("cancel must not sound the alarm")
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy(""); err != nil || p != PolicyFinish {
		t.Fatalf("got %q, %v", p, err)
	}
	if _, err := ParsePolicy("explode"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestFormatCountdown(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "0:00",
		-time.Second:            "0:00",
		time.Millisecond:        "0:01",
		59 * time.Second:        "0:59",
		90 * time.Second:        "1:30",
		1800 * time.Second:      "30:00",
		65535 * time.Second:     "1092:15",
		1500 * time.Millisecond: "0:02",
	}
	for in, want := range cases {
		if got := FormatCountdown(in); got != want {
			t.Errorf("FormatCountdown(%v)=%q want %q", in, got, want)
		}
	}
}
