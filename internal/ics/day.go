package ics

import (
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/teambition/rrule-go"

	appLog "crocker/internal/log"
	"crocker/internal/model"
	"crocker/internal/schedule"
)

// DayConfig selects the day to import.
type DayConfig struct {
	// Day is any instant on the wanted calendar day in Location.
	Day      time.Time
	Location *time.Location
	// Capacity caps the number of records. Zero selects the schedule's
	// default capacity.
	Capacity int
}

// DayResult is the imported list plus what was left out.
type DayResult struct {
	Events []model.Event
	// Skipped counts instances on the day that cannot be represented:
	// all-day, cancelled, or starting before midnight.
	Skipped int
	// Truncated is set when more instances remained after Capacity.
	Truncated bool
}

// occurrence is one concrete instance of an event.
type occurrence struct {
	ev    ParsedEvent
	start time.Time
	end   time.Time
}

// Day flattens events into the records starting on cfg.Day, sorted by start.
func Day(events []ParsedEvent, cfg DayConfig) DayResult {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = schedule.DefaultCapacity
	}
	d := cfg.Day.In(cfg.Location)
	dayStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, cfg.Location)
	dayEnd := dayStart.AddDate(0, 0, 1)

	overrides := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
		}
	}

	var occs []occurrence
	for _, ev := range events {
		if ev.IsOverride() {
			continue
		}
		occs = append(occs, instances(ev, overrides[ev.UID], dayStart, dayEnd)...)
	}
	// An override moved onto this day from another day's instance.
	for _, list := range overrides {
		for _, o := range list {
			if inDay(o.Start, dayStart, dayEnd) && !inDay(*o.Recurrence, dayStart, dayEnd) {
				occs = append(occs, occurrence{ev: o, start: o.Start, end: o.End})
			}
		}
	}

	slices.SortStableFunc(occs, func(a, b occurrence) int { return a.start.Compare(b.start) })

	var res DayResult
	for _, oc := range occs {
		rec, ok := toRecord(oc, dayStart, cfg.Location)
		if !ok {
			res.Skipped++
			continue
		}
		if len(res.Events) == cfg.Capacity {
			res.Truncated = true
			break
		}
		res.Events = append(res.Events, rec)
	}

	appLog.Info("ics day imported",
		"day", dayStart.Format(time.DateOnly),
		"events", len(res.Events),
		"skipped", res.Skipped,
		"truncated", res.Truncated,
	)
	return res
}

func inDay(t, dayStart, dayEnd time.Time) bool {
	return !t.Before(dayStart) && t.Before(dayEnd)
}

// instances returns ev's instances whose start falls on the day, with any
// matching overrides applied.
func instances(ev ParsedEvent, overrides []ParsedEvent, dayStart, dayEnd time.Time) []occurrence {
	var starts []time.Time
	if ev.RawRRule == "" {
		starts = []time.Time{ev.Start}
	} else {
		r, err := rrule.StrToRRule(ev.RawRRule)
		if err != nil {
			appLog.Error("ics rrule unreadable", err, "uid", ev.UID, "rrule", ev.RawRRule)
			return nil
		}
		r.DTStart(ev.Start)

		var set rrule.Set
		set.RRule(r)
		for _, ex := range ev.ExDates {
			set.ExDate(ex.In(ev.Start.Location()))
		}
		// Widen by a day so instances whose own zone puts them on a
		// neighbouring date are still considered.
		starts = set.Between(dayStart.AddDate(0, 0, -1), dayEnd.AddDate(0, 0, 1), true)
	}

	length := ev.End.Sub(ev.Start)
	var out []occurrence
	for _, s := range starts {
		oc := occurrence{ev: ev, start: s, end: s.Add(length)}
		if o, ok := findOverride(overrides, s); ok {
			oc = occurrence{ev: o, start: o.Start, end: o.End}
		}
		if inDay(oc.start, dayStart, dayEnd) {
			out = append(out, oc)
		}
	}
	return out
}

// findOverride finds the override whose RECURRENCE-ID is start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func toRecord(oc occurrence, dayStart time.Time, loc *time.Location) (model.Event, bool) {
	if oc.ev.AllDay || oc.ev.Cancelled {
		return model.Event{}, false
	}
	local := oc.start.In(loc)
	if local.Before(dayStart) {
		return model.Event{}, false
	}
	secs := oc.end.Sub(oc.start) / time.Second
	secs = max(0, min(secs, math.MaxUint16))

	path := oc.ev.Attach
	if len(path) > model.MaxPathLen || strings.ContainsAny(path, `"{}`) {
		path = ""
	}
	return model.Event{
		Start:    uint16(local.Hour()*60 + local.Minute()),
		Duration: uint16(secs),
		Label:    cleanLabel(oc.ev.Summary),
		Path:     path,
	}, true
}

// cleanLabel drops characters the event list cannot carry and cuts the
// label to its byte capacity on a rune boundary.
func cleanLabel(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '"', '{', '}', 0:
			return -1
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, strings.TrimSpace(s))
	if len(s) <= model.MaxLabelLen {
		return s
	}
	cut := model.MaxLabelLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
