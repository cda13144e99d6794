// Package ics imports one day of a calendar into the device's event-list
// form. It is an offline tool: the appliance itself never sees recurrence
// rules, only the flat list of minute-of-day records the import produces.
package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"crocker/internal/errcode"
	appLog "crocker/internal/log"
)

// ParsedEvent is the normalized representation of a VEVENT.
type ParsedEvent struct {
	Source Source

	UID     string
	Summary string
	// Attach is the first ATTACH value, used as the event's background.
	Attach string

	Start     time.Time
	End       time.Time
	AllDay    bool
	Cancelled bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID, when this VEVENT overrides one instance
}

// IsOverride reports whether ev replaces a single instance of a series.
func (ev ParsedEvent) IsOverride() bool { return ev.Recurrence != nil }

// ParseICS parses a single ICS payload. Events that cannot be read are
// logged and skipped.
func ParseICS(src Source, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errcode.New(errcode.ParseError, "ics.parse", "empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, errcode.Wrap(errcode.ParseError, "ics.parse", err)
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(src, comp)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "error", perr, "id", src.ID)
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func parseVEvent(src Source, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty("ATTACH"); p != nil {
		out.Attach = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty("STATUS"); p != nil {
		out.Cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	if vs := dtStart.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		out.AllDay = true
	}
	if !strings.Contains(dtStart.Value, "T") {
		out.AllDay = true
	}

	start, err := ve.GetStartAt()
	if err != nil {
		if !out.AllDay {
			return out, err
		}
		start, err = parseICSTime(dtStart.Value, tzidOf(dtStart.ICalParameters, time.Local))
		if err != nil {
			return out, err
		}
	}
	out.Start = start

	end, err := ve.GetEndAt()
	if err != nil || end.IsZero() {
		end = out.Start
		if p := ve.GetProperty("DURATION"); p != nil {
			if d, ok := parseDuration(p.Value); ok {
				end = out.Start.Add(d)
			}
		}
	}
	out.End = end

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tzidOf(p.ICalParameters, out.Start.Location())); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, tzidOf(p.ICalParameters, out.Start.Location())); err == nil {
			out.Recurrence = &t
		}
	}

	return out, nil
}

// tzidOf resolves a TZID parameter, falling back to def.
func tzidOf(params map[string][]string, def *time.Location) *time.Location {
	if tz := params["TZID"]; len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.Local
	}
	return def
}

// parseICSTime parses a DATE or DATE-TIME value. Floating times are read in
// loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}

// parseDuration reads the time part of an RFC 5545 duration such as
// "PT1H30M" or "P1DT2H". Week and negative forms are not supported.
func parseDuration(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "P") {
		return 0, false
	}
	v = v[1:]
	var d time.Duration
	inTime := false
	num := ""
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
			continue
		case r == 'T':
			inTime = true
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, false
		}
		num = ""
		switch {
		case r == 'D' && !inTime:
			d += time.Duration(n) * 24 * time.Hour
		case r == 'H' && inTime:
			d += time.Duration(n) * time.Hour
		case r == 'M' && inTime:
			d += time.Duration(n) * time.Minute
		case r == 'S' && inTime:
			d += time.Duration(n) * time.Second
		default:
			return 0, false
		}
	}
	return d, num == ""
}
