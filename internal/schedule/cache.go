// Package schedule keeps a sorted, time-limited in-memory copy of the
// event list and answers "what is on now" and "what is next" queries.
//
// Every query takes the caller's tick snapshot so that one main-loop
// iteration sees one consistent view. The cache reloads itself lazily: on
// first use, after Invalidate, or once the TTL has elapsed. An empty result
// is kept until one of those happens.
package schedule

import (
	"fmt"
	"slices"
	"time"

	"crocker/internal/eventlist"
	appLog "crocker/internal/log"
	"crocker/internal/model"
	"crocker/internal/tick"
)

const (
	DefaultTTL      = 60 * time.Second
	DefaultCapacity = 16
)

// Source yields the raw event-list document.
type Source interface {
	ReadEvents() ([]byte, error)
}

// Options tunes a Cache. Zero values select the defaults.
type Options struct {
	TTL      time.Duration
	Capacity int
}

// Cache is not safe for concurrent use; it belongs to the main loop.
type Cache struct {
	src      Source
	ttl      time.Duration
	capacity int

	events    []model.Event
	fetched   bool
	invalid   bool
	fetchedAt tick.Tick

	// emptyLogged quiets repeated empty reloads down to Debug.
	emptyLogged bool

	generation uint64
}

func New(src Source, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Cache{src: src, ttl: opts.TTL, capacity: opts.Capacity}
}

// Generation changes whenever a reload produces a different event list.
func (c *Cache) Generation() uint64 { return c.generation }

// Invalidate forces a reload on the next query.
func (c *Cache) Invalidate() {
	c.invalid = true
}

// Reload fetches and parses the event list now. On any failure the cache is
// left empty so that queries report no event instead of stale data.
func (c *Cache) Reload(now tick.Tick) error {
	c.fetched = true
	c.invalid = false
	c.fetchedAt = now

	data, err := c.src.ReadEvents()
	if err != nil {
		appLog.Error("schedule reload: read failed", err)
		c.replace(nil)
		return err
	}

	res, err := eventlist.Parse(data, c.capacity)
	if eventlist.IsEmpty(res, err) {
		c.replace(nil)
		c.logEmpty("schedule reload: empty event list")
		return nil
	}
	if err != nil {
		c.replace(nil)
		c.logEmpty("schedule reload: no events", "err", err, "skipped", res.Skipped)
		return err
	}
	c.emptyLogged = false

	events := res.Events
	slices.SortStableFunc(events, func(a, b model.Event) int {
		return int(a.Start) - int(b.Start)
	})
	c.replace(events)

	appLog.Info("schedule reloaded",
		"events", len(events),
		"skipped", res.Skipped,
		"truncated", res.Truncated,
		"generation", c.generation,
	)
	return nil
}

func (c *Cache) logEmpty(msg string, kv ...any) {
	if c.emptyLogged {
		appLog.Debug(msg, kv...)
		return
	}
	c.emptyLogged = true
	appLog.Warn(msg, kv...)
}

func (c *Cache) replace(events []model.Event) {
	if !slices.Equal(c.events, events) {
		c.generation++
	}
	c.events = events
}

func (c *Cache) ensure(now tick.Tick) {
	if c.fetched && !c.invalid && now.Sub(c.fetchedAt) < c.ttl {
		return
	}
	_ = c.Reload(now)
}

// Current returns the first event, in start order, whose window contains
// minutes.
func (c *Cache) Current(now tick.Tick, minutes uint16) (model.Event, bool) {
	c.ensure(now)
	for _, ev := range c.events {
		if ev.ActiveAt(minutes) {
			return ev, true
		}
	}
	return model.Event{}, false
}

// Next returns the first event that starts strictly after minutes.
func (c *Cache) Next(now tick.Tick, minutes uint16) (model.Event, bool) {
	c.ensure(now)
	for _, ev := range c.events {
		if ev.Start > minutes {
			return ev, true
		}
	}
	return model.Event{}, false
}

// All returns a copy of the sorted event list.
func (c *Cache) All(now tick.Tick) []model.Event {
	c.ensure(now)
	return slices.Clone(c.events)
}

// MinutesUntilNext is the gap between minutes and the start of the next
// event.
func (c *Cache) MinutesUntilNext(now tick.Tick, minutes uint16) (int, bool) {
	ev, ok := c.Next(now, minutes)
	if !ok {
		return 0, false
	}
	return int(ev.Start) - int(minutes), true
}

// MinutesRemaining is the time left in the current event's window.
func (c *Cache) MinutesRemaining(now tick.Tick, minutes uint16) (int, bool) {
	ev, ok := c.Current(now, minutes)
	if !ok {
		return 0, false
	}
	return ev.EndMinute() - int(minutes), true
}

// FormatHHMM renders minutes since midnight as a 24-hour "HH:MM" clock.
// Values outside one day wrap.
func FormatHHMM(minutes int) string {
	m := ((minutes % model.MinutesPerDay) + model.MinutesPerDay) % model.MinutesPerDay
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
