// Package tick provides the monotonic millisecond counter every component
// uses for elapsed-time math. Ticks are 32-bit and wrap roughly every
// 49.7 days; differences are computed modulo 2^32 so a wrap between two
// snapshots is harmless.
package tick

import (
	"sync/atomic"
	"time"
)

// Tick is a wrapping millisecond counter unaffected by wall-clock changes.
type Tick uint32

// Sub returns the elapsed time from earlier to t, modulo the counter width.
func (t Tick) Sub(earlier Tick) time.Duration {
	return time.Duration(uint32(t-earlier)) * time.Millisecond
}

// Ms returns the elapsed milliseconds from earlier to t.
func (t Tick) Ms(earlier Tick) uint32 {
	return uint32(t - earlier)
}

// Add advances t by d, wrapping.
func (t Tick) Add(d time.Duration) Tick {
	return t + Tick(uint32(d/time.Millisecond))
}

// Source yields tick snapshots. The main loop samples it once per iteration.
type Source interface {
	Now() Tick
}

// System counts milliseconds since it was created, using the runtime's
// monotonic clock.
type System struct {
	start time.Time
}

func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() Tick {
	return Tick(uint32(time.Since(s.start).Milliseconds()))
}

// Manual is a virtual tick source for tests and simulations.
type Manual struct {
	v atomic.Uint32
}

func NewManual(start Tick) *Manual {
	m := &Manual{}
	m.v.Store(uint32(start))
	return m
}

func (m *Manual) Now() Tick { return Tick(m.v.Load()) }

func (m *Manual) Set(t Tick) { m.v.Store(uint32(t)) }

func (m *Manual) Advance(d time.Duration) Tick {
	return Tick(m.v.Add(uint32(d / time.Millisecond)))
}
