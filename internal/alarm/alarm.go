// Package alarm drives the buzzer through a fixed beep pattern: groups of
// four short beeps separated by a long pause, repeated until the configured
// number of beeps has sounded.
//
// The generator is polled from the main loop with the iteration's tick
// snapshot; it never sleeps or spawns goroutines.
package alarm

import (
	"time"

	"periph.io/x/conn/v3/gpio"

	appLog "crocker/internal/log"
	"crocker/internal/tick"
)

// GroupSize is the number of beeps between long pauses.
const GroupSize = 4

// Pattern describes the beep timing.
type Pattern struct {
	Beep       time.Duration
	ShortPause time.Duration
	LongPause  time.Duration
	TotalBeeps int
}

// DefaultPattern is 16 beeps of 100 ms, 50 ms apart, with 500 ms after every
// fourth beep.
func DefaultPattern() Pattern {
	return Pattern{
		Beep:       100 * time.Millisecond,
		ShortPause: 50 * time.Millisecond,
		LongPause:  500 * time.Millisecond,
		TotalBeeps: 16,
	}
}

// Normalize fills zero durations from the default and rounds TotalBeeps up
// to a whole number of groups.
func (p *Pattern) Normalize() {
	def := DefaultPattern()
	if p.Beep <= 0 {
		p.Beep = def.Beep
	}
	if p.ShortPause <= 0 {
		p.ShortPause = def.ShortPause
	}
	if p.LongPause <= 0 {
		p.LongPause = def.LongPause
	}
	if p.TotalBeeps <= 0 {
		p.TotalBeeps = def.TotalBeeps
	}
	if r := p.TotalBeeps % GroupSize; r != 0 {
		p.TotalBeeps += GroupSize - r
	}
}

// Output is the buzzer line. gpio.PinOut satisfies it.
type Output interface {
	Out(l gpio.Level) error
}

// State is a read-only view of the generator.
type State struct {
	Enabled          bool
	Active           bool
	BeepStartTick    tick.Tick
	LastActionTick   tick.Tick
	BeepCount        int
	CurrentlyBeeping bool
}

// Generator is not safe for concurrent use.
type Generator struct {
	out     Output
	pattern Pattern
	st      State
}

// New returns an enabled, idle generator with the output driven low.
func New(out Output, p Pattern) *Generator {
	p.Normalize()
	g := &Generator{out: out, pattern: p}
	g.st.Enabled = true
	g.drive(gpio.Low)
	return g
}

func (g *Generator) Pattern() Pattern { return g.pattern }
func (g *Generator) State() State     { return g.st }
func (g *Generator) Active() bool     { return g.st.Active }
func (g *Generator) Enabled() bool    { return g.st.Enabled }

// SetEnabled toggles the alarm. Disabling stops a running pattern.
func (g *Generator) SetEnabled(on bool) {
	g.st.Enabled = on
	if !on {
		g.Stop()
	}
}

// Trigger starts the pattern with the first beep. It is a no-op while a
// pattern is already running, and forces the output off when disabled.
func (g *Generator) Trigger(now tick.Tick) {
	if !g.st.Enabled {
		g.Stop()
		return
	}
	if g.st.Active {
		return
	}
	g.st.Active = true
	g.st.BeepCount = 0
	g.st.BeepStartTick = now
	g.beepOn(now)
	appLog.Info("alarm triggered", "beeps", g.pattern.TotalBeeps)
}

// Tick advances the pattern to now.
func (g *Generator) Tick(now tick.Tick) {
	if !g.st.Active {
		return
	}
	if !g.st.Enabled {
		g.Stop()
		return
	}

	elapsed := now.Sub(g.st.LastActionTick)
	if g.st.CurrentlyBeeping {
		if elapsed < g.pattern.Beep {
			return
		}
		g.drive(gpio.Low)
		g.st.CurrentlyBeeping = false
		g.st.BeepCount++
		g.st.LastActionTick = now
		if g.st.BeepCount >= g.pattern.TotalBeeps {
			appLog.Debug("alarm pattern complete", "beeps", g.st.BeepCount)
			g.Stop()
		}
		return
	}

	pause := g.pattern.ShortPause
	if g.st.BeepCount%GroupSize == 0 {
		pause = g.pattern.LongPause
	}
	if elapsed >= pause {
		g.beepOn(now)
	}
}

// Stop silences the buzzer and ends any pattern. It is always safe.
func (g *Generator) Stop() {
	g.drive(gpio.Low)
	g.st.Active = false
	g.st.CurrentlyBeeping = false
	g.st.BeepCount = 0
}

func (g *Generator) beepOn(now tick.Tick) {
	g.drive(gpio.High)
	g.st.CurrentlyBeeping = true
	g.st.LastActionTick = now
}

func (g *Generator) drive(l gpio.Level) {
	if err := g.out.Out(l); err != nil {
		appLog.Error("buzzer output failed", err, "level", l.String())
	}
}
