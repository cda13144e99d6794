// Package device is the appliance's main loop. It owns every component and
// runs them in a fixed order against one tick snapshot per step; the only
// input from other goroutines is the inbox.
package device

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"crocker/internal/alarm"
	"crocker/internal/display"
	"crocker/internal/errcode"
	"crocker/internal/eventlist"
	"crocker/internal/inbox"
	"crocker/internal/kvstore"
	"crocker/internal/link"
	appLog "crocker/internal/log"
	"crocker/internal/model"
	"crocker/internal/schedule"
	"crocker/internal/tick"
	"crocker/internal/timer"
	"crocker/internal/timesync"
)

const DefaultInterval = 5 * time.Millisecond

// Status messages sent back over the link.
const (
	MsgConnected     = "Connected"
	MsgConfigSaved   = "Config saved"
	MsgConfigInvalid = "Invalid config"
	MsgTooLarge      = "JSON too large"
	MsgWriteFailed   = "Write failed"
	MsgTimeSynced    = "Time synced"
	MsgBadTimestamp  = "Invalid timestamp"
	MsgTimeTooOld    = "Phone time rejected (too old)"
	MsgBadTimeFormat = "Invalid time format"
	MsgParseFailed   = "Parse failed"
	MsgQueueFull     = "Queue full"
)

// EventWriter replaces the stored event-list document.
type EventWriter interface {
	WriteEvents(data []byte) error
}

// Settings is the persistent store behind the time estimate and the user
// settings.
type Settings interface {
	timesync.Persistence
	PutUint8(ctx context.Context, key string, v uint8) error
	Uint8(ctx context.Context, key string) (uint8, error)
}

// Deps are the components a Device runs. Sink may be nil.
type Deps struct {
	Clock    tick.Source
	Queue    *inbox.Queue
	Events   EventWriter
	Cache    *schedule.Cache
	Alarm    *alarm.Generator
	Sync     *timesync.Sync
	Daily    *timesync.Daily
	Settings Settings
	Sink     link.Sink
	Screen   *display.State

	Policy   timer.ReloadPolicy
	Location *time.Location
	Interval time.Duration
	// Capacity bounds how many records an incoming document may carry.
	Capacity int
}

type Device struct {
	Deps
	fsm *timer.FSM
	asm *inbox.Assembler

	events    []model.Event
	eventsGen uint64
	dropped   uint64

	snap atomic.Pointer[Snapshot]
}

func New(d Deps) *Device {
	if d.Sink == nil {
		d.Sink = link.Nop{}
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Interval <= 0 {
		d.Interval = DefaultInterval
	}
	if d.Capacity <= 0 {
		d.Capacity = schedule.DefaultCapacity
	}
	return &Device{
		Deps: d,
		fsm:  timer.New(d.Cache, d.Alarm, d.Screen, d.Policy),
		asm:  inbox.NewAssembler(inbox.DefaultMaxBlob),
	}
}

// FSM exposes the timer for inspection.
func (d *Device) FSM() *timer.FSM { return d.fsm }

// Boot restores persisted state and loads the schedule. Missing settings
// fall back to their defaults.
func (d *Device) Boot(ctx context.Context) {
	now := d.Clock.Now()

	d.Sync.Restore(ctx, now)

	b, err := d.Settings.Uint8(ctx, kvstore.KeyBrightness)
	if err != nil {
		if errcode.Of(err) != errcode.StoreAbsent {
			appLog.Warn("brightness unreadable; using default", "error", err)
		}
		b = display.DefaultBrightness
	}
	d.Screen.SetBrightness(b)

	enabled, err := d.Settings.Bool(ctx, kvstore.KeyAlarmEnabled)
	if err != nil {
		if errcode.Of(err) != errcode.StoreAbsent {
			appLog.Warn("alarm setting unreadable; using default", "error", err)
		}
		enabled = true
	}
	d.Alarm.SetEnabled(enabled)

	if err := d.Cache.Reload(now); err != nil {
		appLog.Warn("no schedule at boot", "error", err)
	}
	d.publish(now, d.wallMinutes(now))

	appLog.Info("device booted",
		"time_valid", d.Sync.Valid(),
		"brightness", d.Screen.View().Brightness,
		"alarm_enabled", enabled,
		"events", len(d.Cache.All(now)),
	)
}

// Step runs one main-loop iteration.
func (d *Device) Step(ctx context.Context) {
	now := d.Clock.Now()

	dropped := d.Queue.Drain(func(it inbox.Item) { d.handle(ctx, it, now) })
	if dropped > 0 {
		d.dropped += uint64(dropped)
		appLog.Warn("inbox overflowed", "dropped", dropped)
		d.report(link.Error, MsgQueueFull)
	}

	wall := d.wallMinutes(now)
	d.fsm.Tick(now, wall.minutes, wall.valid)
	d.Alarm.Tick(now)
	d.Sync.RefreshPersistence(ctx, now)
	if wall.valid && d.Daily != nil {
		d.Daily.Check(wall.at, d.Sink)
	}
	d.publish(now, wall)
}

// Run steps until ctx is cancelled. A newly queued message wakes the loop
// early.
func (d *Device) Run(ctx context.Context) error {
	t := time.NewTicker(d.Interval)
	defer t.Stop()

	appLog.Info("main loop started", "interval", d.Interval.String())
	for {
		select {
		case <-ctx.Done():
			d.Alarm.Stop()
			appLog.Info("main loop stopped")
			return ctx.Err()
		case <-t.C:
		case <-d.Queue.Readable():
		}
		d.Step(ctx)
	}
}

// SetAlarmEnabled toggles the alarm and persists the choice. Call it from
// the main loop's goroutine.
func (d *Device) SetAlarmEnabled(ctx context.Context, on bool) error {
	d.Alarm.SetEnabled(on)
	return d.Settings.PutBool(ctx, kvstore.KeyAlarmEnabled, on)
}

// SetBrightness applies and persists the brightness, raised to the panel
// minimum.
func (d *Device) SetBrightness(ctx context.Context, b uint8) error {
	b = d.Screen.SetBrightness(b)
	return d.Settings.PutUint8(ctx, kvstore.KeyBrightness, b)
}

func (d *Device) handle(ctx context.Context, it inbox.Item, now tick.Tick) {
	switch it.Kind {
	case inbox.KindConfig:
		blob, done, err := d.asm.Add(it)
		if err != nil {
			appLog.Warn("config blob discarded", "error", err)
			d.report(link.Error, MsgTooLarge)
			return
		}
		if done {
			d.applyConfig(blob)
		}
	case inbox.KindTime:
		d.applyTime(ctx, it.Data, now)
	case inbox.KindLinkUp:
		d.Sync.LinkUp()
		d.asm.Reset()
		d.report(link.Idle, MsgConnected)
	}
}

func (d *Device) applyConfig(blob []byte) {
	res, err := eventlist.Parse(blob, d.Capacity)
	if eventlist.IsEmpty(res, err) {
		// An empty list clears the schedule.
		err = nil
	}
	if err != nil {
		appLog.Warn("config rejected", "error", err, "skipped", res.Skipped)
		d.report(link.Error, MsgConfigInvalid)
		return
	}
	if res.Skipped > 0 || res.Truncated {
		appLog.Warn("config partly used", "kept", len(res.Events), "skipped", res.Skipped, "truncated", res.Truncated)
	}

	doc, err := eventlist.Marshal(res.Events)
	if err == nil {
		err = d.Events.WriteEvents(doc)
	}
	if err != nil {
		appLog.Error("config write failed", err)
		d.report(link.Error, MsgWriteFailed)
		return
	}
	d.Cache.Invalidate()
	appLog.Info("config saved", "events", len(res.Events), "bytes", len(doc))
	d.report(link.Success, MsgConfigSaved)
}

func (d *Device) applyTime(ctx context.Context, payload []byte, now tick.Tick) {
	unix, err := timesync.ParseClaim(payload)
	if err != nil {
		appLog.Warn("time claim unreadable", "error", err)
		if errors.Is(err, timesync.ErrClaimTooShort) {
			d.report(link.Error, MsgBadTimeFormat)
		} else {
			d.report(link.Error, MsgParseFailed)
		}
		return
	}
	switch err := d.Sync.AcceptClaim(ctx, unix, now); {
	case err == nil:
		d.report(link.Success, MsgTimeSynced)
	case errors.Is(err, timesync.ErrTooOld):
		d.report(link.Error, MsgTimeTooOld)
	default:
		d.report(link.Error, MsgBadTimestamp)
	}
}

func (d *Device) report(code link.Status, msg string) {
	if err := d.Sink.Status(code, msg); err != nil {
		appLog.Debug("status not delivered", "code", code, "msg", msg, "error", err)
	}
}

type wallClock struct {
	at      time.Time
	minutes uint16
	valid   bool
}

func (d *Device) wallMinutes(now tick.Tick) wallClock {
	t, ok := d.Sync.Now(now)
	if !ok {
		return wallClock{}
	}
	t = t.In(d.Location)
	return wallClock{at: t, minutes: uint16(t.Hour()*60 + t.Minute()), valid: true}
}
