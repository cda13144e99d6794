// Package timesync keeps the device's wall-clock estimate without a
// battery-backed clock.
//
// The estimate is the last accepted Unix time plus the monotonic ticks
// elapsed since it was accepted. Claims come from the host over the link and
// are trusted once per connection; after that a claim that would move the
// clock back by more than the tolerance is refused.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crocker/internal/errcode"
	appLog "crocker/internal/log"
	"crocker/internal/tick"
)

// Plausible claim range: 2024-01-01T00:00:00Z to 2030-01-01T00:00:00Z.
const (
	DefaultMinUnix         uint64 = 1704067200
	DefaultMaxUnix         uint64 = 1893456000
	DefaultTolerance              = 120 * time.Second
	DefaultPersistInterval        = 60 * time.Second
)

// Persistence keys.
const (
	KeyUnixTime  = "unix_time"
	KeyTimeValid = "time_valid"
)

var (
	ErrOutOfRange = errcode.New(errcode.TimeClaimRejected, "timesync.claim", "timestamp out of range")
	ErrTooOld     = errcode.New(errcode.TimeClaimRejected, "timesync.claim", "claim is behind the running clock")
)

// Persistence is the typed key-value store the reference pair lives in.
// Missing keys are reported as errcode.StoreAbsent.
type Persistence interface {
	PutUint64(ctx context.Context, key string, v uint64) error
	PutBool(ctx context.Context, key string, v bool) error
	Uint64(ctx context.Context, key string) (uint64, error)
	Bool(ctx context.Context, key string) (bool, error)
}

// Options tunes a Sync. Zero values select the defaults.
type Options struct {
	MinUnix         uint64
	MaxUnix         uint64
	Tolerance       time.Duration
	PersistInterval time.Duration
}

func (o *Options) normalize() {
	if o.MinUnix == 0 {
		o.MinUnix = DefaultMinUnix
	}
	if o.MaxUnix == 0 {
		o.MaxUnix = DefaultMaxUnix
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = DefaultPersistInterval
	}
}

// State is a read-only view of the sync state.
type State struct {
	Valid            bool
	LastAcceptedUnix uint64
	TickAtAcceptance tick.Tick
	FirstSinceLinkUp bool
}

// Sync is not safe for concurrent use.
type Sync struct {
	store Persistence
	opts  Options

	st State

	// anchorMs/anchorTick carry the estimate forward. They are moved up on
	// every persistence refresh so the 32-bit tick never wraps between them.
	anchorMs   uint64
	anchorTick tick.Tick

	lastPersist    tick.Tick
	refreshPending bool
}

// New returns an unsynced clock that will trust the first claim it sees.
func New(store Persistence, opts Options) *Sync {
	opts.normalize()
	return &Sync{store: store, opts: opts, st: State{FirstSinceLinkUp: true}}
}

func (s *Sync) State() State     { return s.st }
func (s *Sync) Options() Options { return s.opts }
func (s *Sync) Valid() bool      { return s.st.Valid }

// InRange reports whether unix lies in the plausible window.
func (s *Sync) InRange(unix uint64) bool {
	return unix >= s.opts.MinUnix && unix <= s.opts.MaxUnix
}

// Estimate returns the current Unix time, or false while unsynced.
func (s *Sync) Estimate(now tick.Tick) (uint64, bool) {
	ms, ok := s.estimateMs(now)
	return ms / 1000, ok
}

// Now is Estimate as a time.Time.
func (s *Sync) Now(now tick.Tick) (time.Time, bool) {
	ms, ok := s.estimateMs(now)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)), true
}

func (s *Sync) estimateMs(now tick.Tick) (uint64, bool) {
	if !s.st.Valid {
		return 0, false
	}
	return s.anchorMs + uint64(now.Ms(s.anchorTick)), true
}

// LinkUp marks a new connection; the next claim is accepted without a drift
// check.
func (s *Sync) LinkUp() {
	s.st.FirstSinceLinkUp = true
}

// AcceptClaim applies a host time claim. A rejected claim leaves the state
// unchanged and returns an errcode.TimeClaimRejected error.
func (s *Sync) AcceptClaim(ctx context.Context, candidate uint64, now tick.Tick) error {
	if !s.InRange(candidate) {
		appLog.Warn("time claim out of range", "claim", candidate)
		return ErrOutOfRange
	}

	switch {
	case s.st.FirstSinceLinkUp:
		appLog.Info("time claim accepted: first since link up", "claim", candidate)
	case s.st.Valid:
		est, _ := s.Estimate(now)
		drift := int64(candidate) - int64(est)
		tol := int64(s.opts.Tolerance / time.Second)
		if drift <= -tol {
			appLog.Warn("time claim rejected: behind running clock", "claim", candidate, "drift_s", drift)
			return fmt.Errorf("%w (%ds)", ErrTooOld, drift)
		}
		appLog.Info("time claim accepted", "claim", candidate, "drift_s", drift)
	default:
		appLog.Info("time claim accepted: clock unsynced", "claim", candidate)
	}

	s.st = State{
		Valid:            true,
		LastAcceptedUnix: candidate,
		TickAtAcceptance: now,
	}
	s.anchorMs = candidate * 1000
	s.anchorTick = now
	s.refreshPending = true
	s.persist(ctx, candidate, now)
	return nil
}

// Restore seeds the clock from the persisted pair. The restored time is
// taken as the time at boot; the gap while powered off is unknown.
func (s *Sync) Restore(ctx context.Context, now tick.Tick) bool {
	valid, err := s.store.Bool(ctx, KeyTimeValid)
	if err != nil || !valid {
		appLog.Info("no persisted time", "err", err)
		return false
	}
	unix, err := s.store.Uint64(ctx, KeyUnixTime)
	if err != nil {
		appLog.Info("no persisted time", "err", err)
		return false
	}
	if !s.InRange(unix) {
		appLog.Warn("persisted time out of range", "unix", unix)
		return false
	}

	first := s.st.FirstSinceLinkUp
	s.st = State{
		Valid:            true,
		LastAcceptedUnix: unix,
		TickAtAcceptance: now,
		FirstSinceLinkUp: first,
	}
	s.anchorMs = unix * 1000
	s.anchorTick = now
	s.lastPersist = now
	s.refreshPending = true
	appLog.Info("time restored", "unix", unix, "at", time.Unix(int64(unix), 0).UTC().Format(time.RFC3339))
	return true
}

// RefreshPersistence writes the running estimate once per persist interval.
func (s *Sync) RefreshPersistence(ctx context.Context, now tick.Tick) {
	if !s.st.Valid || now.Sub(s.lastPersist) < s.opts.PersistInterval {
		return
	}
	ms, _ := s.estimateMs(now)
	s.anchorMs = ms
	s.anchorTick = now
	s.persist(ctx, ms/1000, now)
}

// TakeRefresh reports, once, that the displayed time should be redrawn.
func (s *Sync) TakeRefresh() bool {
	r := s.refreshPending
	s.refreshPending = false
	return r
}

func (s *Sync) persist(ctx context.Context, unix uint64, now tick.Tick) {
	s.lastPersist = now
	err := errors.Join(
		s.store.PutUint64(ctx, KeyUnixTime, unix),
		s.store.PutBool(ctx, KeyTimeValid, true),
	)
	if err != nil {
		appLog.Error("time persist failed", err, "unix", unix)
		return
	}
	appLog.Debug("time persisted", "unix", unix)
}
