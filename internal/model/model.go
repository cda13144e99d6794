package model

// Field capacities of an event record. Strings are byte-limited, mirroring
// the fixed 32-byte buffers (31 chars + terminator) of the device format.
const (
	MaxLabelLen   = 31
	MaxPathLen    = 31
	MinutesPerDay = 1440
	MaxStart      = MinutesPerDay - 1
)

// Event is one scheduled activity within a single 24-hour day.
//
// Start is minutes since local midnight (0–1439). Duration is in seconds;
// a zero duration is accepted but never active.
type Event struct {
	Start    uint16
	Duration uint16
	Label    string
	Path     string
}

// EndMinute is the first minute after the event window. The window is
// start ≤ now < start + duration/60, so sub-minute durations never match.
func (e Event) EndMinute() int {
	return int(e.Start) + int(e.Duration)/60
}

// ActiveAt reports whether the event window contains minute m.
func (e Event) ActiveAt(m uint16) bool {
	return int(m) >= int(e.Start) && int(m) < e.EndMinute()
}
