// Package eventlist reads and writes the device's event-list document: a
// small JSON-shaped blob of the form {"events": [{...}, ...]} holding up to a
// fixed number of records.
//
// The reader is not a JSON parser. It scans a bounded byte view for the
// "events" array, cuts each balanced {...} span into a fixed scratch buffer
// and pulls the four known fields out of it independently, so field order
// and unknown keys do not matter. A malformed record is skipped, never fatal.
package eventlist

import (
	"bytes"
	"errors"
	"math"

	"crocker/internal/errcode"
	"crocker/internal/model"
)

const (
	// MaxInput is the size of the read buffer including its terminator;
	// at most MaxInput-1 bytes of a document are ever examined.
	MaxInput = 4096

	// ObjectScratch bounds one event object. Longer objects are truncated
	// to ObjectScratch-1 bytes before field extraction.
	ObjectScratch = 256
)

var (
	ErrNoEventsArray = errcode.New(errcode.ParseError, "eventlist.parse", `missing "events" array`)
	ErrNoRecords     = errcode.New(errcode.ParseError, "eventlist.parse", "no valid event records")
)

var (
	markerEvents = []byte(`"events"`)
	keyStart     = []byte(`"start"`)
	keyDuration  = []byte(`"duration"`)
	keyLabel     = []byte(`"label"`)
	keyPath      = []byte(`"path"`)
)

// Result is the outcome of a Parse call.
type Result struct {
	Events []model.Event
	// Skipped counts objects that were found but rejected.
	Skipped int
	// Truncated is set when more objects followed after capacity was reached.
	Truncated bool

	// closed is set when the scan stopped at the array's closing ']'.
	closed bool
}

// Parse extracts up to capacity records from data.
//
// It fails with ErrNoEventsArray when the "events" marker or its opening
// bracket is missing, and with ErrNoRecords when no record parses. In the
// latter case the returned Result still carries the Skipped count.
func Parse(data []byte, capacity int) (Result, error) {
	var res Result

	view := data
	if len(view) > MaxInput-1 {
		view = view[:MaxInput-1]
	}
	if i := bytes.IndexByte(view, 0); i >= 0 {
		view = view[:i]
	}

	c := cursor{buf: view}
	if !c.seek(markerEvents) || !c.seekByte('[') {
		return res, ErrNoEventsArray
	}
	c.advance()

	if capacity > 0 {
		res.Events = make([]model.Event, 0, capacity)
	}

	var scratch [ObjectScratch]byte
	for !c.eof() && len(res.Events) < capacity {
		if !c.nextObject() {
			break
		}
		start := c.pos
		end, ok := c.balancedObject()
		if !ok {
			res.Skipped++
			break
		}
		n := copy(scratch[:ObjectScratch-1], view[start:end+1])
		if ev, ok := parseObject(scratch[:n]); ok {
			res.Events = append(res.Events, ev)
		} else {
			res.Skipped++
		}
	}

	res.closed = c.peek() == ']'

	if len(res.Events) == capacity && capacity > 0 && c.nextObject() {
		res.Truncated = true
	}

	if len(res.Events) == 0 {
		return res, ErrNoRecords
	}
	return res, nil
}

// IsEmpty reports whether a Parse outcome is a complete document with an
// empty events array, as opposed to one whose records were all rejected or
// that ended early.
func IsEmpty(res Result, err error) bool {
	return errors.Is(err, ErrNoRecords) && res.Skipped == 0 && res.closed
}

func parseObject(obj []byte) (model.Event, bool) {
	start, ok1 := extractUint(obj, keyStart)
	duration, ok2 := extractUint(obj, keyDuration)
	label, ok3 := extractString(obj, keyLabel, model.MaxLabelLen)
	path, ok4 := extractString(obj, keyPath, model.MaxPathLen)
	if !(ok1 && ok2 && ok3 && ok4) {
		return model.Event{}, false
	}
	if start > model.MaxStart || duration > math.MaxUint16 {
		return model.Event{}, false
	}
	return model.Event{
		Start:    uint16(start),
		Duration: uint16(duration),
		Label:    label,
		Path:     path,
	}, true
}

// locateValue positions a cursor on the first byte of key's value within
// obj, i.e. after `"key"`, separators, ':' and separators again.
func locateValue(obj, key []byte) (cursor, bool) {
	i := bytes.Index(obj, key)
	if i < 0 {
		return cursor{}, false
	}
	c := cursor{buf: obj, pos: i + len(key)}
	c.skipSeparators()
	if c.peek() != ':' {
		return cursor{}, false
	}
	c.advance()
	c.skipSeparators()
	return c, true
}

func extractUint(obj, key []byte) (uint32, bool) {
	c, ok := locateValue(obj, key)
	if !ok || !isDigit(c.peek()) {
		return 0, false
	}
	var v uint64
	for isDigit(c.peek()) {
		v = v*10 + uint64(c.peek()-'0')
		if v > math.MaxUint32 {
			return 0, false
		}
		c.advance()
	}
	return uint32(v), true
}

func extractString(obj, key []byte, maxLen int) (string, bool) {
	c, ok := locateValue(obj, key)
	if !ok || c.peek() != '"' {
		return "", false
	}
	c.advance()
	from := c.pos
	for !c.eof() && c.peek() != '"' {
		if c.pos-from >= maxLen {
			return "", false
		}
		c.advance()
	}
	if c.eof() {
		return "", false
	}
	return string(obj[from:c.pos]), true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isSeparator(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f', ',':
		return true
	}
	return false
}
