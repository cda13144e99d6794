// Package inbox is the deferred work queue between the link handler and the
// main loop.
//
// The producer (the transport's receive callback) only copies bytes into
// fixed slots and publishes them; it never blocks, allocates per message or
// touches storage. The consumer (the main loop) drains published slots in
// FIFO order and does the real work. The read and write indices are
// monotonic atomic counters, each written by exactly one side.
package inbox

import (
	"sync/atomic"

	"crocker/internal/errcode"
)

const (
	DefaultSlots    = 8
	DefaultSlotSize = 512
)

var ErrQueueFull = errcode.New(errcode.QueueFull, "inbox.push", "no free slots")

// Kind tags what a slot carries.
type Kind uint8

const (
	// KindConfig is one chunk of an event-list document.
	KindConfig Kind = iota + 1
	// KindTime is a time-claim payload.
	KindTime
	// KindLinkUp marks a new connection.
	KindLinkUp
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTime:
		return "time"
	case KindLinkUp:
		return "link_up"
	}
	return "unknown"
}

// Item is a drained slot. Data aliases the slot and is only valid during the
// Drain callback.
type Item struct {
	Kind  Kind
	Final bool
	Data  []byte
}

type slot struct {
	kind  Kind
	final bool
	n     int
	buf   []byte
}

// Queue is a single-producer, single-consumer ring of fixed-size slots.
type Queue struct {
	slots []slot
	size  int

	rd atomic.Uint32 // consumer index (monotonic)
	wr atomic.Uint32 // producer index (monotonic)

	ready   atomic.Bool
	dropped atomic.Uint32

	readable chan struct{}
}

// New allocates all slot memory up front. Non-positive arguments select
// the defaults; the slot count is rounded up to a power of two so the
// indices stay continuous when they wrap.
func New(slots, slotSize int) *Queue {
	if slots <= 0 {
		slots = DefaultSlots
	}
	for slots&(slots-1) != 0 {
		slots++
	}
	if slotSize <= 0 {
		slotSize = DefaultSlotSize
	}
	q := &Queue{
		slots:    make([]slot, slots),
		size:     slotSize,
		readable: make(chan struct{}, 1),
	}
	for i := range q.slots {
		q.slots[i].buf = make([]byte, slotSize)
	}
	return q
}

func (q *Queue) SlotSize() int { return q.size }
func (q *Queue) Slots() int    { return len(q.slots) }

// Producer side

// Free returns the number of unused slots.
func (q *Queue) Free() int {
	return len(q.slots) - int(q.wr.Load()-q.rd.Load())
}

// PushConfig splits data into slot-sized chunks, marking the last one
// Final. All chunks are reserved together: if they do not all fit, nothing
// is queued, the drop is counted and ErrQueueFull is returned.
func (q *Queue) PushConfig(data []byte) error {
	n := (len(data) + q.size - 1) / q.size
	if n == 0 {
		n = 1
	}
	return q.push(KindConfig, data, n)
}

// PushTime queues a time claim. Payloads longer than a slot are cut.
func (q *Queue) PushTime(data []byte) error {
	if len(data) > q.size {
		data = data[:q.size]
	}
	return q.push(KindTime, data, 1)
}

// PushLinkUp queues a connection event.
func (q *Queue) PushLinkUp() error {
	return q.push(KindLinkUp, nil, 1)
}

func (q *Queue) push(kind Kind, data []byte, n int) error {
	rd := q.rd.Load()
	wr := q.wr.Load()
	if len(q.slots)-int(wr-rd) < n {
		q.dropped.Add(1)
		return ErrQueueFull
	}

	for i := 0; i < n; i++ {
		s := &q.slots[int((wr+uint32(i))%uint32(len(q.slots)))]
		chunk := data
		if len(chunk) > q.size {
			chunk = chunk[:q.size]
		}
		data = data[len(chunk):]
		s.kind = kind
		s.final = i == n-1
		s.n = copy(s.buf, chunk)
	}
	q.wr.Store(wr + uint32(n)) // release
	q.ready.Store(true)

	select {
	case q.readable <- struct{}{}:
	default:
	}
	return nil
}

// Consumer side

// Ready reports whether a push happened since the last drain.
func (q *Queue) Ready() bool { return q.ready.Load() }

// Readable fires, coalesced, after a push.
func (q *Queue) Readable() <-chan struct{} { return q.readable }

// Len returns the number of published, undrained slots.
func (q *Queue) Len() int { return int(q.wr.Load() - q.rd.Load()) }

// Drain hands every published slot to fn in FIFO order and returns how
// many pushes were rejected since the previous drain.
func (q *Queue) Drain(fn func(Item)) (dropped int) {
	q.ready.Store(false)
	rd := q.rd.Load()
	wr := q.wr.Load() // acquire
	for ; rd != wr; rd++ {
		s := &q.slots[int(rd%uint32(len(q.slots)))]
		fn(Item{Kind: s.kind, Final: s.final, Data: s.buf[:s.n]})
		q.rd.Store(rd + 1) // release
	}
	return int(q.dropped.Swap(0))
}
