package inbox

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"crocker/internal/errcode"
)

func TestChunkingAndReassembly(t *testing.T) {
	q := New(8, 16)
	blob := []byte(strings.Repeat("0123456789", 5)) // 50 bytes -> 4 chunks
	if err := q.PushConfig(blob); err != nil {
		t.Fatal(err)
	}
	if q.Len() != 4 || q.Free() != 4 || !q.Ready() {
		t.Fatalf("len=%d free=%d ready=%v", q.Len(), q.Free(), q.Ready())
	}

	a := NewAssembler(0)
	var got []byte
	var finals int
	q.Drain(func(it Item) {
		if it.Kind != KindConfig {
			t.Fatalf("kind=%s", it.Kind)
		}
		b, done, err := a.Add(it)
		if err != nil {
			t.Fatal(err)
		}
		if done {
			finals++
			got = append([]byte(nil), b...)
		}
	})
	if finals != 1 || !bytes.Equal(got, blob) {
		t.Fatalf("finals=%d got %q", finals, got)
	}
	if q.Ready() || q.Len() != 0 {
		t.Fatal("queue not drained")
	}
}

func TestFIFOAcrossKinds(t *testing.T) {
	q := New(0, 0)
	_ = q.PushLinkUp()
	_ = q.PushTime([]byte("TIME:1735689600"))
	_ = q.PushConfig([]byte(`{"events":[]}`))

	var kinds []Kind
	q.Drain(func(it Item) { kinds = append(kinds, it.Kind) })
	want := []Kind{KindLinkUp, KindTime, KindConfig}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Fatalf("order %v want %v", kinds, want)
	}
}

func TestOverflowRejectsNewest(t *testing.T) {
	q := New(4, 8)
	for i := 0; i < 4; i++ {
		if err := q.PushTime([]byte(fmt.Sprintf("%08d", i))); err != nil {
			t.Fatal(err)
		}
	}
	err := q.PushTime([]byte("99999999"))
	if !errors.Is(err, ErrQueueFull) || errcode.Of(err) != errcode.QueueFull {
		t.Fatalf("err=%v", err)
	}
	var got []string
	q.Drain(func(it Item) { got = append(got, string(it.Data)) })
	if len(got) != 4 || got[0] != "00000000" || got[3] != "00000003" {
		t.Fatalf("queue content %v", got)
	}

	// A multi-chunk blob is refused whole when only part of it would fit.
	_ = q.PushTime([]byte("x"))
	if err := q.PushConfig(make([]byte, 32)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("partial blob queued: len=%d", q.Len())
	}
	if dropped := q.Drain(func(Item) {}); dropped != 1 {
		t.Fatalf("dropped=%d", dropped)
	}
	if dropped := q.Drain(func(Item) {}); dropped != 0 {
		t.Fatalf("drop count not reset: %d", dropped)
	}
}

func TestSlotCountRoundsUp(t *testing.T) {
	if n := New(5, 1).Slots(); n != 8 {
		t.Fatalf("slots=%d", n)
	}
}

func TestEmptyConfigIsOneFinalChunk(t *testing.T) {
	q := New(2, 4)
	_ = q.PushConfig(nil)
	var items []Item
	q.Drain(func(it Item) { items = append(items, it) })
	if len(items) != 1 || !items[0].Final || len(items[0].Data) != 0 {
		t.Fatalf("items=%+v", items)
	}
}

func TestAssemblerOverflow(t *testing.T) {
	a := NewAssembler(10)
	if _, done, _ := a.Add(Item{Kind: KindConfig, Data: []byte("123456")}); done {
		t.Fatal("done before final")
	}
	_, done, err := a.Add(Item{Kind: KindConfig, Final: true, Data: []byte("789012")})
	if done || errcode.Of(err) != errcode.CapacityExceeded {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if a.Pending() != 0 {
		t.Fatal("overflowed blob not discarded")
	}
	b, done, err := a.Add(Item{Kind: KindConfig, Final: true, Data: []byte("ok")})
	if err != nil || !done || string(b) != "ok" {
		t.Fatalf("next blob: %q %v %v", b, done, err)
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	q := New(8, 8)
	const total = 5000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if err := q.PushTime([]byte(fmt.Sprintf("%08d", i))); err != nil {
				time.Sleep(10 * time.Microsecond)
				continue
			}
			i++
		}
	}()

	next := 0
	deadline := time.After(10 * time.Second)
	for next < total {
		select {
		case <-q.Readable():
		case <-time.After(time.Millisecond):
		case <-deadline:
			t.Fatalf("stalled at %d", next)
		}
		q.Drain(func(it Item) {
			if want := fmt.Sprintf("%08d", next); string(it.Data) != want {
				t.Errorf("got %q want %q", it.Data, want)
			}
			next++
		})
	}
	wg.Wait()
}
