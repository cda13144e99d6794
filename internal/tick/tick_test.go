package tick

import (
	"testing"
	"time"
)

func TestSubAcrossWrap(t *testing.T) {
	before := Tick(0xFFFF_FF00)
	after := before.Add(1000 * time.Millisecond)
	if after > before {
		t.Fatalf("expected counter to wrap, got %d", after)
	}
	if got := after.Sub(before); got != time.Second {
		t.Fatalf("Sub across wrap = %v, want 1s", got)
	}
	if got := after.Ms(before); got != 1000 {
		t.Fatalf("Ms across wrap = %d", got)
	}
}

func TestManual(t *testing.T) {
	m := NewManual(10)
	if m.Now() != 10 {
		t.Fatalf("Now=%d", m.Now())
	}
	if got := m.Advance(250 * time.Millisecond); got != 260 {
		t.Fatalf("Advance=%d", got)
	}
	m.Set(5)
	if m.Now() != 5 {
		t.Fatalf("Set/Now=%d", m.Now())
	}
}
