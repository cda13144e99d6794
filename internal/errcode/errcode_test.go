package errcode

import (
	"errors"
	"fmt"
	"testing"
)

func TestOf(t *testing.T) {
	wrapped := fmt.Errorf("reload: %w", New(StoreAbsent, "eventstore.read", "no card"))
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, OK},
		{"bare code", QueueFull, QueueFull},
		{"wrapped E", wrapped, StoreAbsent},
		{"foreign", errors.New("x"), Error},
	}
	for _, tc := range cases {
		if got := Of(tc.err); got != tc.want {
			t.Errorf("%s: Of=%q want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsMatchesCode(t *testing.T) {
	cause := errors.New("disk gone")
	err := Wrap(StoreAbsent, "read", cause)
	if !errors.Is(err, StoreAbsent) {
		t.Fatal("errors.Is should match the code")
	}
	if !errors.Is(err, cause) {
		t.Fatal("errors.Is should reach the cause")
	}
	if errors.Is(err, ParseError) {
		t.Fatal("unexpected match on a different code")
	}
	if got := err.Error(); got != "read: store_absent: disk gone" {
		t.Fatalf("Error()=%q", got)
	}
}
