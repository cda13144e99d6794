package eventlist

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"crocker/internal/errcode"
	"crocker/internal/model"
)

func TestRoundTrip(t *testing.T) {
	in := []model.Event{
		{Start: 420, Duration: 1800, Label: "Breakfast", Path: "/img/breakfast.bin"},
		{Start: 421, Duration: 0, Label: "", Path: ""},
		{Start: 1439, Duration: 65535, Label: strings.Repeat("x", 31), Path: `C:\img\odd [1].bin`},
		{Start: 0, Duration: 59, Label: "start: 5, path: x", Path: "p"},
	}
	doc, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	res, err := Parse(doc, 16)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, doc)
	}
	if len(res.Events) != len(in) {
		t.Fatalf("round trip lost records: %d of %d\n%s", len(res.Events), len(in), doc)
	}
	for i := range in {
		if res.Events[i] != in[i] {
			t.Errorf("record %d: got %+v want %+v", i, res.Events[i], in[i])
		}
	}
}

func TestWriteFiveLinesPerEvent(t *testing.T) {
	one, _ := Marshal([]model.Event{{Start: 1, Duration: 60, Label: "a", Path: "p"}})
	two, _ := Marshal([]model.Event{
		{Start: 1, Duration: 60, Label: "a", Path: "p"},
		{Start: 2, Duration: 60, Label: "b", Path: "q"},
	})
	if d := bytes.Count(two, []byte("\n")) - bytes.Count(one, []byte("\n")); d != 5 {
		t.Fatalf("second event added %d lines, want 5\n%s", d, two)
	}
}

func TestWriteEmpty(t *testing.T) {
	doc, err := Marshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc) != "{\n  \"events\": []\n}\n" {
		t.Fatalf("empty doc = %q", doc)
	}
	res, err := Parse(doc, 16)
	if !errors.Is(err, ErrNoRecords) {
		t.Fatalf("empty doc should parse to ErrNoRecords, got %v", err)
	}
	if !IsEmpty(res, err) {
		t.Fatalf("canonical empty doc not recognised as empty: %+v", res)
	}
}

func TestWriteRejectsUnrepresentable(t *testing.T) {
	cases := []struct {
		ev   model.Event
		code errcode.Code
	}{
		{model.Event{Start: 1440}, errcode.ParseError},
		{model.Event{Label: `say "hi"`}, errcode.ParseError},
		{model.Event{Path: `a"b`}, errcode.ParseError},
		{model.Event{Label: "brace } in label"}, errcode.ParseError},
		{model.Event{Label: strings.Repeat("a", 32)}, errcode.CapacityExceeded},
		{model.Event{Path: strings.Repeat("a", 32)}, errcode.CapacityExceeded},
	}
	for _, tc := range cases {
		_, err := Marshal([]model.Event{tc.ev})
		if errcode.Of(err) != tc.code {
			t.Errorf("%+v: code=%s want %s", tc.ev, errcode.Of(err), tc.code)
		}
	}
}
