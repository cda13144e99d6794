package eventlist

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"crocker/internal/errcode"
	"crocker/internal/model"
)

// Validate reports whether ev can be written and read back unchanged.
// The reader has no escape handling and counts braces inside strings, so
// quotes and braces are refused outright.
func Validate(ev model.Event) error {
	const op = "eventlist.validate"
	switch {
	case ev.Start > model.MaxStart:
		return errcode.New(errcode.ParseError, op, fmt.Sprintf("start %d out of range", ev.Start))
	case len(ev.Label) > model.MaxLabelLen:
		return errcode.New(errcode.CapacityExceeded, op, "label too long")
	case len(ev.Path) > model.MaxPathLen:
		return errcode.New(errcode.CapacityExceeded, op, "path too long")
	case strings.ContainsAny(ev.Label, reserved):
		return errcode.New(errcode.ParseError, op, "label contains a reserved character")
	case strings.ContainsAny(ev.Path, reserved):
		return errcode.New(errcode.ParseError, op, "path contains a reserved character")
	}
	return nil
}

const reserved = "\"{}\x00"

// Write serializes events as an event-list document. Every event takes
// exactly five lines:
//
//	{ "start": 420,
//	  "duration": 1800,
//	  "label": "Breakfast",
//	  "path": "/img/breakfast.bin"
//	}
func Write(w io.Writer, events []model.Event) error {
	for _, ev := range events {
		if err := Validate(ev); err != nil {
			return err
		}
	}

	var b bytes.Buffer
	b.WriteString("{\n  \"events\": [")
	for i, ev := range events {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "\n    { \"start\": %d,\n", ev.Start)
		fmt.Fprintf(&b, "      \"duration\": %d,\n", ev.Duration)
		fmt.Fprintf(&b, "      \"label\": \"%s\",\n", ev.Label)
		fmt.Fprintf(&b, "      \"path\": \"%s\"\n", ev.Path)
		b.WriteString("    }")
	}
	if len(events) > 0 {
		b.WriteString("\n  ")
	}
	b.WriteString("]\n}\n")

	_, err := w.Write(b.Bytes())
	return err
}

// Marshal is Write into a fresh buffer. Documents that would not fit the
// reader's input buffer are refused.
func Marshal(events []model.Event) ([]byte, error) {
	var b bytes.Buffer
	if err := Write(&b, events); err != nil {
		return nil, err
	}
	if b.Len() >= MaxInput {
		return nil, errcode.New(errcode.CapacityExceeded, "eventlist.marshal",
			fmt.Sprintf("document is %d bytes", b.Len()))
	}
	return b.Bytes(), nil
}
