package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crocker/internal/config"
	"crocker/internal/eventlist"
	"crocker/internal/model"
)

const oneDay = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//crocker//test//EN
BEGIN:VEVENT
UID:walk
DTSTAMP:20250101T000000Z
DTSTART:20250107T073000Z
DTEND:20250107T080000Z
SUMMARY:Walk
END:VEVENT
BEGIN:VEVENT
UID:nap
DTSTAMP:20250101T000000Z
DTSTART:20250107T130000Z
DTEND:20250107T134500Z
SUMMARY:Nap
END:VEVENT
END:VCALENDAR
`

type env struct {
	dir    string
	config string
	events string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir:    dir,
		config: filepath.Join(dir, "config.yaml"),
		events: filepath.Join(dir, "duration.json"),
	}
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.EventsPath = e.events
	cfg.StatePath = filepath.Join(dir, "state.db")
	if err := config.Save(e.config, cfg); err != nil {
		t.Fatal(err)
	}
	return e
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"crocker", "--config", e.config}, args...))
	return out.String(), err
}

func TestCheckPrintsEvents(t *testing.T) {
	e := newEnv(t)
	doc, err := eventlist.Marshal([]model.Event{
		{Start: 420, Duration: 1800, Label: "Breakfast", Path: "/img/b.bin"},
		{Start: 720, Duration: 3600, Label: "Lunch"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(e.events, doc, 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := e.run(t, "check", "--state")
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	for _, want := range []string{"2 event(s)", "07:00-07:30", "Breakfast", "12:00-13:00", "no settings stored"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCheckCreatesDefaultDocument(t *testing.T) {
	e := newEnv(t)
	if _, err := e.run(t, "check"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(e.events); err != nil {
		t.Fatalf("default document not created: %v", err)
	}
}

func TestImportFromFile(t *testing.T) {
	e := newEnv(t)
	cal := filepath.Join(e.dir, "day.ics")
	if err := os.WriteFile(cal, []byte(strings.ReplaceAll(oneDay, "\n", "\r\n")), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := e.run(t, "import-ics", "--file", cal, "--date", "2025-01-07")
	if err != nil {
		t.Fatalf("import: %v\n%s", err, out)
	}
	data, err := os.ReadFile(e.events)
	if err != nil {
		t.Fatal(err)
	}
	res, err := eventlist.Parse(data, 16)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Event{
		{Start: 450, Duration: 1800, Label: "Walk"},
		{Start: 780, Duration: 2700, Label: "Nap"},
	}
	if len(res.Events) != len(want) {
		t.Fatalf("events=%+v", res.Events)
	}
	for i := range want {
		if res.Events[i] != want[i] {
			t.Errorf("event %d = %+v want %+v", i, res.Events[i], want[i])
		}
	}
}

func TestImportDryRunLeavesDocument(t *testing.T) {
	e := newEnv(t)
	cal := filepath.Join(e.dir, "day.ics")
	if err := os.WriteFile(cal, []byte(strings.ReplaceAll(oneDay, "\n", "\r\n")), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := e.run(t, "import-ics", "-f", cal, "-d", "2025-01-07", "--dry-run")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"Walk"`) {
		t.Fatalf("dry run output:\n%s", out)
	}
	if _, err := os.Stat(e.events); !os.IsNotExist(err) {
		t.Fatalf("dry run wrote the document: %v", err)
	}
}

func TestImportNeedsASource(t *testing.T) {
	e := newEnv(t)
	if _, err := e.run(t, "import-ics", "--date", "2025-01-07"); err == nil {
		t.Fatal("expected error without calendars")
	}
}

func TestParseOnOff(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "OFF": false, " true ": true, "0": false} {
		got, err := parseOnOff(in)
		if err != nil || got != want {
			t.Errorf("parseOnOff(%q)=%v,%v", in, got, err)
		}
	}
	if _, err := parseOnOff("maybe"); err == nil {
		t.Fatal("expected error")
	}
}
