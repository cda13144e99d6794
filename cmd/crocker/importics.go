package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"crocker/internal/config"
	"crocker/internal/errcode"
	"crocker/internal/eventlist"
	"crocker/internal/eventstore"
	"crocker/internal/ics"
	appLog "crocker/internal/log"
)

var importFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "url, u",
		Usage: "calendar URL (default: every ics entry in the config)",
	},
	cli.StringFlag{
		Name:  "file, f",
		Usage: "read the calendar from a local .ics file instead",
	},
	cli.StringFlag{
		Name:  "date, d",
		Usage: "day to import as YYYY-MM-DD (default: today in the configured timezone)",
	},
	cli.StringFlag{
		Name:  "out, o",
		Usage: "event-list document to write (default: events_path from config)",
	},
	cli.StringFlag{
		Name:  "cache-dir",
		Usage: "where fetched calendars are cached (default: next to the event list)",
	},
	cli.BoolFlag{
		Name:  "dry-run, n",
		Usage: "print the document instead of writing it",
	},
}

func importICS(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	loc, err := conf.Location()
	if err != nil {
		return err
	}
	day := time.Now().In(loc)
	if v := c.String("date"); v != "" {
		day, err = time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return errcode.Wrap(errcode.ParseError, "import.date", err)
		}
	}
	out := conf.EventsPath
	if v := c.String("out"); v != "" {
		out = v
	}

	parsed, err := loadCalendars(c, conf, out)
	if err != nil {
		return err
	}
	res := ics.Day(parsed, ics.DayConfig{Day: day, Location: loc, Capacity: conf.Schedule.Capacity})
	doc, err := eventlist.Marshal(res.Events)
	if err != nil {
		return err
	}

	w := c.App.Writer
	if c.Bool("dry-run") {
		_, err := w.Write(doc)
		return err
	}
	if err := eventstore.NewOS(out).WriteEvents(doc); err != nil {
		return err
	}
	printEvents(w, out, eventlist.Result{Events: res.Events, Skipped: res.Skipped, Truncated: res.Truncated})
	return nil
}

// loadCalendars reads --file, --url or the configured feeds, in that order
// of preference.
func loadCalendars(c *cli.Context, conf *config.Config, out string) ([]ics.ParsedEvent, error) {
	if path := c.String("file"); path != "" {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ics.ParseICS(ics.Source{ID: filepath.Base(path)}, body)
	}

	var sources []ics.Source
	if u := c.String("url"); u != "" {
		sources = []ics.Source{{ID: "cli", URL: u}}
	} else {
		for _, cal := range conf.ICS {
			sources = append(sources, ics.Source{ID: cal.ID, URL: cal.URL})
		}
	}
	if len(sources) == 0 {
		return nil, errcode.New(errcode.InvalidConfig, "import.sources", "no calendar given and none configured")
	}

	cacheDir := c.String("cache-dir")
	if cacheDir == "" {
		cacheDir = filepath.Join(filepath.Dir(out), "ics-cache")
	}
	fetched, errs := ics.NewFetcher(afero.NewOsFs(), cacheDir).FetchAll(context.Background(), sources)
	if len(fetched) == 0 {
		return nil, fmt.Errorf("import: all %d calendar(s) failed: %v", len(sources), errs)
	}

	var all []ics.ParsedEvent
	for _, res := range fetched {
		evs, err := ics.ParseICS(res.Source, res.Body)
		if err != nil {
			appLog.Warn("calendar skipped", "id", res.Source.ID, "error", err)
			continue
		}
		all = append(all, evs...)
	}
	return all, nil
}
