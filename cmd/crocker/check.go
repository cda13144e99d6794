package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/urfave/cli"

	"crocker/internal/eventlist"
	"crocker/internal/eventstore"
	"crocker/internal/kvstore"
	"crocker/internal/schedule"
)

var checkFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "events, e",
		Usage: "event-list document to check (default: events_path from config)",
	},
	cli.BoolFlag{
		Name:  "state, s",
		Usage: "also print the persisted settings",
	},
}

func check(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	path := conf.EventsPath
	if v := c.String("events"); v != "" {
		path = v
	}

	data, err := eventstore.NewOS(path).ReadEvents()
	if err != nil {
		return err
	}
	res, err := eventlist.Parse(data, conf.Schedule.Capacity)
	if err != nil {
		return err
	}
	out := c.App.Writer
	printEvents(out, path, res)

	if !c.Bool("state") {
		return nil
	}
	if _, err := os.Stat(conf.StatePath); errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(out, "\nno settings stored at %s\n", conf.StatePath)
		return nil
	}
	ctx := context.Background()
	st, err := kvstore.Open(ctx, conf.StatePath)
	if err != nil {
		return err
	}
	defer st.Close()
	entries, err := st.Entries(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nsettings (%s):\n", conf.StatePath)
	for _, e := range entries {
		fmt.Fprintf(out, "  %-14s %-4s %d\n", e.Key, e.Kind, e.Value)
	}
	return nil
}

func printEvents(out io.Writer, path string, res eventlist.Result) {
	fmt.Fprintf(out, "%s: %d event(s)", path, len(res.Events))
	if res.Skipped > 0 {
		fmt.Fprintf(out, ", %d skipped", res.Skipped)
	}
	if res.Truncated {
		fmt.Fprint(out, ", truncated")
	}
	fmt.Fprintln(out)
	for _, ev := range res.Events {
		fmt.Fprintf(out, "  %s-%s  %5ds  %-31s %s\n",
			schedule.FormatHHMM(int(ev.Start)),
			schedule.FormatHHMM(ev.EndMinute()),
			ev.Duration, ev.Label, ev.Path)
	}
}
