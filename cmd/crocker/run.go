package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"crocker/internal/alarm"
	"crocker/internal/config"
	"crocker/internal/device"
	"crocker/internal/display"
	"crocker/internal/errcode"
	"crocker/internal/eventstore"
	"crocker/internal/inbox"
	"crocker/internal/kvstore"
	"crocker/internal/link"
	appLog "crocker/internal/log"
	"crocker/internal/mqttlink"
	"crocker/internal/schedule"
	"crocker/internal/tick"
	"crocker/internal/timer"
	"crocker/internal/timesync"
	"crocker/internal/web"
)

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "listen, l",
		Usage: "HTTP listen address (overrides config if set)",
	},
	cli.StringFlag{
		Name:  "broker, b",
		Usage: "MQTT broker URL (overrides config if set)",
	},
	cli.IntFlag{
		Name:  "brightness",
		Usage: "set and persist the panel brightness (0-255) at boot",
	},
	cli.StringFlag{
		Name:  "alarm",
		Usage: `set and persist the alarm at boot: "on" or "off"`,
	},
}

func run(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	if v := c.String("listen"); v != "" {
		conf.Listen = v
	}
	if v := c.String("broker"); v != "" {
		conf.MQTT.Broker = v
	}

	appLog.Info("crocker starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"events_path", conf.EventsPath,
		"state_path", conf.StatePath,
		"session_policy", conf.Schedule.SessionPolicy,
		"daily_sync", conf.TimeSync.DailySync,
		"broker_set", conf.MQTT.Broker != "",
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	settings, err := kvstore.Open(ctx, conf.StatePath)
	if err != nil {
		return err
	}
	defer settings.Close()

	dev, closeLink, err := build(ctx, conf, settings)
	if err != nil {
		return err
	}
	defer closeLink()

	dev.Boot(ctx)
	if c.IsSet("brightness") {
		b := c.Int("brightness")
		if b < 0 || b > 255 {
			return errcode.New(errcode.InvalidConfig, "run.brightness", "brightness must be 0-255")
		}
		if err := dev.SetBrightness(ctx, uint8(b)); err != nil {
			return err
		}
	}
	if v := c.String("alarm"); v != "" {
		on, err := parseOnOff(v)
		if err != nil {
			return err
		}
		if err := dev.SetAlarmEnabled(ctx, on); err != nil {
			return err
		}
	}

	if conf.Listen != "" {
		go func() {
			if err := web.Serve(ctx, conf, dev); err != nil {
				appLog.Error("HTTP server failed", err, "listen", conf.Listen)
				cancel()
			}
		}()
	}

	err = dev.Run(ctx)
	// Give the HTTP server a moment to finish its graceful shutdown.
	time.Sleep(100 * time.Millisecond)
	appLog.Info("crocker exiting")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// build wires the device from conf. The returned func closes the link.
func build(ctx context.Context, conf *config.Config, settings *kvstore.Store) (*device.Device, func(), error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, nil, err
	}
	policy, err := timer.ParsePolicy(conf.Schedule.SessionPolicy)
	if err != nil {
		return nil, nil, err
	}
	daily, err := timesync.NewDaily(conf.TimeSync.DailySync, conf.TimeSync.DailyWindow)
	if err != nil {
		return nil, nil, err
	}

	events := eventstore.NewOS(conf.EventsPath)
	queue := inbox.New(conf.Queue.Slots, conf.Queue.SlotSize)

	var sink link.Sink = link.Nop{}
	closeLink := func() {}
	if conf.MQTT.Broker != "" {
		l, err := mqttlink.New(mqttlink.Options{
			Broker:      conf.MQTT.Broker,
			ClientID:    conf.MQTT.ClientID,
			TopicPrefix: conf.MQTT.TopicPrefix,
		}, queue)
		if err != nil {
			return nil, nil, err
		}
		// The client keeps retrying in the background; the device runs
		// offline until it connects.
		if err := l.Connect(ctx); err != nil {
			appLog.Warn("mqtt connect failed; retrying in background", "error", err)
		}
		sink = l
		closeLink = l.Close
	} else {
		appLog.Info("no mqtt broker configured; link disabled")
	}

	dev := device.New(device.Deps{
		Clock:  tick.NewSystem(),
		Queue:  queue,
		Events: events,
		Cache: schedule.New(events, schedule.Options{
			TTL:      conf.Schedule.CacheTTL,
			Capacity: conf.Schedule.Capacity,
		}),
		Alarm:    alarm.New(alarm.OpenPin(conf.Alarm.BuzzerPin), conf.AlarmPattern()),
		Sync:     timesync.New(settings, conf.TimeSyncOptions()),
		Daily:    daily,
		Settings: settings,
		Sink:     sink,
		Screen:   display.New(),
		Policy:   policy,
		Location: loc,
		Interval: conf.LoopInterval,
		Capacity: conf.Schedule.Capacity,
	})
	return dev, closeLink, nil
}

func parseOnOff(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, errcode.New(errcode.InvalidConfig, "run.alarm", `alarm must be "on" or "off"`)
}
