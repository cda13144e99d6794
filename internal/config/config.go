package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"crocker/internal/alarm"
	"crocker/internal/errcode"
	"crocker/internal/inbox"
	"crocker/internal/mqttlink"
	"crocker/internal/schedule"
	"crocker/internal/timer"
	"crocker/internal/timesync"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	DefaultPath       = "/etc/crocker/config.yaml"
	DefaultEventsPath = "/var/lib/crocker/duration.json"
	DefaultStatePath  = "/var/lib/crocker/state.db"
)

// ICSConfig describes a calendar the import command can pull a day from.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for logging and the fetch cache.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the status API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type ScheduleConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	Capacity int           `yaml:"capacity" json:"capacity"`
	// SessionPolicy says what a running countdown does when the schedule
	// changes under it: "finish", "cancel" or "revalidate".
	SessionPolicy string `yaml:"session_policy" json:"session_policy"`
}

type AlarmConfig struct {
	Beep       time.Duration `yaml:"beep" json:"beep"`
	ShortPause time.Duration `yaml:"short_pause" json:"short_pause"`
	LongPause  time.Duration `yaml:"long_pause" json:"long_pause"`
	TotalBeeps int           `yaml:"total_beeps" json:"total_beeps"`
	// BuzzerPin is a periph.io pin name such as "GPIO18". Empty runs silent.
	BuzzerPin string `yaml:"buzzer_pin" json:"buzzer_pin"`
}

type TimeSyncConfig struct {
	MinUnix         uint64        `yaml:"min_unix" json:"min_unix"`
	MaxUnix         uint64        `yaml:"max_unix" json:"max_unix"`
	Tolerance       time.Duration `yaml:"tolerance" json:"tolerance"`
	PersistInterval time.Duration `yaml:"persist_interval" json:"persist_interval"`
	// DailySync is a standard 5-field cron spec for the schedule-sync
	// request, evaluated in Timezone.
	DailySync   string        `yaml:"daily_sync" json:"daily_sync"`
	DailyWindow time.Duration `yaml:"daily_window" json:"daily_window"`
}

type QueueConfig struct {
	Slots    int `yaml:"slots" json:"slots"`
	SlotSize int `yaml:"slot_size" json:"slot_size"`
}

// MQTTConfig points at the broker standing in for the wireless link. An
// empty Broker disables the link.
type MQTTConfig struct {
	Broker      string `yaml:"broker" json:"broker"`
	ClientID    string `yaml:"client_id" json:"client_id"`
	TopicPrefix string `yaml:"topic_prefix" json:"topic_prefix"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone the schedule's minutes-of-day are read in.
	Timezone string `yaml:"timezone" json:"timezone"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// EventsPath is the event-list document; StatePath the settings database.
	EventsPath string `yaml:"events_path" json:"events_path"`
	StatePath  string `yaml:"state_path" json:"state_path"`

	LoopInterval time.Duration `yaml:"loop_interval" json:"loop_interval"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Alarm    AlarmConfig    `yaml:"alarm" json:"alarm"`
	TimeSync TimeSyncConfig `yaml:"time_sync" json:"time_sync"`
	Queue    QueueConfig    `yaml:"queue" json:"queue"`
	MQTT     MQTTConfig     `yaml:"mqtt" json:"mqtt"`

	// ICS lists calendars for the import command.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	p := alarm.DefaultPattern()
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "Local",
		LogLevel:     "info",
		EventsPath:   DefaultEventsPath,
		StatePath:    DefaultStatePath,
		LoopInterval: 5 * time.Millisecond,
		Schedule: ScheduleConfig{
			CacheTTL:      schedule.DefaultTTL,
			Capacity:      schedule.DefaultCapacity,
			SessionPolicy: string(timer.PolicyFinish),
		},
		Alarm: AlarmConfig{
			Beep:       p.Beep,
			ShortPause: p.ShortPause,
			LongPause:  p.LongPause,
			TotalBeeps: p.TotalBeeps,
		},
		TimeSync: TimeSyncConfig{
			MinUnix:         timesync.DefaultMinUnix,
			MaxUnix:         timesync.DefaultMaxUnix,
			Tolerance:       timesync.DefaultTolerance,
			PersistInterval: timesync.DefaultPersistInterval,
			DailySync:       timesync.DefaultDailySpec,
			DailyWindow:     timesync.DefaultDailyWindow,
		},
		Queue: QueueConfig{
			Slots:    inbox.DefaultSlots,
			SlotSize: inbox.DefaultSlotSize,
		},
		MQTT: MQTTConfig{
			TopicPrefix: mqttlink.DefaultTopicPrefix,
		},
		ICS: []ICSConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.EventsPath == "" {
		c.EventsPath = d.EventsPath
	}
	if c.StatePath == "" {
		c.StatePath = d.StatePath
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = d.LoopInterval
	}

	if c.Schedule.CacheTTL <= 0 {
		c.Schedule.CacheTTL = d.Schedule.CacheTTL
	}
	if c.Schedule.Capacity <= 0 {
		c.Schedule.Capacity = d.Schedule.Capacity
	}
	if c.Schedule.SessionPolicy == "" {
		c.Schedule.SessionPolicy = d.Schedule.SessionPolicy
	}

	if c.Alarm.Beep <= 0 {
		c.Alarm.Beep = d.Alarm.Beep
	}
	if c.Alarm.ShortPause <= 0 {
		c.Alarm.ShortPause = d.Alarm.ShortPause
	}
	if c.Alarm.LongPause <= 0 {
		c.Alarm.LongPause = d.Alarm.LongPause
	}
	if c.Alarm.TotalBeeps <= 0 {
		c.Alarm.TotalBeeps = d.Alarm.TotalBeeps
	}

	ts := &c.TimeSync
	if ts.MinUnix == 0 {
		ts.MinUnix = d.TimeSync.MinUnix
	}
	if ts.MaxUnix == 0 {
		ts.MaxUnix = d.TimeSync.MaxUnix
	}
	if ts.Tolerance <= 0 {
		ts.Tolerance = d.TimeSync.Tolerance
	}
	if ts.PersistInterval <= 0 {
		ts.PersistInterval = d.TimeSync.PersistInterval
	}
	if ts.DailySync == "" {
		ts.DailySync = d.TimeSync.DailySync
	}
	if ts.DailyWindow <= 0 {
		ts.DailyWindow = d.TimeSync.DailyWindow
	}

	if c.Queue.Slots <= 0 {
		c.Queue.Slots = d.Queue.Slots
	}
	if c.Queue.SlotSize <= 0 {
		c.Queue.SlotSize = d.Queue.SlotSize
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = d.MQTT.TopicPrefix
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate reports settings that have no sensible fallback.
func (c *Config) Validate() error {
	const op = "config.validate"
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := timer.ParsePolicy(c.Schedule.SessionPolicy); err != nil {
		return err
	}
	if c.TimeSync.MinUnix >= c.TimeSync.MaxUnix {
		return errcode.New(errcode.InvalidConfig, op,
			fmt.Sprintf("time_sync.min_unix %d is not below max_unix %d", c.TimeSync.MinUnix, c.TimeSync.MaxUnix))
	}
	if c.Schedule.Capacity > 256 {
		return errcode.New(errcode.InvalidConfig, op, "schedule.capacity above 256")
	}
	return nil
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "config.timezone", err)
	}
	return loc, nil
}

// AlarmPattern converts the alarm section.
func (c *Config) AlarmPattern() alarm.Pattern {
	p := alarm.Pattern{
		Beep:       c.Alarm.Beep,
		ShortPause: c.Alarm.ShortPause,
		LongPause:  c.Alarm.LongPause,
		TotalBeeps: c.Alarm.TotalBeeps,
	}
	p.Normalize()
	return p
}

// TimeSyncOptions converts the time_sync section.
func (c *Config) TimeSyncOptions() timesync.Options {
	return timesync.Options{
		MinUnix:         c.TimeSync.MinUnix,
		MaxUnix:         c.TimeSync.MaxUnix,
		Tolerance:       c.TimeSync.Tolerance,
		PersistInterval: c.TimeSync.PersistInterval,
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errcode.New(errcode.InvalidConfig, "config.load", "config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "config.load", err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errcode.New(errcode.InvalidConfig, "config.save", "config path is empty")
	}
	if cfg == nil {
		return errcode.New(errcode.InvalidConfig, "config.save", "config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".crocker-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
