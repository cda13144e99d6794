package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"crocker/internal/errcode"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule.CacheTTL != 60*time.Second || cfg.Queue.Slots != 8 || cfg.TimeSync.DailySync != "0 2 * * *" {
		t.Fatalf("cfg=%+v", cfg)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0o600 {
		t.Fatalf("perm=%v", fi.Mode().Perm())
	}

	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Schedule.CacheTTL != cfg.Schedule.CacheTTL || again.Alarm.LongPause != 500*time.Millisecond {
		t.Fatalf("reloaded cfg=%+v", again)
	}
}

func TestPartialFileIsNormalized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
timezone: UTC
schedule:
  cache_ttl: 30s
  session_policy: revalidate
alarm:
  total_beeps: 6
mqtt:
  broker: tcp://127.0.0.1:1883
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Schedule.CacheTTL != 30*time.Second || cfg.Schedule.Capacity != 16 {
		t.Fatalf("schedule=%+v", cfg.Schedule)
	}
	if cfg.MQTT.TopicPrefix != "crocker" || cfg.Listen != "" {
		t.Fatalf("mqtt=%+v listen=%q", cfg.MQTT, cfg.Listen)
	}
	if p := cfg.AlarmPattern(); p.TotalBeeps != 8 || p.Beep != 100*time.Millisecond {
		t.Fatalf("pattern=%+v", p)
	}
	loc, _ := cfg.Location()
	if loc != time.UTC {
		t.Fatalf("loc=%v", loc)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"timezone": func(c *Config) { c.Timezone = "Mars/Olympus" },
		"policy":   func(c *Config) { c.Schedule.SessionPolicy = "ignore" },
		"range":    func(c *Config) { c.TimeSync.MinUnix = c.TimeSync.MaxUnix },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); errcode.Of(err) != errcode.InvalidConfig {
			t.Errorf("%s: err=%v", name, err)
		}
	}
}

func TestBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	_ = os.WriteFile(path, []byte("schedule: [1, 2"), 0o600)
	if _, err := Load(path); errcode.Of(err) != errcode.InvalidConfig {
		t.Fatalf("err=%v", err)
	}
}
