package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
tail:
  tail_number: N12345
  base_url: https://flights.example/live/flight/
  timeout: 10s
feed:
  driver: twitter
  twitter:
    consumer_key: ck
    consumer_secret: cs
    access_token: at
    access_secret: as
    user_id: "99"
schedule:
  enabled: true
  spec: "*/30 * * * *"
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
  notify:
    enabled: false
    min_level: error
    rate_per_sec: 1
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tail.TailNumber != "N12345" {
		t.Fatalf("tail_number = %q", cfg.Tail.TailNumber)
	}
	if cfg.Feed.Driver != "twitter" || cfg.Feed.Twitter == nil || cfg.Feed.Twitter.UserID != "99" {
		t.Fatalf("feed section mismatch: %+v", cfg.Feed)
	}
	if !cfg.Schedule.Enabled || cfg.Schedule.Spec != "*/30 * * * *" {
		t.Fatalf("schedule mismatch: %+v", cfg.Schedule)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned different pointer after Load")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	body := `{
  "tail": {"tail_number": "N1", "base_url": "https://x.example/f/"},
  "feed": {"driver": "telegram", "telegram": {"token": "t", "chat_id": -100}},
  "schedule": {"enabled": false, "spec": ""},
  "logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}, "notify": {"enabled": false, "min_level": "", "rate_per_sec": 0}}
}`
	m := NewManager(writeConfig(t, "config.json", body))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Feed.Telegram == nil || cfg.Feed.Telegram.ChatID != -100 {
		t.Fatalf("telegram section mismatch: %+v", cfg.Feed.Telegram)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML+"\nbogus_section:\n  x: 1\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json", `{"tail":{"tail_number":"N1","base_url":"https://x.example/"},"feed":{"driver":"telegram","telegram":{"token":"t","chat_id":1}},"schedule":{"enabled":false,"spec":""},"logging":{"level":"","console":false,"file":{"enabled":false,"path":""},"notify":{"enabled":false,"min_level":"","rate_per_sec":0}}}{}`))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	good := func() *Config {
		return &Config{
			Tail: TailConfig{TailNumber: "N12345", BaseURL: "https://flights.example/live/flight/", Timeout: "10s"},
			Feed: FeedConfig{Driver: "twitter", Twitter: &TwitterConfig{
				ConsumerKey: "ck", ConsumerSecret: "cs", AccessToken: "at", AccessSecret: "as", UserID: "99",
			}},
			Schedule: ScheduleConfig{Enabled: true, Spec: "*/30 * * * *", Timezone: "UTC"},
		}
	}
	if err := Validate(good()); err != nil {
		t.Fatalf("Validate(good): %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"missing tail number", func(c *Config) { c.Tail.TailNumber = "" }, "tail.tail_number"},
		{"tail number with slash", func(c *Config) { c.Tail.TailNumber = "N1/history" }, "tail.tail_number"},
		{"missing base url", func(c *Config) { c.Tail.BaseURL = "" }, "tail.base_url"},
		{"base url bad scheme", func(c *Config) { c.Tail.BaseURL = "ftp://x.example/" }, "tail.base_url"},
		{"bad timeout", func(c *Config) { c.Tail.Timeout = "soon" }, "tail.timeout"},
		{"missing feed driver", func(c *Config) { c.Feed.Driver = "" }, "feed.driver"},
		{"unknown feed driver", func(c *Config) { c.Feed.Driver = "mastodon" }, "feed.driver"},
		{"twitter without creds", func(c *Config) { c.Feed.Twitter.AccessSecret = "" }, "feed.twitter.access_secret"},
		{"telegram without token", func(c *Config) {
			c.Feed = FeedConfig{Driver: "telegram", Telegram: &TelegramConfig{ChatID: 5}}
		}, "feed.telegram.token"},
		{"enabled schedule without spec", func(c *Config) { c.Schedule.Spec = " " }, "schedule.spec"},
		{"bad cron expression", func(c *Config) { c.Schedule.Spec = "61 * * * *" }, "schedule.spec"},
		{"bad timezone", func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" }, "schedule.timezone"},
		{"bad jitter", func(c *Config) { c.Schedule.Jitter = "sometimes" }, "schedule.jitter"},
		{"negative queue", func(c *Config) { c.Publish = &PublishConfig{QueueSize: -1} }, "publish.queue_size"},
		{"dynamodb without table", func(c *Config) { c.Storage = &StorageConfig{Driver: "dynamodb"} }, "storage.table"},
		{"unknown storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "redis"} }, "storage.driver"},
		{"alert without recipients", func(c *Config) {
			c.Alert = &AlertConfig{Enabled: true, SES: &SESConfig{From: "bot@example.com"}}
		}, "alert.ses.to"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := good()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantSub)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: d=%v err=%v", d, err)
	}
	if d, err := ParseDurationField("x", " 1m30s "); err != nil || d != 90*time.Second {
		t.Fatalf("trimmed: d=%v err=%v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
	if d, err := ParseDurationOrDefault("x", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default: d=%v err=%v", d, err)
	}
}

func TestSubscribePublish(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a := &Config{Tail: TailConfig{TailNumber: "A"}}
	b := &Config{Tail: TailConfig{TailNumber: "B"}}
	m.publish(a)
	// Buffer full: publishing b must displace a, keeping the newest.
	m.publish(b)

	select {
	case got := <-ch:
		if got != b {
			t.Fatalf("got %q, want newest config", got.Tail.TailNumber)
		}
	default:
		t.Fatal("no config delivered")
	}
}

func TestUnsubscribeCloses(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel still open after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(&Config{})
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Tail: TailConfig{TailNumber: "N1", BaseURL: "https://x.example/"}}
	newCfg := &Config{
		Tail:     TailConfig{TailNumber: "N2", BaseURL: "https://x.example/"},
		Schedule: ScheduleConfig{Enabled: true, Spec: "30m"},
	}
	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := []string{"schedule", "tail"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
}
