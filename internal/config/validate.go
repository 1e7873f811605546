package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"tailbot/internal/scheduler"
)

// Validate checks cross-field constraints that the strict decoder cannot.
// It is installed as the manager's validator so a bad edit never replaces a
// good running config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if err := validateTail(&cfg.Tail); err != nil {
		return err
	}
	if err := validateFeed(&cfg.Feed); err != nil {
		return err
	}
	if err := validateSchedule(&cfg.Schedule); err != nil {
		return err
	}
	if err := validatePublish(cfg.Publish); err != nil {
		return err
	}
	if err := validateStorage(cfg.Storage); err != nil {
		return err
	}
	if err := validateAlert(cfg.Alert); err != nil {
		return err
	}
	if cfg.Logging.Notify.RatePerSec < 0 {
		return fmt.Errorf("logging.notify.rate_per_sec: must be >= 0")
	}
	return nil
}

func validateTail(t *TailConfig) error {
	tn := strings.TrimSpace(t.TailNumber)
	if tn == "" {
		return fmt.Errorf("tail.tail_number: required")
	}
	if strings.ContainsAny(tn, " \t/") {
		return fmt.Errorf("tail.tail_number: %q contains separator characters", t.TailNumber)
	}
	base := strings.TrimSpace(t.BaseURL)
	if base == "" {
		return fmt.Errorf("tail.base_url: required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("tail.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("tail.base_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("tail.base_url: missing host")
	}
	if _, err := ParseDurationField("tail.timeout", t.Timeout); err != nil {
		return err
	}
	return nil
}

func validateFeed(f *FeedConfig) error {
	switch strings.ToLower(strings.TrimSpace(f.Driver)) {
	case "twitter":
		tw := f.Twitter
		if tw == nil {
			return fmt.Errorf("feed.twitter: section required for driver twitter")
		}
		for _, kv := range []struct{ k, v string }{
			{"consumer_key", tw.ConsumerKey},
			{"consumer_secret", tw.ConsumerSecret},
			{"access_token", tw.AccessToken},
			{"access_secret", tw.AccessSecret},
			{"user_id", tw.UserID},
		} {
			if strings.TrimSpace(kv.v) == "" {
				return fmt.Errorf("feed.twitter.%s: required", kv.k)
			}
		}
	case "telegram":
		tg := f.Telegram
		if tg == nil {
			return fmt.Errorf("feed.telegram: section required for driver telegram")
		}
		if strings.TrimSpace(tg.Token) == "" {
			return fmt.Errorf("feed.telegram.token: required")
		}
		if tg.ChatID == 0 {
			return fmt.Errorf("feed.telegram.chat_id: required")
		}
		if _, err := ParseDurationField("feed.telegram.poll_timeout", tg.PollTimeout); err != nil {
			return err
		}
	case "":
		return fmt.Errorf("feed.driver: required (twitter or telegram)")
	default:
		return fmt.Errorf("feed.driver: unknown driver %q", f.Driver)
	}
	return nil
}

func validateSchedule(s *ScheduleConfig) error {
	spec := strings.TrimSpace(s.Spec)
	if s.Enabled && spec == "" {
		return fmt.Errorf("schedule.spec: required when schedule.enabled")
	}
	if spec != "" {
		if err := scheduler.ValidateSpec(spec); err != nil {
			return fmt.Errorf("schedule.spec: %w", err)
		}
	}
	if tz := strings.TrimSpace(s.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("schedule.jitter", s.Jitter); err != nil {
		return err
	}
	return nil
}

func validatePublish(p *PublishConfig) error {
	if p == nil {
		return nil
	}
	for _, kv := range []struct {
		k string
		v int
	}{
		{"queue_size", p.QueueSize},
		{"rate_per_min", p.RatePerMin},
		{"retry_max", p.RetryMax},
		{"history_size", p.HistorySize},
	} {
		if kv.v < 0 {
			return fmt.Errorf("publish.%s: must be >= 0", kv.k)
		}
	}
	if _, err := ParseDurationField("publish.retry_base", p.RetryBase); err != nil {
		return err
	}
	if _, err := ParseDurationField("publish.retry_max_delay", p.RetryMaxDelay); err != nil {
		return err
	}
	return nil
}

func validateStorage(s *StorageConfig) error {
	if s == nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "", "file", "sqlite", "none":
	case "dynamodb":
		if strings.TrimSpace(s.Table) == "" {
			return fmt.Errorf("storage.table: required for driver dynamodb")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", s.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
		return err
	}
	return nil
}

func validateAlert(a *AlertConfig) error {
	if a == nil || !a.Enabled {
		return nil
	}
	if a.FailureThreshold < 0 {
		return fmt.Errorf("alert.failure_threshold: must be >= 0")
	}
	if a.SES == nil {
		return fmt.Errorf("alert.ses: section required when alert.enabled")
	}
	if strings.TrimSpace(a.SES.From) == "" {
		return fmt.Errorf("alert.ses.from: required")
	}
	if len(a.SES.To) == 0 {
		return fmt.Errorf("alert.ses.to: at least one recipient required")
	}
	for i, to := range a.SES.To {
		if strings.TrimSpace(to) == "" {
			return fmt.Errorf("alert.ses.to[%d]: empty recipient", i)
		}
	}
	return nil
}
