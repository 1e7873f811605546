package config

import (
	"reflect"
	"sort"
	"strings"

	logx "tailbot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Credentials (twitter keys, telegram token)
// are only ever reported as set/unset.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Tail != newCfg.Tail {
		changed = append(changed, "tail")
		attrs = append(attrs,
			logx.String("tail.tail_number", strings.TrimSpace(newCfg.Tail.TailNumber)),
			logx.String("tail.base_url", strings.TrimSpace(newCfg.Tail.BaseURL)),
			logx.String("tail.timeout", strings.TrimSpace(newCfg.Tail.Timeout)),
		)
	}

	if feedChanged(&oldCfg.Feed, &newCfg.Feed) {
		changed = append(changed, "feed")
		attrs = append(attrs,
			logx.String("feed.driver", strings.TrimSpace(newCfg.Feed.Driver)),
			logx.Bool("feed.twitter_set", newCfg.Feed.Twitter != nil),
			logx.Bool("feed.telegram_set", newCfg.Feed.Telegram != nil),
		)
	}

	if oldCfg.Schedule != newCfg.Schedule {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newCfg.Schedule.Enabled),
			logx.String("schedule.spec", strings.TrimSpace(newCfg.Schedule.Spec)),
			logx.String("schedule.timezone", strings.TrimSpace(newCfg.Schedule.Timezone)),
		)
	}

	oldP := derefPublish(oldCfg.Publish)
	newP := derefPublish(newCfg.Publish)
	if oldP != newP {
		changed = append(changed, "publish")
		attrs = append(attrs,
			logx.Int("publish.queue_size", newP.QueueSize),
			logx.Int("publish.rate_per_min", newP.RatePerMin),
			logx.Int("publish.retry_max", newP.RetryMax),
			logx.String("publish.retry_base", strings.TrimSpace(newP.RetryBase)),
		)
	}

	if storageChanged(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		var driver, busy string
		var pathSet bool
		if s := newCfg.Storage; s != nil {
			driver = strings.TrimSpace(s.Driver)
			busy = strings.TrimSpace(s.BusyTimeout)
			pathSet = strings.TrimSpace(s.Path) != ""
		}
		attrs = append(attrs,
			logx.String("storage.driver", driver),
			logx.Bool("storage.path_set", pathSet),
			logx.String("storage.busy_timeout", busy),
		)
	}

	if alertChanged(oldCfg.Alert, newCfg.Alert) {
		changed = append(changed, "alert")
		var enabled bool
		var threshold, recipients int
		if a := newCfg.Alert; a != nil {
			enabled = a.Enabled
			threshold = a.FailureThreshold
			if a.SES != nil {
				recipients = len(a.SES.To)
			}
		}
		attrs = append(attrs,
			logx.Bool("alert.enabled", enabled),
			logx.Int("alert.failure_threshold", threshold),
			logx.Int("alert.recipients", recipients),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.notify_enabled", newCfg.Logging.Notify.Enabled),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func feedChanged(o, n *FeedConfig) bool {
	if strings.TrimSpace(o.Driver) != strings.TrimSpace(n.Driver) {
		return true
	}
	if (o.Twitter == nil) != (n.Twitter == nil) || (o.Telegram == nil) != (n.Telegram == nil) {
		return true
	}
	if o.Twitter != nil && *o.Twitter != *n.Twitter {
		return true
	}
	if o.Telegram != nil && *o.Telegram != *n.Telegram {
		return true
	}
	return false
}

func derefPublish(p *PublishConfig) PublishConfig {
	if p == nil {
		return PublishConfig{}
	}
	return *p
}

func storageChanged(o, n *StorageConfig) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	return o != nil && *o != *n
}

func alertChanged(o, n *AlertConfig) bool {
	if (o == nil) != (n == nil) {
		return true
	}
	if o == nil {
		return false
	}
	if o.Enabled != n.Enabled || o.FailureThreshold != n.FailureThreshold {
		return true
	}
	return !reflect.DeepEqual(o.SES, n.SES)
}
