package app

import (
	"fmt"
	"strings"
	"time"

	"tailbot/internal/alert"
	"tailbot/internal/config"
	"tailbot/internal/publish"
	"tailbot/internal/scheduler"
	"tailbot/internal/storage"
	"tailbot/pkg/logx"
)

// syncTimeout bounds one whole scrape-and-queue cycle.
const syncTimeout = 10 * time.Minute

func mapLoggingConfig(lc config.LoggingConfig, haveNotifier bool) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Notify: logx.NotifyConfig{
			Enabled:    haveNotifier && lc.Notify.Enabled,
			MinLevel:   lc.Notify.MinLevel,
			RatePerSec: lc.Notify.RatePerSec,
		},
	}
}

func mapPublishConfig(pc *config.PublishConfig) (publish.Config, error) {
	if pc == nil {
		return publish.Config{}, nil
	}
	base, err := config.ParseDurationField("publish.retry_base", pc.RetryBase)
	if err != nil {
		return publish.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("publish.retry_max_delay", pc.RetryMaxDelay)
	if err != nil {
		return publish.Config{}, err
	}
	return publish.Config{
		QueueSize:     pc.QueueSize,
		RatePerMin:    pc.RatePerMin,
		RetryMax:      pc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		HistorySize:   pc.HistorySize,
	}, nil
}

func mapScheduleConfig(sc config.ScheduleConfig) (scheduler.Config, error) {
	jitter, err := config.ParseDurationField("schedule.jitter", sc.Jitter)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        sc.Enabled,
		DefaultTimeout: syncTimeout,
		Timezone:       sc.Timezone,
		Jitter:         jitter,
	}, nil
}

// mapStorageConfig reports enabled=false when no storage section is present.
// A present section with an empty driver means the file store; an explicit
// "none" opts out with the section still in place.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "none":
		return storage.Config{}, false, nil
	case "", "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	case "dynamodb", "dynamo":
		if strings.TrimSpace(sc.Table) == "" {
			return storage.Config{}, false, fmt.Errorf("storage.table is required when storage.driver=dynamodb")
		}
		return storage.Config{Driver: "dynamodb", Table: strings.TrimSpace(sc.Table), Region: strings.TrimSpace(sc.Region)}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapAlertConfig(cfg *config.Config) (alert.Config, error) {
	if cfg == nil || cfg.Alert == nil {
		return alert.Config{}, nil
	}
	ac := cfg.Alert
	out := alert.Config{
		Enabled:          ac.Enabled,
		FailureThreshold: ac.FailureThreshold,
		TailNumber:       strings.TrimSpace(cfg.Tail.TailNumber),
	}
	if ac.Enabled && ac.SES == nil {
		return alert.Config{}, fmt.Errorf("alert.ses is required when alert.enabled is true")
	}
	if ac.SES != nil {
		out.Region = strings.TrimSpace(ac.SES.Region)
		out.From = strings.TrimSpace(ac.SES.From)
		out.To = ac.SES.To
	}
	return out, nil
}
