package config

type Config struct {
	Tail     TailConfig     `json:"tail"`
	Feed     FeedConfig     `json:"feed"`
	Schedule ScheduleConfig `json:"schedule"`
	Logging  LoggingConfig  `json:"logging"`

	// Publish controls the posting pipeline (queue, pacing, retries).
	// If omitted, runtime defaults apply.
	Publish *PublishConfig `json:"publish,omitempty"`

	// Storage controls the posted-flight record used for dedup and for
	// recovering the last posted flight when the feed cannot be read back.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Alert controls the operator email sent after repeated sync failures.
	Alert *AlertConfig `json:"alert,omitempty"`
}

// TailConfig identifies the aircraft and the site its history is read from.
//
// Durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - history_path: "/history"
//   - timeout: "20s"
//   - user_agent: runtime default
type TailConfig struct {
	// TailNumber is the aircraft registration, e.g. "N12345".
	TailNumber string `json:"tail_number"`

	// BaseURL is the tracking site prefix the tail number appends to,
	// e.g. "https://flightaware.example/live/flight/". Required.
	BaseURL string `json:"base_url"`

	HistoryPath string `json:"history_path,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Timeout     string `json:"timeout,omitempty"`
}

// FeedConfig selects where flight messages are posted.
//
// Driver is "twitter" or "telegram"; exactly one matching section must be
// filled in.
type FeedConfig struct {
	Driver   string          `json:"driver"`
	Twitter  *TwitterConfig  `json:"twitter,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// TwitterConfig holds OAuth 1.0a user-context credentials.
//
// UserID is the numeric account id, needed to read the account's own
// timeline back. APIBase overrides the endpoint prefix (tests only).
type TwitterConfig struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	AccessToken    string `json:"access_token"`
	AccessSecret   string `json:"access_secret"`
	UserID         string `json:"user_id"`
	APIBase        string `json:"api_base,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// OwnerChatID receives operator notifications (mirrored log records).
	// Flight posts never go here. Zero disables the owner channel.
	OwnerChatID int64 `json:"owner_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// ScheduleConfig controls the periodic sync trigger.
//
// Spec accepts a 5-field cron expression ("*/30 * * * *"), an optional
// "cron:" or "interval:" prefix, a bare Go duration ("45m"), or "HH:MM".
//
// Jitter is a Go duration string; each triggered sync is delayed by a
// random amount up to it, so runs don't hit the source site at the
// exact same second every time.
type ScheduleConfig struct {
	Enabled  bool   `json:"enabled"`
	Spec     string `json:"spec"`
	Timezone string `json:"timezone,omitempty"`
	Jitter   string `json:"jitter,omitempty"`
}

// PublishConfig controls the posting pipeline.
//
// All durations are Go duration strings.
//
// Defaults (when fields are omitted/zero):
//   - queue_size: 64
//   - rate_per_min: 15
//   - retry_max: 3
//   - retry_base: "500ms"
//   - retry_max_delay: "30s"
//   - history_size: 100
type PublishConfig struct {
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerMin    int    `json:"rate_per_min,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	HistorySize   int    `json:"history_size,omitempty"`
}

// StorageConfig controls the posted-flight record.
//
// Driver is "file" (default), "sqlite", "dynamodb", or "none".
// Path applies to file/sqlite, Table and Region to dynamodb.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./tailbot_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	Table       string `json:"table,omitempty"`
	Region      string `json:"region,omitempty"`
}

// AlertConfig controls the operator alert mail.
//
// FailureThreshold is the number of consecutive failed syncs before one
// alert is sent (default 3). The counter resets on the next success.
type AlertConfig struct {
	Enabled          bool       `json:"enabled"`
	FailureThreshold int        `json:"failure_threshold,omitempty"`
	SES              *SESConfig `json:"ses,omitempty"`
}

type SESConfig struct {
	Region string   `json:"region,omitempty"`
	From   string   `json:"from"`
	To     []string `json:"to"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LoggingFile   `json:"file"`
	Notify  LoggingNotify `json:"notify"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingNotify mirrors log records at or above MinLevel to the posting
// feed's operator channel, rate limited to RatePerSec.
type LoggingNotify struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}
