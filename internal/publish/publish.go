package publish

import (
	"errors"
	"time"

	"tailbot/internal/feed"
)

var (
	ErrDisabled  = errors.New("publisher disabled")
	ErrQueueFull = errors.New("publisher queue full")
	ErrStopped   = errors.New("publisher stopped")
)

// Item is one post within a batch. Key identifies the flight behind the
// text so the completion callback can record it.
type Item struct {
	Key  string
	Text string
}

// Batch is an ordered run of posts. Items are published strictly in
// slice order; a permanent failure abandons the remaining items.
type Batch struct {
	// Name tags log lines and history entries, e.g. "sync 2026-08-23T14:00".
	Name  string
	Items []Item

	// OnPosted runs after each successful post, in posting order, from
	// the worker goroutine. May be nil.
	OnPosted func(item Item, post feed.Post)
}

type Config struct {
	QueueSize     int
	RatePerMin    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	HistorySize   int
}

// Outcome records how a batch ended.
type Outcome struct {
	Batch  string
	At     time.Time
	Posted int
	Total  int
	// Err is empty when every item was posted.
	Err string
}
