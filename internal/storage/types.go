package storage

import (
	"errors"
	"time"

	"tailbot/internal/flight"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot); the default
//     when Driver is empty
//   - "sqlite": SQLite database file (optional build tag)
//   - "dynamodb": DynamoDB table (for the Lambda deployment)
//
// "none" makes Open report no store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Table       string        // dynamodb only
	Region      string        // dynamodb only; empty uses the SDK default chain
}

// PostedFlight is one successfully posted flight.
// Keep it compact and schema-stable.
type PostedFlight struct {
	Flight   flight.Flight `json:"flight"`
	PostID   string        `json:"post_id"`
	PostedAt time.Time     `json:"posted_at"`
}

// Key identifies the record by its flight.
func (p PostedFlight) Key() string { return p.Flight.Key() }
