package storage

import (
	"context"
	"errors"
	"strings"

	"tailbot/pkg/logx"
)

// Store is the persistence API used by the tracker.
type Store interface {
	// Record remembers a posted flight. Recording the same flight again
	// replaces the earlier entry.
	Record(ctx context.Context, pf PostedFlight) error

	// WasPosted reports whether the flight key was recorded before.
	WasPosted(ctx context.Context, key string) (bool, error)

	// LastPosted returns the newest record, or nil when nothing was
	// posted yet.
	LastPosted(ctx context.Context) (*PostedFlight, error)

	// RecentPosted returns up to limit records, newest first.
	RecentPosted(ctx context.Context, limit int) ([]PostedFlight, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "dynamodb", "dynamo":
		return openDynamo(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
