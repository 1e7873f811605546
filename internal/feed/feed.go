// Package feed defines the outbound posting port. Drivers live in
// subpackages; everything above them talks to the Feed interface only.
package feed

import (
	"context"
	"errors"
)

// Post is one published message as the feed reports it back.
type Post struct {
	ID   string
	Text string
}

// Feed posts messages to one account and reads that account's own posts
// back. Implementations must be safe for concurrent use.
type Feed interface {
	// Publish posts text and returns the created post.
	Publish(ctx context.Context, text string) (Post, error)

	// Recent returns up to limit of the account's own posts, newest first.
	// Drivers with no read-back API return ErrRecentUnsupported.
	Recent(ctx context.Context, limit int) ([]Post, error)
}

// ErrRecentUnsupported marks drivers that cannot read their own posts back.
// Callers fall back to local records for the last posted flight.
var ErrRecentUnsupported = errors.New("feed: reading posts back is not supported")

// Retryable classifies a Publish error. Drivers surface their own verdict
// through a Retryable() method; anything else is assumed transient except a
// dead context.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
