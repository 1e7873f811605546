// Package tracker drives one sync cycle: find the last posted flight,
// scrape the history page for anything newer, and hand the new flights
// to the publisher in oldest-first order.
//
// The last posted flight is read back from the feed itself when the
// driver supports it, so the bot never re-posts flights just because
// local state was lost. Drivers without a readable timeline fall back
// to the local store.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tailbot/internal/feed"
	"tailbot/internal/flight"
	"tailbot/internal/publish"
	"tailbot/internal/storage"
	"tailbot/pkg/logx"
)

// defaultRecentPosts caps the feed read-back when looking for the last
// flight post.
const defaultRecentPosts = 5

// Where the previous-flight cutoff came from.
const (
	PrevFromFeed  = "feed"
	PrevFromStore = "store"
	PrevNone      = "none"
)

type Scraper interface {
	Recent(ctx context.Context, since *flight.Flight) ([]flight.Flight, error)
}

type FeedReader interface {
	Recent(ctx context.Context, limit int) ([]feed.Post, error)
}

type Publisher interface {
	Enqueue(ctx context.Context, b publish.Batch) error
}

type Config struct {
	// RecentPosts is how many feed posts to scan for the previous
	// flight. Defaults to 5.
	RecentPosts int
}

// SyncReport summarizes one sync cycle.
type SyncReport struct {
	// Scraped counts finished flights the page returned past the cutoff.
	Scraped int
	// New counts flights that survived store dedup.
	New int
	// Queued counts flights handed to the publisher.
	Queued int

	Previous       *flight.Flight
	PreviousSource string
}

type Tracker struct {
	log     logx.Logger
	scraper Scraper
	feed    FeedReader
	store   storage.Store // nil when storage is disabled
	pub     Publisher
	recent  int
}

func New(cfg Config, scraper Scraper, fr FeedReader, store storage.Store, pub Publisher, log logx.Logger) *Tracker {
	recent := cfg.RecentPosts
	if recent <= 0 {
		recent = defaultRecentPosts
	}
	return &Tracker{
		log:     log,
		scraper: scraper,
		feed:    fr,
		store:   store,
		pub:     pub,
		recent:  recent,
	}
}

// SyncOnce runs one sync cycle. It returns an error without queueing
// anything when the previous flight could not be determined or the
// scrape failed; posting with a broken cutoff would duplicate flights.
func (t *Tracker) SyncOnce(ctx context.Context) (SyncReport, error) {
	var rep SyncReport

	prev, src, err := t.previousFlight(ctx)
	if err != nil {
		return rep, err
	}
	rep.Previous = prev
	rep.PreviousSource = src

	flights, err := t.scraper.Recent(ctx, prev)
	if err != nil {
		return rep, fmt.Errorf("scraping history: %w", err)
	}
	rep.Scraped = len(flights)

	fresh, err := t.dropPosted(ctx, flights)
	if err != nil {
		return rep, err
	}
	rep.New = len(fresh)

	if len(fresh) == 0 {
		t.log.Info("sync found nothing new", logx.Int("scraped", rep.Scraped), logx.String("prev_source", src))
		return rep, nil
	}

	byKey := make(map[string]flight.Flight, len(fresh))
	items := make([]publish.Item, 0, len(fresh))
	for _, f := range fresh {
		k := f.Key()
		byKey[k] = f
		items = append(items, publish.Item{Key: k, Text: flight.RenderMessage(f)})
	}

	batch := publish.Batch{
		Name:     fmt.Sprintf("sync-%s", time.Now().UTC().Format("20060102-150405")),
		Items:    items,
		OnPosted: t.onPosted(byKey),
	}
	if err := t.pub.Enqueue(ctx, batch); err != nil {
		return rep, fmt.Errorf("queueing %d flights: %w", len(items), err)
	}
	rep.Queued = len(items)

	t.log.Info("sync queued new flights",
		logx.Int("scraped", rep.Scraped),
		logx.Int("new", rep.New),
		logx.String("prev_source", src))
	return rep, nil
}

// previousFlight finds the newest flight already posted. Feed first,
// store second, nil when neither knows anything (first ever run).
func (t *Tracker) previousFlight(ctx context.Context) (*flight.Flight, string, error) {
	posts, err := t.feed.Recent(ctx, t.recent)
	if errors.Is(err, feed.ErrRecentUnsupported) {
		return t.previousFromStore(ctx)
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading recent posts: %w", err)
	}

	for _, p := range posts {
		f, ok := flight.ParseMessage(p.Text)
		if !ok {
			continue
		}
		if !f.Complete() {
			// A mangled post must not become the cutoff: matching
			// nothing on the page would re-post the whole history.
			t.log.Warn("ignoring partial flight post", logx.String("post_id", p.ID))
			continue
		}
		return &f, PrevFromFeed, nil
	}
	return t.previousFromStore(ctx)
}

func (t *Tracker) previousFromStore(ctx context.Context) (*flight.Flight, string, error) {
	if t.store == nil {
		return nil, PrevNone, nil
	}
	pf, err := t.store.LastPosted(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("reading last posted flight: %w", err)
	}
	if pf == nil {
		return nil, PrevNone, nil
	}
	f := pf.Flight
	return &f, PrevFromStore, nil
}

// dropPosted filters out flights the store already has. This catches a
// lagging feed timeline and batches that died halfway through.
func (t *Tracker) dropPosted(ctx context.Context, flights []flight.Flight) ([]flight.Flight, error) {
	if t.store == nil {
		return flights, nil
	}
	fresh := make([]flight.Flight, 0, len(flights))
	for _, f := range flights {
		posted, err := t.store.WasPosted(ctx, f.Key())
		if err != nil {
			return nil, fmt.Errorf("checking posted flights: %w", err)
		}
		if posted {
			t.log.Debug("skipping already posted flight", logx.String("flight", f.String()))
			continue
		}
		fresh = append(fresh, f)
	}
	return fresh, nil
}

// onPosted records each successful post. It runs on the publisher's
// worker goroutine, after the sync that queued the batch has returned.
func (t *Tracker) onPosted(byKey map[string]flight.Flight) func(publish.Item, feed.Post) {
	return func(item publish.Item, post feed.Post) {
		if t.store == nil {
			return
		}
		f, ok := byKey[item.Key]
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := t.store.Record(ctx, storage.PostedFlight{
			Flight:   f,
			PostID:   post.ID,
			PostedAt: time.Now(),
		})
		if err != nil {
			// Worst case the next sync sees it in the feed timeline.
			t.log.Warn("recording posted flight failed", logx.String("flight", f.String()), logx.Err(err))
		}
	}
}
