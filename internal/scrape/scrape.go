// Package scrape reads an aircraft's flight history table from the tracking
// site and turns it into flight records.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"tailbot/internal/config"
	"tailbot/internal/flight"
	logx "tailbot/pkg/logx"
)

const (
	defaultHistoryPath = "/history"
	defaultTimeout     = 20 * time.Second
	defaultUserAgent   = "Mozilla/5.0 (compatible; tailbot/1.0)"
)

// Scraper fetches one aircraft's history page.
type Scraper struct {
	mu     sync.RWMutex
	client *resty.Client
	url    string

	log logx.Logger
}

func New(cfg config.TailConfig, log logx.Logger) (*Scraper, error) {
	s := &Scraper{log: log}
	if err := s.Apply(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply rebuilds the client and target URL from config. Safe to call while
// Recent is in flight; the running fetch finishes on the old client.
func (s *Scraper) Apply(cfg config.TailConfig) error {
	timeout, err := config.ParseDurationOrDefault("tail.timeout", cfg.Timeout, defaultTimeout)
	if err != nil {
		return err
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", ua)

	s.mu.Lock()
	s.client = client
	s.url = historyURL(cfg)
	s.mu.Unlock()
	return nil
}

// URL returns the history page address currently in use.
func (s *Scraper) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

// Recent fetches the history page and returns finished flights newer than
// since, oldest first. A nil since returns every finished flight on the page.
func (s *Scraper) Recent(ctx context.Context, since *flight.Flight) ([]flight.Flight, error) {
	s.mu.RLock()
	client, url := s.client, s.url
	s.mu.RUnlock()

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("scrape: fetch %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("scrape: fetch %s: unexpected status %s", url, resp.Status())
	}

	flights, err := ParseHistory(bytes.NewReader(resp.Body()), since)
	if err != nil {
		return nil, err
	}
	if !s.log.IsZero() {
		s.log.Debug("history fetched",
			logx.String("url", url),
			logx.Int("new_flights", len(flights)),
		)
	}
	return flights, nil
}

func historyURL(cfg config.TailConfig) string {
	base := strings.TrimSpace(cfg.BaseURL)
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	path := strings.TrimSpace(cfg.HistoryPath)
	if path == "" {
		path = defaultHistoryPath
	}
	path = strings.TrimPrefix(path, "/")
	return base + strings.TrimSpace(cfg.TailNumber) + "/" + path
}
