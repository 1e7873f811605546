// Package twitter posts through the v2 API with OAuth 1.0a user context.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/go-resty/resty/v2"

	"tailbot/internal/config"
	"tailbot/internal/feed"
	logx "tailbot/pkg/logx"
)

const (
	defaultAPIBase = "https://api.twitter.com/2"
	requestTimeout = 30 * time.Second

	// The timeline endpoint rejects max_results outside 5..100, so small
	// limits are requested at the floor and trimmed locally.
	timelineFloor = 5
	timelineCap   = 100
)

type Client struct {
	mu     sync.RWMutex
	http   *resty.Client
	userID string

	log logx.Logger
}

func New(cfg config.TwitterConfig, log logx.Logger) (*Client, error) {
	c := &Client{log: log}
	if err := c.Apply(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply rebuilds the signing client from config. In-flight requests finish
// on the old client.
func (c *Client) Apply(cfg config.TwitterConfig) error {
	oc := oauth1.NewConfig(cfg.ConsumerKey, cfg.ConsumerSecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)

	base := cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	hc := resty.NewWithClient(oc.Client(oauth1.NoContext, token)).
		SetBaseURL(base).
		SetTimeout(requestTimeout).
		SetHeader("Content-Type", "application/json")

	c.mu.Lock()
	c.http = hc
	c.userID = cfg.UserID
	c.mu.Unlock()
	return nil
}

type tweetData struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Publish posts one tweet.
func (c *Client) Publish(ctx context.Context, text string) (feed.Post, error) {
	c.mu.RLock()
	hc := c.http
	c.mu.RUnlock()

	var out struct {
		Data tweetData `json:"data"`
	}
	resp, err := hc.R().
		SetContext(ctx).
		SetBody(map[string]string{"text": text}).
		SetResult(&out).
		Post("/tweets")
	if err != nil {
		return feed.Post{}, fmt.Errorf("twitter: publish: %w", err)
	}
	if resp.IsError() {
		return feed.Post{}, apiErrorFrom(resp)
	}
	if out.Data.ID == "" {
		return feed.Post{}, fmt.Errorf("twitter: publish: response carried no tweet id")
	}
	if !c.log.IsZero() {
		c.log.Debug("tweet posted", logx.String("tweet_id", out.Data.ID))
	}
	return feed.Post{ID: out.Data.ID, Text: out.Data.Text}, nil
}

// Recent returns the account's newest tweets, newest first.
func (c *Client) Recent(ctx context.Context, limit int) ([]feed.Post, error) {
	c.mu.RLock()
	hc, userID := c.http, c.userID
	c.mu.RUnlock()

	if limit <= 0 {
		limit = timelineFloor
	}
	reqN := limit
	if reqN < timelineFloor {
		reqN = timelineFloor
	}
	if reqN > timelineCap {
		reqN = timelineCap
	}

	var out struct {
		Data []tweetData `json:"data"`
	}
	resp, err := hc.R().
		SetContext(ctx).
		SetQueryParam("max_results", strconv.Itoa(reqN)).
		SetResult(&out).
		Get("/users/" + userID + "/tweets")
	if err != nil {
		return nil, fmt.Errorf("twitter: timeline: %w", err)
	}
	if resp.IsError() {
		return nil, apiErrorFrom(resp)
	}

	if len(out.Data) > limit {
		out.Data = out.Data[:limit]
	}
	posts := make([]feed.Post, 0, len(out.Data))
	for _, t := range out.Data {
		posts = append(posts, feed.Post{ID: t.ID, Text: t.Text})
	}
	return posts, nil
}

// APIError is a non-2xx reply from the API.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("twitter: %s (%d): %s", e.Title, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("twitter: %s (%d)", e.Title, e.StatusCode)
}

// Retryable reports whether the request may succeed later. Rate limits and
// server errors qualify; everything else (bad auth, duplicate content,
// malformed request) does not.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func apiErrorFrom(resp *resty.Response) error {
	var body struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(resp.Body(), &body)
	if body.Title == "" {
		body.Title = resp.Status()
	}
	return &APIError{StatusCode: resp.StatusCode(), Title: body.Title, Detail: body.Detail}
}
