package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tailbot/internal/config"
	"tailbot/internal/feed"
	logx "tailbot/pkg/logx"
)

func testConfig(apiBase string) config.TwitterConfig {
	return config.TwitterConfig{
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
		AccessToken:    "at",
		AccessSecret:   "as",
		UserID:         "99",
		APIBase:        apiBase,
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()
	var gotAuth, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1600","text":"hello"}}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	post, err := c.Publish(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if post.ID != "1600" {
		t.Fatalf("post id = %q", post.ID)
	}
	if gotPath != "POST /tweets" {
		t.Fatalf("request = %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "OAuth ") || !strings.Contains(gotAuth, `oauth_consumer_key="ck"`) {
		t.Fatalf("authorization header not signed: %q", gotAuth)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(gotBody), &body); err != nil || body["text"] != "hello" {
		t.Fatalf("request body = %q", gotBody)
	}
}

func TestPublishPermanentError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content."}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Publish(context.Background(), "dup")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Title != "Forbidden" {
		t.Fatalf("apiErr = %+v", apiErr)
	}
	if apiErr.Retryable() {
		t.Fatal("403 must not be retryable")
	}
	if feed.Retryable(err) {
		t.Fatal("feed.Retryable must follow the driver verdict")
	}
}

func TestPublishRateLimited(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"Too Many Requests"}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Publish(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !feed.Retryable(err) {
		t.Fatal("429 must be retryable")
	}
}

func TestRecent(t *testing.T) {
	t.Parallel()
	var gotPath, gotMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMax = r.URL.Query().Get("max_results")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"3","text":"newest"},
			{"id":"2","text":"middle"},
			{"id":"1","text":"oldest"}
		],"meta":{"result_count":3}}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	posts, err := c.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if gotPath != "/users/99/tweets" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotMax != "5" {
		t.Fatalf("max_results = %q", gotMax)
	}
	if len(posts) != 3 || posts[0].ID != "3" || posts[2].Text != "oldest" {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestRecentTrimsBelowFloor(t *testing.T) {
	t.Parallel()
	var gotMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("max_results")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[
			{"id":"5","text":"e"},{"id":"4","text":"d"},{"id":"3","text":"c"},
			{"id":"2","text":"b"},{"id":"1","text":"a"}
		]}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	posts, err := c.Recent(context.Background(), 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	// The endpoint floor is 5; the surplus is trimmed locally.
	if gotMax != "5" {
		t.Fatalf("max_results = %q", gotMax)
	}
	if len(posts) != 2 || posts[0].ID != "5" || posts[1].ID != "4" {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestRecentEmptyTimeline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":{"result_count":0}}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(srv.URL), logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	posts, err := c.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(posts) != 0 {
		t.Fatalf("posts = %+v, want empty", posts)
	}
}
