package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tailbot/internal/feed"
	"tailbot/internal/flight"
	"tailbot/internal/publish"
	"tailbot/internal/storage"
	"tailbot/pkg/logx"
)

type ScraperMock struct {
	mock.Mock
}

func (m *ScraperMock) Recent(ctx context.Context, since *flight.Flight) ([]flight.Flight, error) {
	ret := m.Called(ctx, since)
	var fs []flight.Flight
	if v := ret.Get(0); v != nil {
		fs = v.([]flight.Flight)
	}
	return fs, ret.Error(1)
}

type FeedMock struct {
	mock.Mock
}

func (m *FeedMock) Recent(ctx context.Context, limit int) ([]feed.Post, error) {
	ret := m.Called(ctx, limit)
	var ps []feed.Post
	if v := ret.Get(0); v != nil {
		ps = v.([]feed.Post)
	}
	return ps, ret.Error(1)
}

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Record(ctx context.Context, pf storage.PostedFlight) error {
	ret := m.Called(ctx, pf)
	return ret.Error(0)
}

func (m *StoreMock) WasPosted(ctx context.Context, key string) (bool, error) {
	ret := m.Called(ctx, key)
	return ret.Bool(0), ret.Error(1)
}

func (m *StoreMock) LastPosted(ctx context.Context) (*storage.PostedFlight, error) {
	ret := m.Called(ctx)
	var pf *storage.PostedFlight
	if v := ret.Get(0); v != nil {
		pf = v.(*storage.PostedFlight)
	}
	return pf, ret.Error(1)
}

func (m *StoreMock) RecentPosted(ctx context.Context, limit int) ([]storage.PostedFlight, error) {
	ret := m.Called(ctx, limit)
	var pfs []storage.PostedFlight
	if v := ret.Get(0); v != nil {
		pfs = v.([]storage.PostedFlight)
	}
	return pfs, ret.Error(1)
}

func (m *StoreMock) Close() error {
	ret := m.Called()
	return ret.Error(0)
}

type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Enqueue(ctx context.Context, b publish.Batch) error {
	ret := m.Called(ctx, b)
	return ret.Error(0)
}

var (
	jan01 = flight.Flight{Date: "01-Jan-2023", Origin: "KSFO", Destination: "KPDX", Departure: "02:10PM PST", Arrival: "03:52PM PST", Duration: "1:42"}
	jan02 = flight.Flight{Date: "02-Jan-2023", Origin: "KPDX", Destination: "KSEA", Departure: "11:02AM PST", Arrival: "11:48AM PST", Duration: "0:46"}
	jan03 = flight.Flight{Date: "03-Jan-2023", Origin: "KPDX", Destination: "KSEA", Departure: "09:15AM PST", Arrival: "10:03AM PST", Duration: "0:48"}
)

func post(f flight.Flight) feed.Post {
	return feed.Post{ID: "p-" + f.Date, Text: flight.RenderMessage(f)}
}

// batchWith matches a batch whose items are exactly the rendered
// messages for fs, in order.
func batchWith(fs ...flight.Flight) interface{} {
	return mock.MatchedBy(func(b publish.Batch) bool {
		if len(b.Items) != len(fs) {
			return false
		}
		for i, f := range fs {
			if b.Items[i].Key != f.Key() || b.Items[i].Text != flight.RenderMessage(f) {
				return false
			}
		}
		return true
	})
}

func TestSyncOnce(t *testing.T) {
	type mocks struct {
		scraper *ScraperMock
		feed    *FeedMock
		store   *StoreMock
		pub     *PublisherMock
	}

	tests := []struct {
		name      string
		withStore bool
		mocker    func(m mocks)
		want      SyncReport
		wantErr   string
	}{
		{
			name: "previous flight read back from the feed",
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return([]feed.Post{post(jan01)}, nil).Once()
				m.scraper.On("Recent", mock.Anything, &jan01).Return([]flight.Flight{jan02, jan03}, nil).Once()
				m.pub.On("Enqueue", mock.Anything, batchWith(jan02, jan03)).Return(nil).Once()
			},
			want: SyncReport{Scraped: 2, New: 2, Queued: 2, Previous: &jan01, PreviousSource: PrevFromFeed},
		},
		{
			name:      "timeline unsupported falls back to the store",
			withStore: true,
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return(nil, feed.ErrRecentUnsupported).Once()
				m.store.On("LastPosted", mock.Anything).Return(&storage.PostedFlight{Flight: jan02, PostID: "42"}, nil).Once()
				m.scraper.On("Recent", mock.Anything, &jan02).Return([]flight.Flight{jan03}, nil).Once()
				m.store.On("WasPosted", mock.Anything, jan03.Key()).Return(false, nil).Once()
				m.pub.On("Enqueue", mock.Anything, batchWith(jan03)).Return(nil).Once()
			},
			want: SyncReport{Scraped: 1, New: 1, Queued: 1, Previous: &jan02, PreviousSource: PrevFromStore},
		},
		{
			name:      "first run posts the whole history",
			withStore: true,
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return([]feed.Post{}, nil).Once()
				m.store.On("LastPosted", mock.Anything).Return(nil, nil).Once()
				m.scraper.On("Recent", mock.Anything, (*flight.Flight)(nil)).Return([]flight.Flight{jan01, jan02, jan03}, nil).Once()
				m.store.On("WasPosted", mock.Anything, mock.Anything).Return(false, nil).Times(3)
				m.pub.On("Enqueue", mock.Anything, batchWith(jan01, jan02, jan03)).Return(nil).Once()
			},
			want: SyncReport{Scraped: 3, New: 3, Queued: 3, PreviousSource: PrevNone},
		},
		{
			name: "foreign and mangled posts are skipped",
			mocker: func(m mocks) {
				posts := []feed.Post{
					{ID: "t1", Text: "gorgeous sunset at the airfield"},
					{ID: "t2", Text: flight.MessagePrefix + "half a post with no fields\n"},
					post(jan01),
				}
				m.feed.On("Recent", mock.Anything, 5).Return(posts, nil).Once()
				m.scraper.On("Recent", mock.Anything, &jan01).Return([]flight.Flight{jan02}, nil).Once()
				m.pub.On("Enqueue", mock.Anything, batchWith(jan02)).Return(nil).Once()
			},
			want: SyncReport{Scraped: 1, New: 1, Queued: 1, Previous: &jan01, PreviousSource: PrevFromFeed},
		},
		{
			name:      "store dedup drops a flight the lagging timeline missed",
			withStore: true,
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return([]feed.Post{post(jan01)}, nil).Once()
				m.scraper.On("Recent", mock.Anything, &jan01).Return([]flight.Flight{jan02, jan03}, nil).Once()
				m.store.On("WasPosted", mock.Anything, jan02.Key()).Return(true, nil).Once()
				m.store.On("WasPosted", mock.Anything, jan03.Key()).Return(false, nil).Once()
				m.pub.On("Enqueue", mock.Anything, batchWith(jan03)).Return(nil).Once()
			},
			want: SyncReport{Scraped: 2, New: 1, Queued: 1, Previous: &jan01, PreviousSource: PrevFromFeed},
		},
		{
			name: "feed read error aborts before scraping",
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return(nil, errors.New("rate limited")).Once()
			},
			wantErr: "reading recent posts",
		},
		{
			name: "scrape error aborts before posting",
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return([]feed.Post{post(jan01)}, nil).Once()
				m.scraper.On("Recent", mock.Anything, &jan01).Return(nil, errors.New("status 503")).Once()
			},
			want:    SyncReport{Previous: &jan01, PreviousSource: PrevFromFeed},
			wantErr: "scraping history",
		},
		{
			name: "publisher rejecting the batch is reported",
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return([]feed.Post{post(jan01)}, nil).Once()
				m.scraper.On("Recent", mock.Anything, &jan01).Return([]flight.Flight{jan02}, nil).Once()
				m.pub.On("Enqueue", mock.Anything, batchWith(jan02)).Return(publish.ErrQueueFull).Once()
			},
			want:    SyncReport{Scraped: 1, New: 1, Previous: &jan01, PreviousSource: PrevFromFeed},
			wantErr: "queueing 1 flights",
		},
		{
			name: "nothing new queues nothing",
			mocker: func(m mocks) {
				m.feed.On("Recent", mock.Anything, 5).Return([]feed.Post{post(jan03)}, nil).Once()
				m.scraper.On("Recent", mock.Anything, &jan03).Return(nil, nil).Once()
			},
			want: SyncReport{Previous: &jan03, PreviousSource: PrevFromFeed},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := mocks{
				scraper: &ScraperMock{},
				feed:    &FeedMock{},
				store:   &StoreMock{},
				pub:     &PublisherMock{},
			}
			tt.mocker(m)

			var store storage.Store
			if tt.withStore {
				store = m.store
			}
			tr := New(Config{}, m.scraper, m.feed, store, m.pub, logx.Nop())
			got, err := tr.SyncOnce(context.Background())

			if tt.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("report differs: (-want,+got)\n%s", diff)
			}
			m.scraper.AssertExpectations(t)
			m.feed.AssertExpectations(t)
			m.store.AssertExpectations(t)
			m.pub.AssertExpectations(t)
		})
	}
}

// The store learns about a flight only after the feed accepted it.
func TestOnPostedRecordsToStore(t *testing.T) {
	scraper := &ScraperMock{}
	fm := &FeedMock{}
	store := &StoreMock{}
	pub := &PublisherMock{}

	fm.On("Recent", mock.Anything, 5).Return([]feed.Post{post(jan01)}, nil).Once()
	scraper.On("Recent", mock.Anything, &jan01).Return([]flight.Flight{jan02}, nil).Once()
	store.On("WasPosted", mock.Anything, jan02.Key()).Return(false, nil).Once()

	var captured publish.Batch
	pub.On("Enqueue", mock.Anything, mock.AnythingOfType("publish.Batch")).Run(func(args mock.Arguments) {
		captured = args.Get(1).(publish.Batch)
	}).Return(nil).Once()

	tr := New(Config{}, scraper, fm, store, pub, logx.Nop())
	_, err := tr.SyncOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, captured.OnPosted)
	require.True(t, strings.HasPrefix(captured.Name, "sync-"))

	store.On("Record", mock.Anything, mock.MatchedBy(func(pf storage.PostedFlight) bool {
		return pf.Flight == jan02 && pf.PostID == "feed-id-9" && time.Since(pf.PostedAt) < 5*time.Second
	})).Return(nil).Once()

	captured.OnPosted(captured.Items[0], feed.Post{ID: "feed-id-9"})
	store.AssertExpectations(t)
}

// A flight post must reach the publisher byte-identical to what the
// formatter renders, and a failed parse must queue nothing.
func TestQueuedTextMatchesRenderedMessage(t *testing.T) {
	scraper := &ScraperMock{}
	fm := &FeedMock{}
	pub := &PublisherMock{}

	fm.On("Recent", mock.Anything, 5).Return([]feed.Post{}, nil).Once()
	scraper.On("Recent", mock.Anything, (*flight.Flight)(nil)).Return([]flight.Flight{jan02}, nil).Once()

	var captured publish.Batch
	pub.On("Enqueue", mock.Anything, mock.AnythingOfType("publish.Batch")).Run(func(args mock.Arguments) {
		captured = args.Get(1).(publish.Batch)
	}).Return(nil).Once()

	tr := New(Config{}, scraper, fm, nil, pub, logx.Nop())
	_, err := tr.SyncOnce(context.Background())
	require.NoError(t, err)

	want := "***New Flight***\n\n" +
		"Date: 02-Jan-2023\n" +
		"Origin: KPDX\n" +
		"Destination: KSEA\n" +
		"Departure: 11:02AM PST\n" +
		"Arrival: 11:48AM PST\n" +
		"Duration: 0:46"
	require.Len(t, captured.Items, 1)
	require.Equal(t, want, captured.Items[0].Text)

	// Broken page: the scraper fails, the publisher must stay silent.
	scraper2 := &ScraperMock{}
	fm2 := &FeedMock{}
	pub2 := &PublisherMock{}
	fm2.On("Recent", mock.Anything, 5).Return([]feed.Post{}, nil).Once()
	scraper2.On("Recent", mock.Anything, (*flight.Flight)(nil)).Return(nil, errors.New("page layout changed")).Once()

	tr2 := New(Config{}, scraper2, fm2, nil, pub2, logx.Nop())
	_, err = tr2.SyncOnce(context.Background())
	require.Error(t, err)
	pub2.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}
