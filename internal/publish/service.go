package publish

import (
	"context"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tailbot/internal/feed"
	"tailbot/pkg/logx"
)

// postTimeout bounds a single Publish call so a stuck request cannot
// hang the worker past the feed driver's own timeout.
const postTimeout = 45 * time.Second

// Service posts batches of flight messages to the feed: bounded queue,
// one worker, rate limit, bounded retry for transient errors.
//
// A single worker is deliberate. Items inside a batch must reach the
// feed in order, and batches must not interleave.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	feed feed.Feed

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan Batch
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	// Recent batch outcomes, newest last.
	hmu     sync.Mutex
	history []Outcome
}

func New(cfg Config, f feed.Feed, log logx.Logger) *Service {
	s := &Service{
		feed: f,
		log:  log,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// SetFeed swaps the feed driver, for reloads that rebuild it.
func (s *Service) SetFeed(f feed.Feed) {
	s.mu.Lock()
	s.feed = f
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	// Defaults
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 15
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 30 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}

	s.cfg = cfg
	// Burst 1: posts pace out across the minute instead of spiking.
	s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60.0), 1)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		// already running
		s.mu.Unlock()
		return
	}

	s.queue = make(chan Batch, s.cfg.QueueSize)
	s.accepting = true
	s.stopDone = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in publish worker", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		s.workerLoop()
	}()
}

// Stop stops intake and drains queued batches best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	done := s.stopDone
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	// Block new enqueues.
	s.accepting = false
	s.mu.Unlock()

	// Wait for in-flight enqueues to finish, then close the queue so the
	// worker can drain.
	ch := make(chan struct{})
	go func() {
		s.sendWG.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return
	case <-ch:
	}

	// Now it's safe to close the queue.
	func() {
		defer func() { _ = recover() }()
		close(q)
	}()

	// Wait for the worker.
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
	case <-done:
		if cancel != nil {
			cancel()
		}
	}

	s.mu.Lock()
	s.queue = nil
	s.stopDone = nil
	s.runCancel = nil
	s.runCtx = nil
	s.mu.Unlock()
}

// Enqueue queues b for posting. It never blocks on a full queue.
func (s *Service) Enqueue(ctx context.Context, b Batch) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	if len(b.Items) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.feed == nil {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- b:
		s.log.Debug("batch queued", logx.String("batch", b.Name), logx.Int("items", len(b.Items)))
		return nil
	default:
		s.log.Warn("batch dropped", logx.String("batch", b.Name), logx.Int("items", len(b.Items)), logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
}

// Snapshot returns recent batch outcomes, oldest first.
func (s *Service) Snapshot() []Outcome {
	s.hmu.Lock()
	out := append([]Outcome(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendOutcome(keep int, o Outcome) {
	s.hmu.Lock()
	s.history = append(s.history, o)
	if len(s.history) > keep {
		s.history = s.history[len(s.history)-keep:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop() {
	// Copy stable references.
	s.mu.Lock()
	q := s.queue
	runCtx := s.runCtx
	s.mu.Unlock()

	for b := range q {
		// If the app is stopping, stop quickly.
		if runCtx != nil {
			select {
			case <-runCtx.Done():
				return
			default:
			}
		}
		s.runBatch(runCtx, b)
	}
}

func (s *Service) runBatch(runCtx context.Context, b Batch) {
	// config snapshot for this batch
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	f := s.feed
	s.mu.Unlock()

	if f == nil {
		s.appendOutcome(cfg.HistorySize, Outcome{Batch: b.Name, At: time.Now(), Posted: 0, Total: len(b.Items), Err: ErrDisabled.Error()})
		return
	}

	posted := 0
	for _, item := range b.Items {
		if runCtx != nil {
			select {
			case <-runCtx.Done():
				s.appendOutcome(cfg.HistorySize, Outcome{Batch: b.Name, At: time.Now(), Posted: posted, Total: len(b.Items), Err: runCtx.Err().Error()})
				return
			default:
			}
		}

		post, err := s.postWithRetry(runCtx, cfg, lim, f, item)
		if err != nil {
			// Abandon the rest; the next sync rediscovers unposted flights.
			s.log.Warn("batch aborted",
				logx.String("batch", b.Name),
				logx.String("key", item.Key),
				logx.Int("posted", posted),
				logx.Int("total", len(b.Items)),
				logx.Err(err))
			s.appendOutcome(cfg.HistorySize, Outcome{Batch: b.Name, At: time.Now(), Posted: posted, Total: len(b.Items), Err: err.Error()})
			return
		}
		posted++
		if b.OnPosted != nil {
			b.OnPosted(item, post)
		}
	}

	s.log.Info("batch posted", logx.String("batch", b.Name), logx.Int("items", posted))
	s.appendOutcome(cfg.HistorySize, Outcome{Batch: b.Name, At: time.Now(), Posted: posted, Total: len(b.Items)})
}

func (s *Service) postWithRetry(runCtx context.Context, cfg Config, lim *rate.Limiter, f feed.Feed, item Item) (feed.Post, error) {
	maxAttempts := 1 + cfg.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Rate limit (honor cancellation). Retries take a fresh token too.
		if lim != nil {
			wctx := runCtx
			if wctx == nil {
				wctx = context.Background()
			}
			if err := lim.Wait(wctx); err != nil {
				return feed.Post{}, err
			}
		}

		callCtx := runCtx
		if callCtx == nil {
			callCtx = context.Background()
		}
		callCtx, cancel := context.WithTimeout(callCtx, postTimeout)
		post, err := f.Publish(callCtx, item.Text)
		cancel()
		if err == nil {
			return post, nil
		}
		lastErr = err
		s.log.Debug("post failed", logx.String("key", item.Key), logx.Int("attempt", attempt), logx.Int("max", maxAttempts), logx.Err(err))

		if !feed.Retryable(err) {
			break
		}
		if attempt >= maxAttempts {
			break
		}

		delay := retryDelay(cfg, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		rc := runCtx
		if rc == nil {
			rc = context.Background()
		}
		select {
		case <-t.C:
		case <-rc.Done():
			if !t.Stop() {
				<-t.C
			}
			return feed.Post{}, rc.Err()
		}
	}

	return feed.Post{}, lastErr
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 30 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.8..1.2
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	j := 0.8 + rng.Float64()*0.4
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
