package supervisor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGoCapturesFirstError(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("worker", func(ctx context.Context) error {
		return errors.New("boom")
	})

	if err := s.Wait(waitCtx(t)); err == nil {
		t.Fatal("expected error from Wait")
	}
	if err := s.Err(); err == nil || !strings.Contains(err.Error(), "worker: boom") {
		t.Fatalf("unexpected first error: %v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	s.Go("panicky", func(ctx context.Context) error {
		panic("kaboom")
	})

	if err := s.Wait(waitCtx(t)); err == nil || !strings.Contains(err.Error(), "panic in panicky") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCancelOnErrorStopsSiblings(t *testing.T) {
	t.Parallel()

	s := New(context.Background(), WithCancelOnError(true))
	s.Go("blocker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Go("failer", func(ctx context.Context) error {
		return errors.New("down")
	})

	if err := s.Wait(waitCtx(t)); err == nil || !strings.Contains(err.Error(), "failer") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGoRestartRetriesUntilCleanExit(t *testing.T) {
	t.Parallel()

	var runs int32
	s := New(context.Background())
	s.GoRestart("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond))

	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("transient errors should not be recorded, got %v", err)
	}
}

func TestGoRestartGivesUp(t *testing.T) {
	t.Parallel()

	var runs int32
	s := New(context.Background())
	s.GoRestart("doomed", func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return errors.New("always")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))

	if err := s.Wait(waitCtx(t)); err == nil || !strings.Contains(err.Error(), "doomed") {
		t.Fatalf("unexpected error: %v", err)
	}
	// Initial run plus two restarts.
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestStopCancelsContext(t *testing.T) {
	t.Parallel()

	s := New(context.Background())
	started := make(chan struct{})
	s.Go("blocker", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	if err := s.Stop(waitCtx(t)); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := s.Active(); got != 0 {
		t.Fatalf("active = %d, want 0", got)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	s := New(context.Background())
	s.Go("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}

	close(release)
	if err := s.Wait(waitCtx(t)); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
}
