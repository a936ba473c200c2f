package writeback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueRunsJobs(t *testing.T) {
	q := New(quietLogger(), Options{Workers: 3})
	var ran atomic.Int32
	for i := 0; i < 20; i++ {
		q.Go(string(rune('a'+i)), "job", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() returned an unexpected error: %v", err)
	}
	if ran.Load() != 20 {
		t.Errorf("Expected 20 jobs to run, got %d", ran.Load())
	}
}

func TestQueueRetriesThenSucceeds(t *testing.T) {
	q := New(quietLogger(), Options{Attempts: 3, Backoff: time.Millisecond})
	var calls atomic.Int32
	q.Go("card-1", "upsert card", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("temporary")
		}
		return nil
	})
	if err := q.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
}

func TestQueueGivesUpAfterAttempts(t *testing.T) {
	q := New(quietLogger(), Options{Attempts: 2, Backoff: time.Millisecond})
	var calls atomic.Int32
	q.Go("log-1", "insert review log", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("permanent")
	})
	var after atomic.Bool
	q.Go("log-1", "next", func(ctx context.Context) error {
		after.Store(true)
		return nil
	})
	if err := q.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", calls.Load())
	}
	if !after.Load() {
		t.Errorf("a failed job must not block later jobs")
	}
}

func TestQueueOrdersSameKey(t *testing.T) {
	q := New(quietLogger(), Options{Workers: 4})
	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		q.Go("card-7", "upsert card", func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("jobs for one key ran out of order: %v", order)
		}
	}
}

func TestQueueDropsAfterClose(t *testing.T) {
	q := New(quietLogger(), Options{})
	if err := q.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	var ran atomic.Bool
	q.Go("k", "late", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Errorf("job submitted after Close must not run")
	}
	if err := q.Close(context.Background()); err != nil {
		t.Errorf("second Close() returned %v", err)
	}
}

func TestCloseHonoursContext(t *testing.T) {
	q := New(quietLogger(), Options{Attempts: 50, Backoff: time.Second})
	q.Go("k", "stuck", func(ctx context.Context) error {
		return errors.New("down")
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
