package system

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seanotes/seanotes/internal/logging"
)

func TestBackgroundRunsAndWaits(t *testing.T) {
	bg := NewBackground(logging.NewDiscard())
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		bg.Go("count", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	bg.Go("fails", func(ctx context.Context) error { return errors.New("boom") })
	bg.Go("panics", func(ctx context.Context) error { panic("boom") })

	if err := bg.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if ran.Load() != 5 {
		t.Fatalf("expected 5 runs, got %d", ran.Load())
	}

	bg.Go("after-stop", func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})
	bg.Wait()
	if ran.Load() != 5 {
		t.Fatalf("task submitted after stop should be dropped")
	}
}

func TestBackgroundStopCancelsOnDeadline(t *testing.T) {
	bg := NewBackground(logging.NewDiscard())
	bg.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := bg.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBackgroundDropsTasksSubmittedWhileStopping(t *testing.T) {
	bg := NewBackground(logging.NewDiscard())
	release := make(chan struct{})
	bg.Go("draining", func(ctx context.Context) error {
		<-release
		return nil
	})

	stopped := make(chan error, 1)
	go func() { stopped <- bg.Stop(context.Background()) }()
	for {
		bg.mu.Lock()
		stopping := bg.stopped
		bg.mu.Unlock()
		if stopping {
			break
		}
		time.Sleep(time.Millisecond)
	}

	var late atomic.Int32
	bg.Go("late", func(ctx context.Context) error {
		late.Add(1)
		return nil
	})
	close(release)
	if err := <-stopped; err != nil {
		t.Fatalf("stop: %v", err)
	}
	if late.Load() != 0 {
		t.Fatal("task submitted during stop should be dropped")
	}
}

func TestBackgroundConcurrentSubmitAndStop(t *testing.T) {
	bg := NewBackground(logging.NewDiscard())
	var submitters sync.WaitGroup
	for i := 0; i < 8; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			for j := 0; j < 50; j++ {
				bg.Go("tick", func(ctx context.Context) error { return nil })
			}
		}()
	}
	if err := bg.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	submitters.Wait()
	bg.Wait()
}
