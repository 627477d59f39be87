package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func drain(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.Drain(ctx)
}

func TestSubmitWaitAndDrain(t *testing.T) {
	p := New(2, 10)
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		if err := p.SubmitWait(context.Background(), func() { count.Add(1) }); err != nil {
			t.Fatalf("SubmitWait %d: %v", i, err)
		}
	}
	drain(t, p)

	if got := count.Load(); got != 5 {
		t.Fatalf("count = %d, want 5", got)
	}
}

func TestSubmitWaitAfterDrainReturnsErrStopped(t *testing.T) {
	p := New(1, 1)
	drain(t, p)

	if err := p.SubmitWait(context.Background(), func() {}); err != ErrStopped {
		t.Fatalf("SubmitWait after Drain err = %v, want ErrStopped", err)
	}
}

func TestDrainRespectsContextDeadline(t *testing.T) {
	p := New(1, 10)
	blocker := make(chan struct{})
	if err := p.SubmitWait(context.Background(), func() { <-blocker }); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Drain(ctx)
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Fatalf("Drain should have timed out in ~100ms, took %v", elapsed)
	}

	close(blocker) // cleanup
}

func TestSingleWorkerDrainDoesNotDeadlock(t *testing.T) {
	p := New(1, 10)
	var count atomic.Int32

	for i := 0; i < 5; i++ {
		if err := p.SubmitWait(context.Background(), func() {
			time.Sleep(1 * time.Millisecond)
			count.Add(1)
		}); err != nil {
			t.Fatal(err)
		}
	}
	drain(t, p)

	if got := count.Load(); got != 5 {
		t.Fatalf("single-worker drain: count = %d, want 5", got)
	}
}

func TestPanicRecovery(t *testing.T) {
	p := New(1, 10)
	var count atomic.Int32

	_ = p.SubmitWait(context.Background(), func() { panic("capability crashed") })
	_ = p.SubmitWait(context.Background(), func() { count.Add(1) })
	drain(t, p)

	if got := count.Load(); got != 1 {
		t.Fatalf("task after panic: count = %d, want 1", got)
	}
}

func TestSubmitWaitBlocksUntilQueueHasRoom(t *testing.T) {
	p := New(1, 1)
	release := make(chan struct{})
	var count atomic.Int32

	if err := p.SubmitWait(context.Background(), func() { <-release; count.Add(1) }); err != nil {
		t.Fatalf("first SubmitWait: %v", err)
	}

	done := make(chan error, 2)
	go func() {
		for i := 0; i < 2; i++ {
			done <- p.SubmitWait(context.Background(), func() { count.Add(1) })
		}
	}()

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("SubmitWait %d: %v", i, err)
		}
	}
	drain(t, p)

	if got := count.Load(); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
}

func TestSubmitWaitHonoursContext(t *testing.T) {
	p := New(1, 1)
	blocker := make(chan struct{})
	started := make(chan struct{})
	_ = p.SubmitWait(context.Background(), func() { close(started); <-blocker })
	<-started
	_ = p.SubmitWait(context.Background(), func() {}) // fills the queue

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.SubmitWait(ctx, func() {}); err != context.DeadlineExceeded {
		t.Fatalf("SubmitWait err = %v, want deadline exceeded", err)
	}

	close(blocker)
	drain(t, p)
}
