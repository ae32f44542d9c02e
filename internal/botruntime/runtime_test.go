package botruntime

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunRequiresBridgeURL(t *testing.T) {
	if err := Run(context.Background(), Options{}); err == nil {
		t.Fatalf("Run() without bridge url: want error")
	}
}

func TestDispatcherKeepsConversationOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := newDispatcher(ctx, 2)

	const jobs = 20
	var (
		mu   sync.Mutex
		seen []int
		wg   sync.WaitGroup
	)
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		i := i
		d.enqueue("group-1", func(context.Context) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("jobs did not drain")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range seen {
		if got != i {
			t.Fatalf("job order = %v, want strict enqueue order", seen)
		}
	}
}

func TestDispatcherConversationsRunIndependently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := newDispatcher(ctx, 2)

	blockerStarted := make(chan struct{})
	release := make(chan struct{})
	d.enqueue("group-slow", func(context.Context) {
		close(blockerStarted)
		<-release
	})
	<-blockerStarted

	fastDone := make(chan struct{})
	d.enqueue("group-fast", func(context.Context) { close(fastDone) })

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatalf("independent conversation blocked behind another")
	}
	close(release)
}

func TestDispatcherStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := newDispatcher(ctx, 1)
	cancel()

	// Enqueue after cancel must not panic or block.
	done := make(chan struct{})
	go func() {
		d.enqueue("group-1", func(context.Context) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("enqueue blocked after context cancel")
	}
}
