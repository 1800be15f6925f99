package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openjdk/jmerge/internal/types"
)

// fakeRunner records concurrent executions per pull request identity.
type fakeRunner struct {
	mu         sync.Mutex
	running    map[types.PullRequestID]int
	maxPerKey  int
	totalRuns  int32
	delay      time.Duration
	failFirst  map[types.PullRequestID]bool
}

func newFakeRunner(delay time.Duration) *fakeRunner {
	return &fakeRunner{
		running:   map[types.PullRequestID]int{},
		delay:     delay,
		failFirst: map[types.PullRequestID]bool{},
	}
}

func (r *fakeRunner) RunPullRequest(ctx context.Context, id types.PullRequestID) error {
	r.mu.Lock()
	r.running[id]++
	if r.running[id] > r.maxPerKey {
		r.maxPerKey = r.running[id]
	}
	fail := r.failFirst[id]
	delete(r.failFirst, id)
	r.mu.Unlock()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	atomic.AddInt32(&r.totalRuns, 1)

	r.mu.Lock()
	r.running[id]--
	r.mu.Unlock()

	if fail {
		return context.DeadlineExceeded
	}
	return nil
}

func prID(n int) types.PullRequestID {
	return types.PullRequestID{
		Repo:   types.RepositoryName{Owner: "test", Name: "repo"},
		Number: n,
	}
}

func TestPerIdentitySerialization(t *testing.T) {
	runner := newFakeRunner(10 * time.Millisecond)
	s := New(Config{Workers: 4, ItemTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	for i := 0; i < 20; i++ {
		s.Enqueue(Item{Bot: runner, PR: prID(1)})
		s.Enqueue(Item{Bot: runner, PR: prID(2)})
	}

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.LessOrEqual(t, runner.maxPerKey, 1, "same identity ran concurrently")
}

func TestEnqueueCoalesces(t *testing.T) {
	runner := newFakeRunner(0)
	s := New(Config{Workers: 1, ItemTimeout: time.Second})

	// Enqueue the same identity many times before any worker starts.
	for i := 0; i < 10; i++ {
		s.Enqueue(Item{Bot: runner, PR: prID(1)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.totalRuns))
}

func TestFailedItemIsRequeued(t *testing.T) {
	runner := newFakeRunner(0)
	runner.failFirst[prID(1)] = true
	s := New(Config{Workers: 1, ItemTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Enqueue(Item{Bot: runner, PR: prID(1)})
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runner.totalRuns), int32(2))
}

func TestDrainFinishesQueuedWork(t *testing.T) {
	runner := newFakeRunner(5 * time.Millisecond)
	s := New(Config{Workers: 2, ItemTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 1; i <= 6; i++ {
		s.Enqueue(Item{Bot: runner, PR: prID(i)})
	}
	// Give workers a moment to claim work, then drain.
	time.Sleep(20 * time.Millisecond)
	s.Drain()

	assert.Equal(t, int32(6), atomic.LoadInt32(&runner.totalRuns))
}
