// Package scheduler runs pull request work items on a bounded worker pool
// with at-most-one concurrent worker per pull request identity.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openjdk/jmerge/internal/types"
	"github.com/openjdk/jmerge/pkg/clock"
	"github.com/openjdk/jmerge/pkg/logger"
)

// Runner reconciles one pull request. Implemented by bot.Bot.
type Runner interface {
	RunPullRequest(ctx context.Context, id types.PullRequestID) error
}

// Item is one unit of work: reconcile one pull request of one bot.
type Item struct {
	Bot Runner
	PR  types.PullRequestID
}

// Config configures the scheduler.
type Config struct {
	Workers     int
	ItemTimeout time.Duration
	Clock       clock.Clock
	Logger      *logger.Logger
	Metrics     *Metrics
}

// Scheduler dispatches work items to a worker pool. Items with the same
// pull request identity never run concurrently; enqueueing an identity that
// is already pending coalesces into a single run.
type Scheduler struct {
	workers     int
	itemTimeout time.Duration
	clk         clock.Clock
	log         *logger.Logger
	metrics     *Metrics

	mu       sync.Mutex
	cond     *sync.Cond
	pending  map[types.PullRequestID]Item
	order    []types.PullRequestID
	active   map[types.PullRequestID]bool
	draining bool

	wg sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = 10 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.GetGlobalLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}

	s := &Scheduler{
		workers:     cfg.Workers,
		itemTimeout: cfg.ItemTimeout,
		clk:         cfg.Clock,
		log:         cfg.Logger.WithPrefix("scheduler"),
		metrics:     cfg.Metrics,
		pending:     map[types.PullRequestID]Item{},
		active:      map[types.PullRequestID]bool{},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Enqueue adds a work item. An item for an identity already queued replaces
// the queued one; an identity currently running is queued for another run.
func (s *Scheduler) Enqueue(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.draining {
		return
	}
	if _, queued := s.pending[item.PR]; !queued {
		s.order = append(s.order, item.PR)
	}
	s.pending[item.PR] = item
	s.metrics.QueueDepth.Set(float64(len(s.pending)))
	s.cond.Broadcast()
}

// Run starts the worker pool and blocks until the context is cancelled and
// all in-flight items have finished.
func (s *Scheduler) Run(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	<-ctx.Done()
	s.mu.Lock()
	s.draining = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}

// Drain stops intake and waits for queued work to finish. Used for ordered
// shutdown when the process wants to finish outstanding items first.
func (s *Scheduler) Drain() {
	s.mu.Lock()
	s.draining = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		item, ok := s.next()
		if !ok {
			return
		}
		s.runItem(ctx, item)
	}
}

// next claims a runnable item: pending, with its identity not active. Blocks
// until one is available, and returns false when draining with nothing left.
func (s *Scheduler) next() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		for i, id := range s.order {
			if s.active[id] {
				continue
			}
			item, ok := s.pending[id]
			if !ok {
				continue
			}
			delete(s.pending, id)
			s.order = append(s.order[:i], s.order[i+1:]...)
			s.active[id] = true
			s.metrics.QueueDepth.Set(float64(len(s.pending)))
			return item, true
		}
		if s.draining {
			return Item{}, false
		}
		s.cond.Wait()
	}
}

// runItem executes one work item under the per-item timeout. A failed or
// timed-out item is re-enqueued; a panic terminates only this item.
func (s *Scheduler) runItem(ctx context.Context, item Item) {
	s.metrics.ActiveWorkers.Inc()
	started := s.clk.Now()

	defer func() {
		s.metrics.ActiveWorkers.Dec()
		s.metrics.ItemDuration.Observe(s.clk.Since(started).Seconds())

		if r := recover(); r != nil {
			s.metrics.ItemFailures.Inc()
			s.log.Error("%s: work item panic: %v", item.PR, r)
		}

		s.mu.Lock()
		delete(s.active, item.PR)
		s.cond.Broadcast()
		s.mu.Unlock()
	}()

	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	runID := uuid.NewString()[:8]
	s.metrics.ItemsTotal.Inc()
	err := item.Bot.RunPullRequest(itemCtx, item.PR)
	switch {
	case err == nil:
	case itemCtx.Err() != nil:
		s.metrics.ItemFailures.Inc()
		s.log.Warn("%s [%s]: work item timed out, rescheduling", item.PR, runID)
		s.requeue(item)
	default:
		s.metrics.ItemFailures.Inc()
		s.log.Warn("%s [%s]: work item failed: %v", item.PR, runID, err)
		s.requeue(item)
	}
}

func (s *Scheduler) requeue(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return
	}
	if _, queued := s.pending[item.PR]; !queued {
		s.order = append(s.order, item.PR)
		s.pending[item.PR] = item
	}
	s.cond.Broadcast()
}
