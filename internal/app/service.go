// Package service wires the progression engine to storage, the XP event
// pipeline and the repair sweep. It implements the dependencies required by
// the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/frameit/internal/adapters/mq/queue"
	workerpool "github.com/okian/frameit/internal/adapters/mq/worker"
	repository "github.com/okian/frameit/internal/adapters/repository"
	"github.com/okian/frameit/internal/domain/dedupe"
	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/progression"
	"github.com/okian/frameit/pkg/logger"
	"github.com/okian/frameit/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultQueueSize      = 100_000
	defaultDedupeSize     = 50_000
	defaultUpvoteReward   = 5
	defaultRepairInterval = 10 * time.Minute
)

// Service implements the API dependencies for the progression backend.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Gateway
	deduper dedupe.Deduper
	queue   eventqueue.Queue
	pool    *workerpool.Pool
	curve   *progression.Curve

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	upvoteReward   int64
	repairInterval time.Duration
	maxTeamMembers int
	now            func() time.Time

	// State
	started   bool
	stopped   bool
	stopCh    chan struct{}
	sweepDone chan struct{}

	logger logger.Logger
}

// New constructs a new Service. Storage and the queue default to the
// in-memory implementations; both are usable before Start so records can
// be seeded.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      defaultQueueSize,
		dedupeSize:     defaultDedupeSize,
		upvoteReward:   defaultUpvoteReward,
		repairInterval: defaultRepairInterval,
		maxTeamMembers: model.DefaultMaxTeamMembers,
		now:            time.Now,
		stopCh:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.curve == nil {
		s.curve = progression.Default()
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(repository.WithClock(s.now))
	}
	if s.queue == nil {
		s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Start starts the worker pool and, when configured, the repair sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrServiceStopped
	}
	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting progression service...")

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(ctx)

	if s.repairInterval > 0 {
		s.sweepDone = make(chan struct{})
		go s.sweepLoop(ctx, s.repairInterval)
	}

	s.started = true
	s.logger.Info(ctx, "progression service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("repairInterval", s.repairInterval),
	)
	return nil
}

// Stop drains the queue, stops the workers and the sweep, then closes the
// store. A stopped service cannot be restarted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping progression service...")

	close(s.stopCh)
	if s.sweepDone != nil {
		<-s.sweepDone
	}

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "error closing store", logger.Error(err))
	}

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "progression service stopped",
		logger.Int64("processed", s.pool.Processed()),
		logger.Int64("failed", s.pool.Failed()),
	)
}

// sweepLoop runs RepairAll on every tick until Stop or ctx cancellation.
func (s *Service) sweepLoop(ctx context.Context, every time.Duration) {
	defer close(s.sweepDone)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			rep, err := s.RepairAll(ctx)
			if err != nil {
				s.logger.Error(ctx, "vote tally sweep failed", logger.Error(err))
				continue
			}
			s.logger.Debug(ctx, "vote tally sweep finished",
				logger.Int("checked", rep.Checked),
				logger.Int("fixed", rep.Fixed),
			)
		}
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"dedupeSize":     s.dedupeSize,
		"dedupeEntries":  s.deduper.Size(),
		"upvoteReward":   s.upvoteReward,
		"repairInterval": s.repairInterval.String(),
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		totalUsers := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["totalUsers"] = totalUsers
		stats["processed"] = s.pool.Processed()
		stats["failed"] = s.pool.Failed()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateTotalUsers(totalUsers)
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	return s.deduper.Size()
}
