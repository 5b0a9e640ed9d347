package service

import (
	"time"

	eventqueue "github.com/okian/frameit/internal/adapters/mq/queue"
	repository "github.com/okian/frameit/internal/adapters/repository"
	"github.com/okian/frameit/internal/domain/progression"
	"github.com/okian/frameit/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the in-memory event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache. Zero or less
// keeps every id.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGateway replaces the default in-memory store.
func WithGateway(g repository.Gateway) Option {
	return func(s *Service) {
		if g != nil {
			s.store = g
		}
	}
}

// WithQueue replaces the default in-memory queue.
func WithQueue(q eventqueue.Queue) Option {
	return func(s *Service) {
		if q != nil {
			s.queue = q
		}
	}
}

// WithCurve sets the level curve.
func WithCurve(c *progression.Curve) Option {
	return func(s *Service) {
		if c != nil {
			s.curve = c
		}
	}
}

// WithUpvoteReward sets the XP an author receives for a voter's first
// upvote on a submission. Zero disables the reward.
func WithUpvoteReward(xp int64) Option {
	return func(s *Service) {
		if xp >= 0 {
			s.upvoteReward = xp
		}
	}
}

// WithRepairInterval schedules the vote tally sweep. Zero disables it.
func WithRepairInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.repairInterval = d
		}
	}
}

// WithMaxTeamMembers sets the limit given to teams stored without one.
func WithMaxTeamMembers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTeamMembers = n
		}
	}
}

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
