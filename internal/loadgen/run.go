package loadgen

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/frameit/internal/domain/types"
	"github.com/okian/frameit/pkg/logger"
)

// Run executes one load run against cfg.BaseURL and verifies the outcome.
// Stats are returned alongside any verification error.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}

	log := logger.Get().Named("loadgen")
	start := time.Now()
	stats := &Stats{}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("runID", cfg.RunID),
		logger.Int("users", cfg.Users),
		logger.Int("events", cfg.Events),
		logger.Int("workers", cfg.Workers))

	if _, err := c.get(ctx, "/healthz", nil); err != nil {
		return stats, errors.Join(ErrUnhealthy, err)
	}

	users := userIDs(cfg.RunID, cfg.Users)
	if err := signUp(ctx, c, cfg.Workers, users); err != nil {
		return stats, err
	}
	stats.UsersCreated = len(users)

	events := generateEvents(&cfg, users)
	stats.EventsGenerated = len(events)

	submitStart := time.Now()
	expected, err := submit(ctx, c, cfg.Workers, events, stats)
	if err != nil {
		return stats, err
	}
	stats.SubmitDuration = time.Since(submitStart)
	for _, u := range users {
		if _, ok := expected[u]; !ok {
			expected[u] = 0
		}
	}
	log.Info(ctx, "events submitted",
		logger.Int("accepted", stats.EventsAccepted),
		logger.Int("duplicate", stats.EventsDuplicate),
		logger.Int("failed", stats.EventsFailed),
		logger.Duration("elapsed", stats.SubmitDuration))

	if err := awaitSettled(ctx, c, cfg, expected, stats); err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	var board []types.Entry
	if _, err := c.get(ctx, "/leaderboard?limit="+strconv.Itoa(cfg.TopN), &board); err != nil {
		return stats, fmt.Errorf("leaderboard: %w", err)
	}
	stats.LeaderboardSize = len(board)
	if err := verifyLeaderboard(board, expected); err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	stats.Duration = time.Since(start)
	log.Info(ctx, "load run verified",
		logger.Int("usersVerified", stats.UsersVerified),
		logger.Int("leaderboardSize", stats.LeaderboardSize),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

func signUp(ctx context.Context, c *client, workers int, users []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, id := range users {
		g.Go(func() error {
			body := map[string]string{"user_id": id, "display_name": id}
			if _, err := c.post(gctx, "/users", body, nil); err != nil {
				return fmt.Errorf("sign up %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// submit posts every event and returns the XP each user should end with,
// counting only events the service accepted.
func submit(ctx context.Context, c *client, workers int, events []event, stats *Stats) (map[string]int64, error) {
	var (
		mu       sync.Mutex
		expected = make(map[string]int64)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, e := range events {
		g.Go(func() error {
			status, err := c.post(gctx, "/xp-events", e, nil)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case status == http.StatusAccepted:
				stats.EventsAccepted++
				expected[e.UserID] += e.Amount
			case status == http.StatusOK:
				stats.EventsDuplicate++
			case status == http.StatusTooManyRequests:
				stats.EventsFailed++
			case err != nil:
				return fmt.Errorf("submit %s: %w", e.EventID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return expected, nil
}

// awaitSettled polls each user's rank until its XP matches expected or
// cfg.Settle elapses.
func awaitSettled(ctx context.Context, c *client, cfg Config, expected map[string]int64, stats *Stats) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Settle)
	defer cancel()

	pending := maps.Clone(expected)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		settled, err := pollRanks(ctx, c, cfg.Workers, pending)
		if err != nil && ctx.Err() == nil {
			return err
		}
		for _, id := range settled {
			delete(pending, id)
		}
		stats.UsersVerified = len(expected) - len(pending)
		if len(pending) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %d users did not reach their expected XP", ErrMismatch, len(pending))
		case <-ticker.C:
		}
	}
}

// pollRanks returns the ids in want whose ranked XP matches.
func pollRanks(ctx context.Context, c *client, workers int, want map[string]int64) ([]string, error) {
	var (
		mu      sync.Mutex
		settled []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for id, xp := range want {
		g.Go(func() error {
			var entry types.Entry
			if _, err := c.get(gctx, "/rank/"+id, &entry); err != nil {
				return fmt.Errorf("rank %s: %w", id, err)
			}
			if entry.XP == xp {
				mu.Lock()
				settled = append(settled, id)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	return settled, err
}
