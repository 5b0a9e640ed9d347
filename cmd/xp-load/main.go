// Command xp-load drives a running service with XP events and verifies the
// resulting ranks and leaderboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/frameit/internal/loadgen"
	"github.com/okian/frameit/pkg/logger"
)

const (
	defaultWorkers = 2 // multiplier for runtime.NumCPU()
	runTimeout     = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users     = flag.Int("users", loadgen.DefaultUsers, "Number of users to sign up")
		events    = flag.Int("events", loadgen.DefaultEvents, "Number of events to submit")
		maxAmount = flag.Int64("max-amount", loadgen.DefaultMaxAmount, "Largest XP amount per event")
		dupRatio  = flag.Float64("duplicates", loadgen.DefaultDuplicateRatio, "Share of events resent with a used id")
		topN      = flag.Int("top", loadgen.DefaultTopN, "Leaderboard entries to verify")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent requests")
		timeout   = flag.Duration("timeout", loadgen.DefaultTimeout, "HTTP request timeout")
		settle    = flag.Duration("settle", loadgen.DefaultSettle, "How long to wait for events to apply")
		seed      = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		runID     = flag.String("run-id", "", "User id prefix (random when empty)")
		format    = flag.String("log-format", logger.FormatText, "Log format: text or json")
		verbose   = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.WithLevel(level), logger.WithFormat(*format)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	stats, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:        *baseURL,
		RunID:          *runID,
		Users:          *users,
		Events:         *events,
		MaxAmount:      *maxAmount,
		DuplicateRatio: *dupRatio,
		TopN:           *topN,
		Workers:        *workers,
		Timeout:        *timeout,
		Settle:         *settle,
		Seed:           *seed,
	})
	if stats != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(stats)
	}
	if err != nil {
		logger.Get().Error(ctx, "load run failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
