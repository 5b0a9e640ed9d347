// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Backends accepted by Store and QueueBackend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// QueueBackend is memory or redis.
	QueueBackend string `koanf:"queue_backend"`
	// QueueSize bounds the XP event queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of XP workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the event id tracker; 0 or less is unbounded.
	DedupeSize int `koanf:"dedupe_size"`

	// Store is memory or postgres.
	Store            string `koanf:"store"`
	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int32  `koanf:"postgres_max_conns"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisQueueKey string `koanf:"redis_queue_key"`

	// BaseXP and GrowthFactor shape the level curve.
	BaseXP       int64   `koanf:"base_xp"`
	GrowthFactor float64 `koanf:"growth_factor"`
	// LevelMilestones are the levels that grant a level_<n> achievement.
	LevelMilestones []int `koanf:"level_milestones"`

	// MaxTeamMembers applies to teams stored without their own limit.
	MaxTeamMembers int `koanf:"max_team_members"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
	// UpvoteXPReward is granted to a submission author for a new upvote; 0 disables it.
	UpvoteXPReward int64 `koanf:"upvote_xp_reward"`
	// RepairInterval schedules the vote tally sweep; 0 disables it.
	RepairInterval time.Duration `koanf:"repair_interval"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		ShutdownTimeout:     10 * time.Second,
		QueueBackend:        BackendMemory,
		QueueSize:           100_000,
		WorkerCount:         runtime.NumCPU() * 4,
		DedupeSize:          500_000,
		Store:               BackendMemory,
		PostgresMaxConns:    10,
		RedisAddr:           "localhost:6379",
		RedisQueueKey:       "frameit:xp-events",
		BaseXP:              500,
		GrowthFactor:        1.3,
		LevelMilestones:     []int{5, 10, 25, 50},
		MaxTeamMembers:      10,
		MaxLeaderboardLimit: 100,
		UpvoteXPReward:      5,
		RepairInterval:      10 * time.Minute,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case c.QueueSize < 1:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.BaseXP < 1:
		return invalid("base_xp must be positive, got %d", c.BaseXP)
	case !(c.GrowthFactor > 1):
		return invalid("growth_factor must be greater than 1, got %v", c.GrowthFactor)
	case c.MaxLeaderboardLimit < 1:
		return invalid("max_leaderboard_limit must be positive, got %d", c.MaxLeaderboardLimit)
	case c.MaxTeamMembers < 1:
		return invalid("max_team_members must be positive, got %d", c.MaxTeamMembers)
	case c.UpvoteXPReward < 0:
		return invalid("upvote_xp_reward must not be negative, got %d", c.UpvoteXPReward)
	case c.RepairInterval < 0:
		return invalid("repair_interval must not be negative, got %s", c.RepairInterval)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	}

	switch c.Store {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return invalid("postgres_dsn is required for the postgres store")
		}
	default:
		return invalid("store must be memory or postgres, got %q", c.Store)
	}

	switch c.QueueBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return invalid("redis_addr is required for the redis queue")
		}
	default:
		return invalid("queue_backend must be memory or redis, got %q", c.QueueBackend)
	}
	return nil
}
