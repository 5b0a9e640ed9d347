// Package loadgen drives a running progression service over HTTP: it signs
// up a batch of users, submits XP events concurrently (with deliberate
// duplicates), and verifies the resulting ranks and leaderboard.
package loadgen

import (
	"errors"
	"time"
)

// Default run parameters.
const (
	DefaultUsers          = 100
	DefaultEvents         = 10_000
	DefaultTopN           = 50
	DefaultMaxAmount      = 250
	DefaultDuplicateRatio = 0.05
	DefaultTimeout        = 30 * time.Second
	DefaultSettle         = 30 * time.Second
)

const pollInterval = 100 * time.Millisecond

// Error constants.
var (
	ErrInvalidConfig = errors.New("invalid load config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrMismatch      = errors.New("verification mismatch")
)

// Config holds the parameters of one load run.
type Config struct {
	BaseURL        string
	RunID          string // prefixes generated user ids; random when empty
	Users          int
	Events         int
	MaxAmount      int64
	DuplicateRatio float64 // share of events resent with an already used id
	TopN           int
	Workers        int
	Timeout        time.Duration // per request
	Settle         time.Duration // how long to wait for queued events to apply
	Seed           uint64
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is required"))
	case c.Users < 1:
		return errors.Join(ErrInvalidConfig, errors.New("users must be at least 1"))
	case c.Events < 0:
		return errors.Join(ErrInvalidConfig, errors.New("events must not be negative"))
	case c.MaxAmount < 1:
		return errors.Join(ErrInvalidConfig, errors.New("max amount must be at least 1"))
	case c.DuplicateRatio < 0 || c.DuplicateRatio >= 1:
		return errors.Join(ErrInvalidConfig, errors.New("duplicate ratio must be in [0, 1)"))
	case c.TopN < 1:
		return errors.Join(ErrInvalidConfig, errors.New("top must be at least 1"))
	case c.Workers < 1:
		return errors.Join(ErrInvalidConfig, errors.New("workers must be at least 1"))
	}
	return nil
}

// Stats summarises a run.
type Stats struct {
	UsersCreated    int           `json:"users_created"`
	EventsGenerated int           `json:"events_generated"`
	EventsAccepted  int           `json:"events_accepted"`
	EventsDuplicate int           `json:"events_duplicate"`
	EventsFailed    int           `json:"events_failed"`
	UsersVerified   int           `json:"users_verified"`
	LeaderboardSize int           `json:"leaderboard_size"`
	SubmitDuration  time.Duration `json:"submit_duration"`
	Duration        time.Duration `json:"duration"`
}
