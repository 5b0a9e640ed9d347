// Package progression implements the XP to level curve and the pure
// operations that move a user along it.
package progression

import (
	"fmt"
	"math"

	"github.com/okian/frameit/internal/domain/model"
)

// Default curve configuration constants.
const (
	DefaultBaseXP = 500
	DefaultGrowth = 1.3
	// MaxLevel bounds the threshold walk. The default curve reaches about
	// level 140 at the largest representable XP.
	MaxLevel = 10_000

	maxPercentage = 100
)

// DefaultMilestones are the levels that grant a "level_<n>" achievement.
var DefaultMilestones = []int{5, 10, 25, 50} //nolint:gochecknoglobals // read-only defaults

// Option applies a configuration option to a Curve.
type Option func(*Curve)

// WithBaseXP sets the XP needed to leave level 1 and the base of every
// later increment.
func WithBaseXP(base int64) Option {
	return func(c *Curve) {
		if base > 0 {
			c.baseXP = float64(base)
		}
	}
}

// WithGrowth sets the per-level compounding factor. The factor must be
// above 1 for thresholds to outgrow any XP total; other values are ignored.
func WithGrowth(growth float64) Option {
	return func(c *Curve) {
		if growth > 1 && !math.IsInf(growth, 0) {
			c.growth = growth
		}
	}
}

// WithMilestones sets the levels that grant milestone achievements.
func WithMilestones(levels ...int) Option {
	return func(c *Curve) {
		ms := make([]int, 0, len(levels))
		for _, l := range levels {
			if l > 1 {
				ms = append(ms, l)
			}
		}
		c.milestones = ms
	}
}

// Curve maps XP to levels. A Curve is immutable after construction and safe
// for concurrent use.
type Curve struct {
	baseXP     float64
	growth     float64
	milestones []int
}

// NewCurve creates a curve with the given options applied over the defaults.
func NewCurve(opts ...Option) *Curve {
	c := &Curve{
		baseXP:     DefaultBaseXP,
		growth:     DefaultGrowth,
		milestones: append([]int(nil), DefaultMilestones...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCurve = NewCurve() //nolint:gochecknoglobals // immutable default curve

// Default returns the shared curve with default parameters.
func Default() *Curve { return defaultCurve }

// Progress describes where an XP total sits between two levels.
type Progress struct {
	Level              int     `json:"level"`
	NextLevel          int     `json:"next_level"`
	ProgressPercentage float64 `json:"progress_percentage"`
	RemainingXP        int64   `json:"remaining_xp"`
	// LevelStartXP and NextLevelXP are the thresholds around the current level.
	LevelStartXP float64 `json:"level_start_xp"`
	NextLevelXP  float64 `json:"next_level_xp"`
}

// ClampXP applies the invalid-input policy: negative XP counts as zero.
func ClampXP(xp int64) int64 {
	if xp < 0 {
		return 0
	}
	return xp
}

// walk runs the threshold loop. Each step adds baseXP * growth^(level-1)
// using the level just entered, so thresholds accelerate. The walk stops at
// MaxLevel or once the next threshold no longer grows in float64.
func (c *Curve) walk(xp int64) (level int, prevRequired, required float64) {
	x := float64(ClampXP(xp))
	level = 1
	required = c.baseXP
	for x >= required && level < MaxLevel {
		next := required + c.baseXP*math.Pow(c.growth, float64(level))
		if next <= required {
			break
		}
		level++
		prevRequired = required
		required = next
	}
	return level, prevRequired, required
}

// Level returns the level for an XP total. Always >= 1.
func (c *Curve) Level(xp int64) int {
	level, _, _ := c.walk(xp)
	return level
}

// Progress returns the progress towards the next level.
func (c *Curve) Progress(xp int64) Progress {
	x := float64(ClampXP(xp))
	level, prev, required := c.walk(xp)

	pct := (x - prev) / (required - prev) * maxPercentage
	pct = math.Max(0, math.Min(maxPercentage, pct))

	remaining := math.Round(required - x)
	if remaining < 0 {
		remaining = 0
	}

	return Progress{
		Level:              level,
		NextLevel:          level + 1,
		ProgressPercentage: pct,
		RemainingXP:        int64(remaining),
		LevelStartXP:       prev,
		NextLevelXP:        required,
	}
}

// CalculateLevel returns the level for xp on the default curve.
func CalculateLevel(xp int64) int { return defaultCurve.Level(xp) }

// GetLevelProgress returns level progress for xp on the default curve.
func GetLevelProgress(xp int64) Progress { return defaultCurve.Progress(xp) }

// AwardResult reports the effect of applying an XP gain to a user.
type AwardResult struct {
	UserID          string   `json:"user_id"`
	Gained          int64    `json:"gained"`
	XP              int64    `json:"xp"`
	PreviousLevel   int      `json:"previous_level"`
	Level           int      `json:"level"`
	LevelChanged    bool     `json:"level_changed"`
	NewAchievements []string `json:"new_achievements,omitempty"`
}

// Award adds amount XP to u, recomputes the cached level and grants any
// milestone achievements reached. Negative amounts are clamped to zero.
func (c *Curve) Award(u *model.User, amount int64) AwardResult {
	amount = ClampXP(amount)
	prevLevel := u.Level

	xp := ClampXP(u.XP)
	if amount > math.MaxInt64-xp {
		xp = math.MaxInt64
	} else {
		xp += amount
	}
	u.XP = xp
	c.Recompute(u)

	res := AwardResult{
		UserID:        u.ID,
		Gained:        amount,
		XP:            u.XP,
		PreviousLevel: prevLevel,
		Level:         u.Level,
		LevelChanged:  u.Level != prevLevel,
	}
	for _, m := range c.milestones {
		if u.Level >= m && u.AddAchievement(MilestoneAchievement(m)) {
			res.NewAchievements = append(res.NewAchievements, MilestoneAchievement(m))
		}
	}
	return res
}

// Recompute refreshes u.Level from u.XP. It returns true when the cached
// level was stale. Safe to call any number of times.
func (c *Curve) Recompute(u *model.User) bool {
	level := c.Level(u.XP)
	if u.Level == level {
		return false
	}
	u.Level = level
	return true
}

// Reset is the explicit admin reset: XP back to zero, level back to 1.
// Achievements are kept.
func (c *Curve) Reset(u *model.User) {
	u.XP = 0
	u.Level = 1
}

// CanAttempt reports whether a user at level may attempt quest q.
func CanAttempt(level int, q model.Quest) bool {
	return q.Status == model.QuestActive && level >= q.MinLevel
}

// MilestoneAchievement returns the achievement id granted at level.
func MilestoneAchievement(level int) string {
	return fmt.Sprintf("level_%d", level)
}
