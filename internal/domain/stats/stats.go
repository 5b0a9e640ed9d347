// Package stats computes team and gallery aggregates from record snapshots.
//
// Every function here is a pure fold over its input: nothing is cached and
// results are safe to recompute as often as a caller needs.
package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/okian/frameit/internal/domain/model"
)

// NoDataYet is the BestMonth value when there are no discoveries.
const NoDataYet = "No data yet"

// TeamStats is the derived, never persisted, view of a team.
type TeamStats struct {
	TotalXP         int64   `json:"total_xp"`
	AverageLevel    float64 `json:"average_level"`
	CompletedQuests int     `json:"completed_quests"`
	ActiveMembers   int     `json:"active_members"`
}

// CalculateTeamStats folds the current member snapshot into TeamStats.
// AverageLevel is rounded to one decimal, half away from zero.
func CalculateTeamStats(members []model.User, completedQuestCount int) TeamStats {
	out := TeamStats{
		CompletedQuests: completedQuestCount,
		ActiveMembers:   len(members),
	}
	if len(members) == 0 {
		return out
	}

	var levelSum int64
	for _, m := range members {
		out.TotalXP += m.XP
		levelSum += int64(m.Level)
	}
	mean := float64(levelSum) / float64(len(members))
	out.AverageLevel = math.Round(mean*10) / 10
	return out
}

// Gallery summarises a user's discoveries.
type Gallery struct {
	TotalDiscoveries int    `json:"total_discoveries"`
	TotalXP          int64  `json:"total_xp"`
	UniqueLocations  int    `json:"unique_locations"`
	FavoriteCategory string `json:"favorite_category"`
	ThisMonthCount   int    `json:"this_month_count"`
	BestMonth        string `json:"best_month"`
}

// counter keeps counts together with first-seen order so ties resolve
// deterministically to the key encountered first.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// top returns the key with the highest count; the first-encountered key
// wins ties.
func (c *counter) top() (string, bool) {
	best, bestCount := "", 0
	for _, k := range c.order {
		if n := c.counts[k]; n > bestCount {
			best, bestCount = k, n
		}
	}
	return best, bestCount > 0
}

// CalculateUserGalleryStats folds discoveries into Gallery. now fixes the
// current calendar month and the location used to bucket timestamps.
func CalculateUserGalleryStats(discoveries []model.Discovery, now time.Time) Gallery {
	out := Gallery{
		TotalDiscoveries: len(discoveries),
		BestMonth:        NoDataYet,
	}
	if len(discoveries) == 0 {
		return out
	}

	loc := now.Location()
	locations := make(map[string]struct{}, len(discoveries))
	categories := newCounter()
	months := newCounter()

	for _, d := range discoveries {
		out.TotalXP += d.XP
		locations[d.Location] = struct{}{}
		if d.Category != "" {
			categories.add(d.Category)
		}

		ms, ok := NormalizeTimestamp(d.Timestamp)
		if !ok {
			continue
		}
		ts := time.UnixMilli(ms).In(loc)
		if ts.Year() == now.Year() && ts.Month() == now.Month() {
			out.ThisMonthCount++
		}
		months.add(monthLabel(ts))
	}

	out.UniqueLocations = len(locations)
	out.FavoriteCategory, _ = categories.top()
	if best, ok := months.top(); ok {
		out.BestMonth = best
	}
	return out
}

// monthLabel formats a month as "January 2024".
func monthLabel(t time.Time) string {
	return fmt.Sprintf("%s %d", t.Month().String(), t.Year())
}
