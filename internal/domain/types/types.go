// Package types contains common types used across the application
package types

// Entry represents a leaderboard entry.
//
// Rank is the competition rank: 1 plus the number of users with strictly
// more XP, so tied users share a rank.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Level  int    `json:"level"`
}

// Less orders entries by XP descending, then user id ascending.
func Less(a, b Entry) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	return a.UserID < b.UserID
}
