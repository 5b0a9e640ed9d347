package loadgen

import (
	"fmt"

	"github.com/okian/frameit/internal/domain/types"
)

// verifyLeaderboard checks ordering and competition ranks, and that every
// board entry generated by this run carries the expected XP.
func verifyLeaderboard(board []types.Entry, expected map[string]int64) error {
	for i, e := range board {
		if want, ok := expected[e.UserID]; ok && e.XP != want {
			return fmt.Errorf("%w: %s has %d XP on the leaderboard, want %d", ErrMismatch, e.UserID, e.XP, want)
		}
		if i == 0 {
			if e.Rank != 1 {
				return fmt.Errorf("%w: first entry has rank %d", ErrMismatch, e.Rank)
			}
			continue
		}

		prev := board[i-1]
		switch {
		case e.XP > prev.XP:
			return fmt.Errorf("%w: entry %d (%d XP) above entry %d (%d XP)", ErrMismatch, i, e.XP, i-1, prev.XP)
		case e.XP == prev.XP && e.UserID < prev.UserID:
			return fmt.Errorf("%w: tied entries %s and %s out of id order", ErrMismatch, prev.UserID, e.UserID)
		case e.XP == prev.XP && e.Rank != prev.Rank:
			return fmt.Errorf("%w: tied entries %s and %s ranked %d and %d", ErrMismatch, prev.UserID, e.UserID, prev.Rank, e.Rank)
		case e.XP < prev.XP && e.Rank != i+1:
			return fmt.Errorf("%w: entry %d ranked %d, want %d", ErrMismatch, i, e.Rank, i+1)
		case e.Level > prev.Level:
			return fmt.Errorf("%w: %s has level %d above %s at level %d", ErrMismatch, e.UserID, e.Level, prev.UserID, prev.Level)
		}
	}
	return nil
}
