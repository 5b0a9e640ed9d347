package repository

import (
	"math/rand/v2"

	"github.com/okian/frameit/internal/domain/types"
)

// Treap ordered by XP DESC, then user id ASC.
//
// "less" means ranks earlier, so in-order traversal yields the leaderboard
// from best to worst. Subtree sizes give O(log n) expected rank queries.

type node struct {
	id    string
	xp    int64
	level int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aXP, aID) should appear before (bXP, bID).
func less(aXP int64, aID string, bXP int64, bID string) bool {
	if aXP != bXP {
		return aXP > bXP
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, xp int64, level int) *node {
	if n == nil {
		return &node{id: id, xp: xp, level: level, prio: rand.Uint64(), size: 1}
	}
	if less(xp, id, n.xp, n.id) {
		n.left = insert(n.left, id, xp, level)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, xp, level)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, xp int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case xp == n.xp && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, xp)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, xp)
		}
	case less(xp, id, n.xp, n.id):
		n.left = deleteNode(n.left, id, xp)
	default:
		n.right = deleteNode(n.right, id, xp)
	}
	fix(n)
	return n
}

// countAbove returns the number of nodes with XP strictly greater than xp.
func countAbove(n *node, xp int64) int {
	count := 0
	for n != nil {
		if n.xp > xp {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.Entry{UserID: n.id, XP: n.xp, Level: n.level})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// assignCompetitionRanks sets Rank on a prefix of the global ordering:
// equal XP shares a rank and the next distinct XP skips ahead.
func assignCompetitionRanks(entries []types.Entry) {
	for i := range entries {
		if i > 0 && entries[i].XP == entries[i-1].XP {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
