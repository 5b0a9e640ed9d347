// Package votes implements the per-voter vote state machine and the
// reconciliation of denormalized vote counters.
//
// The per-voter map on a submission is the source of truth. Upvotes,
// Downvotes and VoteScore are a cache that Cast keeps in step and that
// ValidateAndFixVoteTally repairs when it has drifted.
package votes

import (
	"fmt"
	"strings"

	"github.com/okian/frameit/internal/domain/model"
)

// Transition names the state change a cast produced.
type Transition string

// Transitions between {none, upvoted, downvoted}.
const (
	Added   Transition = "added"
	Removed Transition = "removed"
	Flipped Transition = "flipped"
)

// Tally holds the counter triple.
type Tally struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	VoteScore int `json:"vote_score"`
}

// Result reports the outcome of a cast.
type Result struct {
	SubmissionID string         `json:"submission_id"`
	VoterID      string         `json:"voter_id"`
	Transition   Transition     `json:"transition"`
	Previous     model.VoteType `json:"previous,omitempty"` // empty when there was no prior vote
	Current      model.VoteType `json:"current,omitempty"`  // empty when the vote was removed
	ScoreDelta   int            `json:"score_delta"`
	Tally        Tally          `json:"tally"`
}

// Cast applies one vote by voterID to sub. Re-casting the same type removes
// the vote, casting the other type flips it, and a first cast adds it.
//
// Cast is not safe for concurrent use on the same submission; callers
// apply it inside an atomic read-modify-write.
func Cast(sub *model.Submission, voterID string, voteType model.VoteType) (Result, error) {
	if strings.TrimSpace(voterID) == "" {
		return Result{}, ErrMissingVoter
	}
	if !voteType.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidVoteType, voteType)
	}
	if sub.Votes == nil {
		sub.Votes = make(map[string]model.VoteType)
	}

	res := Result{SubmissionID: sub.ID, VoterID: voterID}
	before := sub.Upvotes - sub.Downvotes
	prev, had := sub.Votes[voterID]

	switch {
	case !had:
		sub.Votes[voterID] = voteType
		bump(sub, voteType, +1)
		res.Transition = Added
		res.Current = voteType
	case prev == voteType:
		delete(sub.Votes, voterID)
		bump(sub, voteType, -1)
		res.Transition = Removed
		res.Previous = prev
	default:
		sub.Votes[voterID] = voteType
		bump(sub, prev, -1)
		bump(sub, voteType, +1)
		res.Transition = Flipped
		res.Previous = prev
		res.Current = voteType
	}

	sub.VoteScore = sub.Upvotes - sub.Downvotes
	res.ScoreDelta = sub.VoteScore - before
	res.Tally = tallyOf(sub)
	return res, nil
}

func bump(sub *model.Submission, vt model.VoteType, by int) {
	switch vt {
	case model.Upvote:
		sub.Upvotes += by
	case model.Downvote:
		sub.Downvotes += by
	}
}

func tallyOf(sub *model.Submission) Tally {
	return Tally{Upvotes: sub.Upvotes, Downvotes: sub.Downvotes, VoteScore: sub.VoteScore}
}

// Recount derives the counters from a per-voter map. Unknown vote values
// are ignored and a nil map counts as no votes.
func Recount(votes map[string]model.VoteType) Tally {
	var t Tally
	for _, v := range votes {
		switch v {
		case model.Upvote:
			t.Upvotes++
		case model.Downvote:
			t.Downvotes++
		}
	}
	t.VoteScore = t.Upvotes - t.Downvotes
	return t
}

// Report is the outcome of a tally validation.
type Report struct {
	SubmissionID string   `json:"submission_id"`
	Fixed        bool     `json:"fixed"`
	Issues       []string `json:"issues"`
	Tally        Tally    `json:"tally"`
}

// ValidateAndFixVoteTally compares the stored counters on sub with a recount
// of its vote map and overwrites them when they disagree. It only ever moves
// the counters towards the map, so repeated runs are no-ops.
func ValidateAndFixVoteTally(sub *model.Submission) Report {
	actual := Recount(sub.Votes)
	rep := Report{SubmissionID: sub.ID, Issues: []string{}}

	check := func(field string, stored, want int) {
		if stored != want {
			rep.Issues = append(rep.Issues, fmt.Sprintf("%s mismatch: stored=%d, actual=%d", field, stored, want))
		}
	}
	check("upvotes", sub.Upvotes, actual.Upvotes)
	check("downvotes", sub.Downvotes, actual.Downvotes)
	check("voteScore", sub.VoteScore, actual.VoteScore)

	if len(rep.Issues) > 0 {
		sub.Upvotes = actual.Upvotes
		sub.Downvotes = actual.Downvotes
		sub.VoteScore = actual.VoteScore
		rep.Fixed = true
	}
	rep.Tally = tallyOf(sub)
	return rep
}
