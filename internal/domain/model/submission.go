package model

import "time"

// VoteType is the value stored per voter in Submission.Votes.
type VoteType string

// Vote types.
const (
	Upvote   VoteType = "upvote"
	Downvote VoteType = "downvote"
)

// Valid reports whether v is a known vote type.
func (v VoteType) Valid() bool {
	return v == Upvote || v == Downvote
}

// Submission is a user's photo entry for a quest.
//
// Votes (one entry per voter) is authoritative. Upvotes, Downvotes and
// VoteScore are denormalized counters kept for cheap reads.
type Submission struct {
	ID        string              `json:"submission_id"`
	UserID    string              `json:"user_id"`
	QuestID   string              `json:"quest_id"`
	Votes     map[string]VoteType `json:"votes"`
	Upvotes   int                 `json:"upvotes"`
	Downvotes int                 `json:"downvotes"`
	VoteScore int                 `json:"vote_score"`
	CreatedAt time.Time           `json:"created_at"`
}

// Clone returns a deep copy.
func (s Submission) Clone() Submission {
	c := s
	if s.Votes != nil {
		c.Votes = make(map[string]VoteType, len(s.Votes))
		for k, v := range s.Votes {
			c.Votes[k] = v
		}
	}
	return c
}

// Completion records that a user finished a quest. (UserID, QuestID) is unique.
type Completion struct {
	UserID      string    `json:"user_id"`
	QuestID     string    `json:"quest_id"`
	CompletedAt time.Time `json:"completed_at"`
}
