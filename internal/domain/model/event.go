// Package model contains domain models passed between layers.
package model

import "time"

// Award reasons carried by XPEvent.Reason.
const (
	ReasonQuestCompleted = "quest_completed"
	ReasonUpvoteReceived = "upvote_received"
	ReasonManual         = "manual"
)

// XPEvent is a request to award XP to a user. It is the payload that flows
// through the award queue and is applied by the worker pool.
type XPEvent struct {
	EventID string    `json:"event_id"` // unique id for idempotency
	UserID  string    `json:"user_id"`  // recipient
	Amount  int64     `json:"amount"`   // XP to add; 0 means "use the quest reward"
	Reason  string    `json:"reason"`   // one of the Reason* constants
	QuestID string    `json:"quest_id,omitempty"`
	TS      time.Time `json:"ts"`
}
