package model

// QuestStatus is the lifecycle state of a quest.
type QuestStatus string

// Quest statuses.
const (
	QuestActive  QuestStatus = "active"
	QuestExpired QuestStatus = "expired"
	QuestDraft   QuestStatus = "draft"
)

// Quest is a location-bound photo challenge.
type Quest struct {
	ID       string      `json:"quest_id"`
	Title    string      `json:"title,omitempty"`
	Location string      `json:"location"`
	Category string      `json:"category"`
	XPReward int64       `json:"xp_reward"`
	MinLevel int         `json:"min_level"`
	Status   QuestStatus `json:"status"`
}

// DocumentTimestamp mirrors a document-store timestamp (seconds plus
// nanoseconds since the Unix epoch).
type DocumentTimestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int32 `json:"nanoseconds"`
}

// Discovery is a submission joined with the details of its quest, the
// input of gallery statistics.
//
// Timestamp may hold any of the representations accepted by
// stats.NormalizeTimestamp: a document timestamp, a native date or a
// numeric epoch in milliseconds.
type Discovery struct {
	SubmissionID string `json:"submission_id"`
	QuestID      string `json:"quest_id"`
	Location     string `json:"location"`
	Category     string `json:"category"`
	XP           int64  `json:"xp"`
	Timestamp    any    `json:"timestamp"`
}
