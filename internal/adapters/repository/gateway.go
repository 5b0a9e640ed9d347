// Package repository is the persistence gateway for progression records.
//
// Every mutation is an atomic read-modify-write: UpdateUser and
// UpdateSubmission hand the caller a copy of the current record under a
// lock (or a row lock in Postgres) and store whatever the callback leaves
// behind. Engine logic runs inside those callbacks and never sees
// concurrent writers.
package repository

import (
	"context"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/types"
)

// UserStore persists user progression records.
type UserStore interface {
	// CreateUser inserts u and returns ErrAlreadyExists when the id is taken.
	CreateUser(ctx context.Context, u model.User) error
	PutUser(ctx context.Context, u model.User) error
	// GetUser returns ErrNotFound for unknown ids.
	GetUser(ctx context.Context, id string) (model.User, error)
	// UpdateUser applies fn to the stored user atomically. When fn returns an
	// error nothing is written and the error is returned unchanged.
	UpdateUser(ctx context.Context, id string, fn func(*model.User) error) (model.User, error)
}

// TeamStore persists teams and their membership.
type TeamStore interface {
	// CreateTeam inserts t and returns ErrAlreadyExists when the id is taken.
	CreateTeam(ctx context.Context, t model.Team) error
	PutTeam(ctx context.Context, t model.Team) error
	GetTeam(ctx context.Context, id string) (model.Team, error)
	// AddTeamMember is idempotent for existing members and returns
	// ErrTeamFull when the team is at capacity.
	AddTeamMember(ctx context.Context, teamID, userID string) (model.Team, error)
	// TeamMembers returns the member records in membership order. Members
	// without a user record are skipped.
	TeamMembers(ctx context.Context, teamID string) ([]model.User, error)
}

// QuestStore persists quest definitions and completions.
type QuestStore interface {
	PutQuest(ctx context.Context, q model.Quest) error
	GetQuest(ctx context.Context, id string) (model.Quest, error)
	// RecordCompletion stores c once per (user, quest) and reports whether
	// this call created it.
	RecordCompletion(ctx context.Context, c model.Completion) (bool, error)
	// CountCompletions counts completions by any of userIDs.
	CountCompletions(ctx context.Context, userIDs []string) (int, error)
}

// SubmissionStore persists photo submissions and their votes.
type SubmissionStore interface {
	// CreateSubmission inserts s and returns ErrAlreadyExists when the id is
	// taken.
	CreateSubmission(ctx context.Context, s model.Submission) error
	PutSubmission(ctx context.Context, s model.Submission) error
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	UpdateSubmission(ctx context.Context, id string, fn func(*model.Submission) error) (model.Submission, error)
	ListSubmissionIDs(ctx context.Context) ([]string, error)
	// Discoveries joins a user's submissions with their quests, oldest first.
	Discoveries(ctx context.Context, userID string) ([]model.Discovery, error)
}

// Leaderboard ranks users by XP.
type Leaderboard interface {
	// TopN returns up to n entries, XP descending then user id ascending.
	TopN(ctx context.Context, n int) ([]types.Entry, error)
	// Rank returns the entry for one user.
	Rank(ctx context.Context, userID string) (types.Entry, error)
	// Count returns the number of users.
	Count(ctx context.Context) int
}

// Gateway is the full persistence surface used by the service.
type Gateway interface {
	UserStore
	TeamStore
	QuestStore
	SubmissionStore
	Leaderboard
	Close() error
}
