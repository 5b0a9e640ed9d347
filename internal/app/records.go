package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/stats"
	"github.com/okian/frameit/internal/domain/types"
)

// TeamStats computes stats over the team's current members and their
// quest completions.
func (s *Service) TeamStats(ctx context.Context, teamID string) (stats.TeamStats, error) {
	members, err := s.store.TeamMembers(ctx, teamID)
	if err != nil {
		return stats.TeamStats{}, fmt.Errorf("team %s members: %w", teamID, err)
	}

	ids := make([]string, len(members))
	for i, m := range members {
		s.curve.Recompute(&members[i])
		ids[i] = m.ID
	}
	completed, err := s.store.CountCompletions(ctx, ids)
	if err != nil {
		return stats.TeamStats{}, fmt.Errorf("team %s completions: %w", teamID, err)
	}
	return stats.CalculateTeamStats(members, completed), nil
}

// GalleryStats summarises the user's discoveries as of now.
func (s *Service) GalleryStats(ctx context.Context, userID string) (stats.Gallery, error) {
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return stats.Gallery{}, err
	}
	discoveries, err := s.store.Discoveries(ctx, userID)
	if err != nil {
		return stats.Gallery{}, fmt.Errorf("discoveries of %s: %w", userID, err)
	}
	return stats.CalculateUserGalleryStats(discoveries, s.now()), nil
}

// TopN returns the top N leaderboard entries.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	return s.store.TopN(ctx, n)
}

// Rank returns the leaderboard entry of a user.
func (s *Service) Rank(ctx context.Context, userID string) (types.Entry, error) {
	return s.store.Rank(ctx, userID)
}

// GetUser returns a user record.
func (s *Service) GetUser(ctx context.Context, userID string) (model.User, error) {
	return s.store.GetUser(ctx, userID)
}

// GetSubmission returns a submission record.
func (s *Service) GetSubmission(ctx context.Context, submissionID string) (model.Submission, error) {
	return s.store.GetSubmission(ctx, submissionID)
}

// PutUser stores a user. The cached level is derived from XP and negative
// XP is clamped.
func (s *Service) PutUser(ctx context.Context, u model.User) error {
	if u.XP < 0 {
		u.XP = 0
	}
	if u.Achievements == nil {
		u.Achievements = []string{}
	}
	s.curve.Recompute(&u)
	return s.store.PutUser(ctx, u)
}

// SignUp creates a fresh user at level 1. An existing user is left as is
// and repository.ErrAlreadyExists is returned.
func (s *Service) SignUp(ctx context.Context, userID, displayName string) (model.User, error) {
	u := model.NewUser(userID, displayName)
	if err := s.store.CreateUser(ctx, u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// PutTeam stores a team, giving it the configured member limit when it has
// none. An existing team is replaced.
func (s *Service) PutTeam(ctx context.Context, t model.Team) error {
	return s.store.PutTeam(ctx, s.withTeamDefaults(t))
}

// CreateTeam stores a new team. Re-creating an id fails with
// repository.ErrAlreadyExists.
func (s *Service) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	t = s.withTeamDefaults(t)
	if err := s.store.CreateTeam(ctx, t); err != nil {
		return model.Team{}, err
	}
	return t, nil
}

func (s *Service) withTeamDefaults(t model.Team) model.Team {
	if t.MaxMembers <= 0 {
		t.MaxMembers = s.maxTeamMembers
	}
	if t.Members == nil {
		t.Members = []string{}
	}
	return t
}

// AddTeamMember adds a user to a team.
func (s *Service) AddTeamMember(ctx context.Context, teamID, userID string) (model.Team, error) {
	return s.store.AddTeamMember(ctx, teamID, userID)
}

// PutQuest stores a quest. A blank status means active.
func (s *Service) PutQuest(ctx context.Context, q model.Quest) error {
	if q.XPReward < 0 {
		return fmt.Errorf("%w: xp_reward must not be negative", ErrInvalidQuest)
	}
	switch q.Status {
	case "":
		q.Status = model.QuestActive
	case model.QuestActive, model.QuestExpired, model.QuestDraft:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuest, q.Status)
	}
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("%w: quest_id is required", ErrInvalidQuest)
	}
	return s.store.PutQuest(ctx, q)
}

// PutSubmission stores a submission as given. Counters are kept as
// supplied so drift can be repaired later.
func (s *Service) PutSubmission(ctx context.Context, sub model.Submission) error {
	return s.store.PutSubmission(ctx, sub)
}

// CreateSubmission stores a new submission without votes. Re-creating an
// id fails with repository.ErrAlreadyExists and keeps the stored votes.
func (s *Service) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	sub.Votes = map[string]model.VoteType{}
	sub.Upvotes, sub.Downvotes, sub.VoteScore = 0, 0, 0
	if err := s.store.CreateSubmission(ctx, sub); err != nil {
		return model.Submission{}, err
	}
	return s.store.GetSubmission(ctx, sub.ID)
}
