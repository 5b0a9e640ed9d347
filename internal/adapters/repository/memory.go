package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/types"
	"github.com/okian/frameit/pkg/metrics"
)

type completionKey struct {
	userID  string
	questID string
}

// MemoryStore implements Gateway in process memory. One RWMutex guards all
// maps and the leaderboard treap.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]model.User
	teams       map[string]model.Team
	quests      map[string]model.Quest
	submissions map[string]model.Submission
	completions map[completionKey]model.Completion
	board       *node

	now func() time.Time
}

var _ Gateway = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		users:       make(map[string]model.User),
		teams:       make(map[string]model.Team),
		quests:      make(map[string]model.Quest),
		submissions: make(map[string]model.Submission),
		completions: make(map[completionKey]model.Completion),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Microseconds())/1000)
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s id is required", ErrInvalidRecord, kind)
	}
	return nil
}

// PutUser inserts or replaces a user.
func (s *MemoryStore) PutUser(_ context.Context, u model.User) error {
	defer observe("put_user", time.Now())
	if err := requireID("user", u.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storeUserLocked(u.Clone())
	metrics.UpdateTotalUsers(len(s.users))
	return nil
}

// CreateUser inserts a user that does not exist yet.
func (s *MemoryStore) CreateUser(_ context.Context, u model.User) error {
	defer observe("create_user", time.Now())
	if err := requireID("user", u.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("user %q: %w", u.ID, ErrAlreadyExists)
	}
	s.storeUserLocked(u.Clone())
	metrics.UpdateTotalUsers(len(s.users))
	return nil
}

func (s *MemoryStore) storeUserLocked(u model.User) {
	if old, ok := s.users[u.ID]; ok {
		s.board = deleteNode(s.board, old.ID, old.XP)
	}
	s.users[u.ID] = u
	s.board = insert(s.board, u.ID, u.XP, u.Level)
}

// GetUser returns a copy of the user.
func (s *MemoryStore) GetUser(_ context.Context, id string) (model.User, error) {
	defer observe("get_user", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return u.Clone(), nil
}

// UpdateUser implements UserStore.
func (s *MemoryStore) UpdateUser(_ context.Context, id string, fn func(*model.User) error) (model.User, error) {
	defer observe("update_user", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.User{}, err
	}
	next.ID = id
	s.storeUserLocked(next)
	return next.Clone(), nil
}

// PutTeam inserts or replaces a team.
func (s *MemoryStore) PutTeam(_ context.Context, t model.Team) error {
	defer observe("put_team", time.Now())
	if err := requireID("team", t.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[t.ID] = t.Clone()
	return nil
}

// CreateTeam inserts a team that does not exist yet.
func (s *MemoryStore) CreateTeam(_ context.Context, t model.Team) error {
	defer observe("create_team", time.Now())
	if err := requireID("team", t.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[t.ID]; ok {
		return fmt.Errorf("team %q: %w", t.ID, ErrAlreadyExists)
	}
	s.teams[t.ID] = t.Clone()
	return nil
}

// GetTeam returns a copy of the team.
func (s *MemoryStore) GetTeam(_ context.Context, id string) (model.Team, error) {
	defer observe("get_team", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return model.Team{}, fmt.Errorf("team %q: %w", id, ErrNotFound)
	}
	return t.Clone(), nil
}

// AddTeamMember implements TeamStore.
func (s *MemoryStore) AddTeamMember(_ context.Context, teamID, userID string) (model.Team, error) {
	defer observe("add_team_member", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok {
		return model.Team{}, fmt.Errorf("team %q: %w", teamID, ErrNotFound)
	}
	if t.HasMember(userID) {
		return t.Clone(), nil
	}
	if _, ok := s.users[userID]; !ok {
		return model.Team{}, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	if len(t.Members) >= t.Capacity() {
		return model.Team{}, fmt.Errorf("team %q has %d members: %w", teamID, len(t.Members), ErrTeamFull)
	}
	t = t.Clone()
	t.Members = append(t.Members, userID)
	s.teams[teamID] = t
	return t.Clone(), nil
}

// TeamMembers implements TeamStore.
func (s *MemoryStore) TeamMembers(_ context.Context, teamID string) ([]model.User, error) {
	defer observe("team_members", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %q: %w", teamID, ErrNotFound)
	}
	out := make([]model.User, 0, len(t.Members))
	for _, id := range t.Members {
		if u, ok := s.users[id]; ok {
			out = append(out, u.Clone())
		}
	}
	return out, nil
}

// PutQuest inserts or replaces a quest.
func (s *MemoryStore) PutQuest(_ context.Context, q model.Quest) error {
	defer observe("put_quest", time.Now())
	if err := requireID("quest", q.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quests[q.ID] = q
	return nil
}

// GetQuest returns the quest.
func (s *MemoryStore) GetQuest(_ context.Context, id string) (model.Quest, error) {
	defer observe("get_quest", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quests[id]
	if !ok {
		return model.Quest{}, fmt.Errorf("quest %q: %w", id, ErrNotFound)
	}
	return q, nil
}

// RecordCompletion implements QuestStore.
func (s *MemoryStore) RecordCompletion(_ context.Context, c model.Completion) (bool, error) {
	defer observe("record_completion", time.Now())
	if err := requireID("user", c.UserID); err != nil {
		return false, err
	}
	if err := requireID("quest", c.QuestID); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := completionKey{userID: c.UserID, questID: c.QuestID}
	if _, ok := s.completions[key]; ok {
		return false, nil
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = s.now()
	}
	s.completions[key] = c
	return true, nil
}

// CountCompletions implements QuestStore.
func (s *MemoryStore) CountCompletions(_ context.Context, userIDs []string) (int, error) {
	defer observe("count_completions", time.Now())
	want := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		want[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for key := range s.completions {
		if _, ok := want[key.userID]; ok {
			n++
		}
	}
	return n, nil
}

// PutSubmission inserts or replaces a submission.
func (s *MemoryStore) PutSubmission(_ context.Context, sub model.Submission) error {
	defer observe("put_submission", time.Now())
	if err := requireID("submission", sub.ID); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub.Clone()
	return nil
}

// CreateSubmission inserts a submission that does not exist yet.
func (s *MemoryStore) CreateSubmission(_ context.Context, sub model.Submission) error {
	defer observe("create_submission", time.Now())
	if err := requireID("submission", sub.ID); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[sub.ID]; ok {
		return fmt.Errorf("submission %q: %w", sub.ID, ErrAlreadyExists)
	}
	s.submissions[sub.ID] = sub.Clone()
	return nil
}

// GetSubmission returns a copy of the submission.
func (s *MemoryStore) GetSubmission(_ context.Context, id string) (model.Submission, error) {
	defer observe("get_submission", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	return sub.Clone(), nil
}

// UpdateSubmission implements SubmissionStore.
func (s *MemoryStore) UpdateSubmission(_ context.Context, id string, fn func(*model.Submission) error) (model.Submission, error) {
	defer observe("update_submission", time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.submissions[id]
	if !ok {
		return model.Submission{}, fmt.Errorf("submission %q: %w", id, ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return model.Submission{}, err
	}
	next.ID = id
	s.submissions[id] = next
	return next.Clone(), nil
}

// ListSubmissionIDs returns every submission id in ascending order.
func (s *MemoryStore) ListSubmissionIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.submissions))
	for id := range s.submissions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// Discoveries implements SubmissionStore. Submissions whose quest is
// unknown still count, with empty quest fields.
func (s *MemoryStore) Discoveries(_ context.Context, userID string) ([]model.Discovery, error) {
	defer observe("discoveries", time.Now())
	s.mu.RLock()
	subs := make([]model.Submission, 0)
	for _, sub := range s.submissions {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	quests := make(map[string]model.Quest, len(subs))
	for _, sub := range subs {
		if q, ok := s.quests[sub.QuestID]; ok {
			quests[sub.QuestID] = q
		}
	}
	s.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})

	out := make([]model.Discovery, 0, len(subs))
	for _, sub := range subs {
		q := quests[sub.QuestID]
		out = append(out, model.Discovery{
			SubmissionID: sub.ID,
			QuestID:      sub.QuestID,
			Location:     q.Location,
			Category:     q.Category,
			XP:           q.XPReward,
			Timestamp:    sub.CreatedAt,
		})
	}
	return out, nil
}

// TopN implements Leaderboard in O(log n + n).
func (s *MemoryStore) TopN(_ context.Context, n int) ([]types.Entry, error) {
	defer observe("top_n", time.Now())
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Entry, 0, min(n, nsize(s.board)))
	collectTopN(s.board, n, &out)
	assignCompetitionRanks(out)
	return out, nil
}

// Rank implements Leaderboard in O(log n).
func (s *MemoryStore) Rank(_ context.Context, userID string) (types.Entry, error) {
	defer observe("rank", time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, fmt.Errorf("user %q: %w", userID, ErrNotFound)
	}
	return types.Entry{
		Rank:   countAbove(s.board, u.XP) + 1,
		UserID: u.ID,
		XP:     u.XP,
		Level:  u.Level,
	}, nil
}

// Count returns the number of users.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
