package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	repository "github.com/okian/frameit/internal/adapters/repository"
	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/progression"
	"github.com/okian/frameit/pkg/logger"
	"github.com/okian/frameit/pkg/metrics"
)

// Submission outcomes of SubmitXPEvent.
const (
	StatusAccepted  = "accepted"
	StatusDuplicate = "duplicate"
)

// SubmitResult reports what happened to a submitted event.
type SubmitResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

// UserProgress is a user record together with its position on the curve.
type UserProgress struct {
	User     model.User           `json:"user"`
	Progress progression.Progress `json:"progress"`
}

// checkClientEventID refuses ids in the namespace of upvote rewards, so a
// client cannot pre-claim an author's reward.
func checkClientEventID(e model.XPEvent) error { //nolint:gocritic // hugeParam: events are values end to end
	if strings.HasPrefix(e.EventID, rewardIDPrefix) {
		return fmt.Errorf("%w: event_id prefix %q is reserved", ErrInvalidEvent, rewardIDPrefix)
	}
	return nil
}

// normalizeEvent validates e and fills defaults. Negative amounts are
// rejected here so the pipeline never carries them.
func (s *Service) normalizeEvent(e model.XPEvent) (model.XPEvent, error) {
	e.UserID = strings.TrimSpace(e.UserID)
	e.QuestID = strings.TrimSpace(e.QuestID)

	switch {
	case e.UserID == "":
		return e, fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	case e.Amount < 0:
		return e, fmt.Errorf("%w: amount must not be negative, got %d", ErrInvalidEvent, e.Amount)
	case e.Amount == 0 && e.QuestID == "":
		return e, fmt.Errorf("%w: amount or quest_id is required", ErrInvalidEvent)
	}

	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.Reason == "" {
		e.Reason = model.ReasonManual
		if e.QuestID != "" {
			e.Reason = model.ReasonQuestCompleted
		}
	}
	if e.TS.IsZero() {
		e.TS = s.now()
	}
	return e, nil
}

// SubmitXPEvent validates e, drops duplicates and queues it for the worker
// pool. ErrBackpressure means the queue is full and the caller may retry
// with the same event id.
func (s *Service) SubmitXPEvent(ctx context.Context, e model.XPEvent) (SubmitResult, error) { //nolint:gocritic // hugeParam: events are values end to end
	if err := checkClientEventID(e); err != nil {
		return SubmitResult{}, err
	}
	e, err := s.normalizeEvent(e)
	if err != nil {
		return SubmitResult{}, err
	}
	res := SubmitResult{EventID: e.EventID}

	if s.queue.IsClosed() {
		return res, ErrServiceStopped
	}

	if s.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event detected, skipping",
			logger.String("eventID", e.EventID),
			logger.String("userID", e.UserID),
		)
		res.Status = StatusDuplicate
		return res, nil
	}

	if !s.queue.Enqueue(ctx, e) {
		// The id was never processed, so a retry must be accepted.
		s.deduper.Unrecord(ctx, e.EventID)
		return res, ErrBackpressure
	}

	metrics.RecordEventAccepted()
	metrics.UpdateQueueSize(s.queue.Len(ctx))
	res.Status = StatusAccepted
	return res, nil
}

// ApplyXPEvent lets the worker pool apply queued events.
func (s *Service) ApplyXPEvent(ctx context.Context, e model.XPEvent) (progression.AwardResult, error) { //nolint:gocritic // hugeParam: events are values end to end
	return s.AwardXP(ctx, e)
}

// AwardXP applies an XP gain synchronously. A quest event must pass the
// quest gate and be the user's first completion of that quest; an Amount
// of zero then awards the quest's reward. The XP and level update is one
// atomic write.
func (s *Service) AwardXP(ctx context.Context, e model.XPEvent) (progression.AwardResult, error) { //nolint:gocritic // hugeParam: events are values end to end
	if err := checkClientEventID(e); err != nil {
		return progression.AwardResult{}, err
	}
	return s.award(ctx, e)
}

func (s *Service) award(ctx context.Context, e model.XPEvent) (progression.AwardResult, error) { //nolint:gocritic // hugeParam: events are values end to end
	start := time.Now()
	defer func() {
		metrics.RecordProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	e, err := s.normalizeEvent(e)
	if err != nil {
		return progression.AwardResult{}, err
	}

	amount := e.Amount
	if e.QuestID != "" {
		amount, err = s.completeQuest(ctx, e)
		if err != nil {
			return progression.AwardResult{}, err
		}
	}

	var res progression.AwardResult
	_, err = s.store.UpdateUser(ctx, e.UserID, func(u *model.User) error {
		res = s.curve.Award(u, amount)
		return nil
	})
	if err != nil {
		return progression.AwardResult{}, fmt.Errorf("award xp to %s: %w", e.UserID, err)
	}

	metrics.RecordXPAwarded(res.Gained)
	if res.LevelChanged {
		metrics.RecordLevelUp(res.Level - res.PreviousLevel)
	}
	metrics.RecordAchievementsGranted(len(res.NewAchievements))

	s.logger.Debug(ctx, "xp awarded",
		logger.String("eventID", e.EventID),
		logger.String("userID", e.UserID),
		logger.String("reason", e.Reason),
		logger.Int64("gained", res.Gained),
		logger.Int64("xp", res.XP),
		logger.Int("level", res.Level),
	)
	return res, nil
}

// completeQuest checks the quest gate and records the completion. It
// returns the amount to award.
func (s *Service) completeQuest(ctx context.Context, e model.XPEvent) (int64, error) { //nolint:gocritic // hugeParam: events are values end to end
	q, err := s.store.GetQuest(ctx, e.QuestID)
	if err != nil {
		return 0, fmt.Errorf("load quest %s: %w", e.QuestID, err)
	}
	u, err := s.store.GetUser(ctx, e.UserID)
	if err != nil {
		return 0, fmt.Errorf("load user %s: %w", e.UserID, err)
	}
	// The cached level may be stale; the gate follows XP.
	level := s.curve.Level(u.XP)
	if !progression.CanAttempt(level, q) {
		return 0, fmt.Errorf("%w: quest %s needs level %d (status %s), user %s is level %d",
			ErrQuestLocked, q.ID, q.MinLevel, q.Status, u.ID, level)
	}

	fresh, err := s.store.RecordCompletion(ctx, model.Completion{
		UserID:      e.UserID,
		QuestID:     e.QuestID,
		CompletedAt: e.TS,
	})
	if err != nil {
		return 0, fmt.Errorf("record completion: %w", err)
	}
	if !fresh {
		return 0, fmt.Errorf("%w: user %s, quest %s", ErrQuestCompleted, e.UserID, e.QuestID)
	}

	if e.Amount > 0 {
		return e.Amount, nil
	}
	return q.XPReward, nil
}

// ResetXP is the admin reset: XP to zero and level 1, achievements kept.
func (s *Service) ResetXP(ctx context.Context, userID string) (model.User, error) {
	u, err := s.store.UpdateUser(ctx, userID, func(u *model.User) error {
		s.curve.Reset(u)
		return nil
	})
	if err != nil {
		return model.User{}, fmt.Errorf("reset xp for %s: %w", userID, err)
	}
	s.logger.Info(ctx, "xp reset", logger.String("userID", userID))
	return u, nil
}

// LevelProgress returns the user and its progress towards the next level.
// A stale cached level is reported as computed from XP.
func (s *Service) LevelProgress(ctx context.Context, userID string) (UserProgress, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return UserProgress{}, err
	}
	s.curve.Recompute(&u)
	return UserProgress{User: u, Progress: s.curve.Progress(u.XP)}, nil
}

// Eligibility answers whether a user may attempt a quest.
type Eligibility struct {
	UserID   string            `json:"user_id"`
	QuestID  string            `json:"quest_id"`
	Level    int               `json:"level"`
	MinLevel int               `json:"min_level"`
	Status   model.QuestStatus `json:"status"`
	Eligible bool              `json:"eligible"`
}

// CanAttemptQuest applies the quest gate to the user's current level.
func (s *Service) CanAttemptQuest(ctx context.Context, userID, questID string) (Eligibility, error) {
	q, err := s.store.GetQuest(ctx, questID)
	if err != nil {
		return Eligibility{}, err
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Eligibility{}, err
	}
	level := s.curve.Level(u.XP)
	return Eligibility{
		UserID:   u.ID,
		QuestID:  q.ID,
		Level:    level,
		MinLevel: q.MinLevel,
		Status:   q.Status,
		Eligible: progression.CanAttempt(level, q),
	}, nil
}

// isNotFound reports whether err is a missing record.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
