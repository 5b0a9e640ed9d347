package service

import (
	"context"
	"fmt"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/progression"
	"github.com/okian/frameit/internal/domain/votes"
	"github.com/okian/frameit/pkg/logger"
	"github.com/okian/frameit/pkg/metrics"
)

// VoteOutcome is a cast result plus the author's XP reward, when one was
// granted.
type VoteOutcome struct {
	votes.Result
	Reward *progression.AwardResult `json:"reward,omitempty"`
}

// SweepReport summarises one RepairAll run. Reports lists only the
// submissions that needed fixing.
type SweepReport struct {
	Checked int            `json:"checked"`
	Fixed   int            `json:"fixed"`
	Reports []votes.Report `json:"reports"`
}

// rewardIDPrefix marks upvote reward ids. Clients may not use it.
const rewardIDPrefix = "vote:"

// upvoteEventID keys the author reward so each voter can award it once per
// submission, however often they toggle.
func upvoteEventID(submissionID, voterID string) string {
	return rewardIDPrefix + submissionID + ":" + voterID
}

// CastVote applies one vote as an atomic read-modify-write of the
// submission. A voter's first upvote on someone else's submission awards
// the author the configured upvote reward.
func (s *Service) CastVote(ctx context.Context, submissionID, voterID string, vt model.VoteType) (VoteOutcome, error) {
	var res votes.Result
	sub, err := s.store.UpdateSubmission(ctx, submissionID, func(sub *model.Submission) error {
		r, err := votes.Cast(sub, voterID, vt)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return VoteOutcome{}, fmt.Errorf("cast vote on %s: %w", submissionID, err)
	}
	metrics.RecordVoteCast(string(res.Transition))

	out := VoteOutcome{Result: res}
	if res.Current != model.Upvote || s.upvoteReward <= 0 || sub.UserID == "" || sub.UserID == voterID {
		return out, nil
	}

	eventID := upvoteEventID(submissionID, voterID)
	if s.deduper.SeenAndRecord(ctx, eventID) {
		return out, nil
	}
	reward, err := s.award(ctx, model.XPEvent{
		EventID: eventID,
		UserID:  sub.UserID,
		Amount:  s.upvoteReward,
		Reason:  model.ReasonUpvoteReceived,
	})
	if err != nil {
		// The vote stands; the reward can be granted by a later upvote.
		s.deduper.Unrecord(ctx, eventID)
		s.logger.Warn(ctx, "upvote reward failed",
			logger.String("submissionID", submissionID),
			logger.String("authorID", sub.UserID),
			logger.Error(err),
		)
		return out, nil
	}
	out.Reward = &reward
	return out, nil
}

// RepairSubmission reconciles the submission's vote counters with its vote
// map.
func (s *Service) RepairSubmission(ctx context.Context, submissionID string) (votes.Report, error) {
	var rep votes.Report
	_, err := s.store.UpdateSubmission(ctx, submissionID, func(sub *model.Submission) error {
		rep = votes.ValidateAndFixVoteTally(sub)
		return nil
	})
	if err != nil {
		return votes.Report{}, fmt.Errorf("repair %s: %w", submissionID, err)
	}

	if rep.Fixed {
		metrics.RecordTallyRepair(len(rep.Issues))
		s.logger.Warn(ctx, "vote tally repaired",
			logger.String("submissionID", submissionID),
			logger.Any("issues", rep.Issues),
		)
	}
	return rep, nil
}

// RepairAll repairs every submission. Submissions removed while the sweep
// runs are skipped.
func (s *Service) RepairAll(ctx context.Context) (SweepReport, error) {
	defer metrics.RecordTallySweep()

	ids, err := s.store.ListSubmissionIDs(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list submissions: %w", err)
	}

	out := SweepReport{Reports: []votes.Report{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rep, err := s.RepairSubmission(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return out, err
		}
		out.Checked++
		if rep.Fixed {
			out.Fixed++
			out.Reports = append(out.Reports, rep)
		}
	}
	return out, nil
}
