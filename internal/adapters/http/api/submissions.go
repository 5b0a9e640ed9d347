package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/frameit/internal/app"
	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/votes"
)

// SubmissionDependencies defines the interface for submission and vote
// operations.
type SubmissionDependencies interface {
	CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error)
	GetSubmission(ctx context.Context, submissionID string) (model.Submission, error)
	CastVote(ctx context.Context, submissionID, voterID string, vt model.VoteType) (service.VoteOutcome, error)
	RepairSubmission(ctx context.Context, submissionID string) (votes.Report, error)
	RepairAll(ctx context.Context) (service.SweepReport, error)
}

// SubmissionsHandler handles submission requests.
type SubmissionsHandler struct {
	deps SubmissionDependencies
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps SubmissionDependencies) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps}
}

type createSubmissionRequest struct {
	SubmissionID string `json:"submission_id"`
	UserID       string `json:"user_id"`
	QuestID      string `json:"quest_id"`
}

type voteRequest struct {
	VoterID  string         `json:"voter_id"`
	VoteType model.VoteType `json:"vote_type"`
}

// HandleCreateSubmission handles POST /submissions requests. New
// submissions start without votes.
func (h *SubmissionsHandler) HandleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_submission"
	var req createSubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	stored, err := h.deps.CreateSubmission(r.Context(), model.Submission{
		ID:      req.SubmissionID,
		UserID:  req.UserID,
		QuestID: req.QuestID,
	})
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// HandleGetSubmission handles GET /submissions/{submissionID} requests.
func (h *SubmissionsHandler) HandleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.deps.GetSubmission(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		writeFailure(w, "api.get_submission", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// HandleCastVote handles POST /submissions/{submissionID}/votes requests.
func (h *SubmissionsHandler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.cast_vote"
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	out, err := h.deps.CastVote(r.Context(), chi.URLParam(r, "submissionID"), req.VoterID, req.VoteType)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleRepair handles POST /submissions/{submissionID}/repair requests.
func (h *SubmissionsHandler) HandleRepair(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.RepairSubmission(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		writeFailure(w, "api.repair_submission", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// HandleRepairAll handles POST /repairs requests.
func (h *SubmissionsHandler) HandleRepairAll(w http.ResponseWriter, r *http.Request) {
	rep, err := h.deps.RepairAll(r.Context())
	if err != nil {
		writeFailure(w, "api.repair_all", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
