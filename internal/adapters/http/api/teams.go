package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/stats"
)

// TeamDependencies defines the interface for team operations.
type TeamDependencies interface {
	CreateTeam(ctx context.Context, t model.Team) (model.Team, error)
	AddTeamMember(ctx context.Context, teamID, userID string) (model.Team, error)
	TeamStats(ctx context.Context, teamID string) (stats.TeamStats, error)
}

// TeamsHandler handles team requests.
type TeamsHandler struct {
	deps TeamDependencies
}

// NewTeamsHandler creates a new teams handler.
func NewTeamsHandler(deps TeamDependencies) *TeamsHandler {
	return &TeamsHandler{deps: deps}
}

type createTeamRequest struct {
	TeamID     string `json:"team_id"`
	Name       string `json:"name"`
	MaxMembers int    `json:"max_members"`
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

// HandleCreateTeam handles POST /teams requests. Members are added through
// HandleAddMember so the size limit always applies.
func (h *TeamsHandler) HandleCreateTeam(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_team"
	var req createTeamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	t, err := h.deps.CreateTeam(r.Context(), model.Team{ID: req.TeamID, Name: req.Name, MaxMembers: req.MaxMembers})
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HandleAddMember handles POST /teams/{teamID}/members requests.
func (h *TeamsHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_team_member"
	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	t, err := h.deps.AddTeamMember(r.Context(), chi.URLParam(r, "teamID"), req.UserID)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleGetStats handles GET /teams/{teamID}/stats requests.
func (h *TeamsHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.TeamStats(r.Context(), chi.URLParam(r, "teamID"))
	if err != nil {
		writeFailure(w, "api.get_team_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
