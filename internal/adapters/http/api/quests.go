package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/frameit/internal/app"
	"github.com/okian/frameit/internal/domain/model"
)

// QuestDependencies defines the interface for quest operations.
type QuestDependencies interface {
	PutQuest(ctx context.Context, q model.Quest) error
	CanAttemptQuest(ctx context.Context, userID, questID string) (service.Eligibility, error)
}

// QuestsHandler handles quest requests.
type QuestsHandler struct {
	deps QuestDependencies
}

// NewQuestsHandler creates a new quests handler.
func NewQuestsHandler(deps QuestDependencies) *QuestsHandler {
	return &QuestsHandler{deps: deps}
}

// HandlePutQuest handles PUT /quests/{questID} requests.
func (h *QuestsHandler) HandlePutQuest(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_quest"
	var q model.Quest
	if err := decodeJSON(r, &q); err != nil {
		writeFailure(w, op, err)
		return
	}
	q.ID = chi.URLParam(r, "questID")
	if q.Status == "" {
		q.Status = model.QuestActive
	}
	if err := h.deps.PutQuest(r.Context(), q); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleGetEligibility handles GET /quests/{questID}/eligibility/{userID} requests.
func (h *QuestsHandler) HandleGetEligibility(w http.ResponseWriter, r *http.Request) {
	e, err := h.deps.CanAttemptQuest(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "questID"))
	if err != nil {
		writeFailure(w, "api.get_eligibility", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
