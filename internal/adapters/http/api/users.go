package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/frameit/internal/app"
	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/stats"
)

// UserDependencies defines the interface for user operations.
type UserDependencies interface {
	SignUp(ctx context.Context, userID, displayName string) (model.User, error)
	GetUser(ctx context.Context, userID string) (model.User, error)
	LevelProgress(ctx context.Context, userID string) (service.UserProgress, error)
	GalleryStats(ctx context.Context, userID string) (stats.Gallery, error)
	ResetXP(ctx context.Context, userID string) (model.User, error)
}

// UsersHandler handles user requests.
type UsersHandler struct {
	deps UserDependencies
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps UserDependencies) *UsersHandler {
	return &UsersHandler{deps: deps}
}

type signUpRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// HandleSignUp handles POST /users requests.
func (h *UsersHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	const op = "api.sign_up"
	var req signUpRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	u, err := h.deps.SignUp(r.Context(), req.UserID, req.DisplayName)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HandleGetUser handles GET /users/{userID} requests.
func (h *UsersHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.deps.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeFailure(w, "api.get_user", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleGetProgress handles GET /users/{userID}/progress requests.
func (h *UsersHandler) HandleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.LevelProgress(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeFailure(w, "api.get_progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGetGalleryStats handles GET /users/{userID}/gallery-stats requests.
func (h *UsersHandler) HandleGetGalleryStats(w http.ResponseWriter, r *http.Request) {
	g, err := h.deps.GalleryStats(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeFailure(w, "api.get_gallery_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// HandleReset handles POST /users/{userID}/reset requests.
func (h *UsersHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	u, err := h.deps.ResetXP(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeFailure(w, "api.reset_xp", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
