package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/frameit/internal/app"
	"github.com/okian/frameit/internal/domain/model"
)

// EventDependencies defines the interface for event processing dependencies.
type EventDependencies interface {
	// SubmitXPEvent dedupes and queues an event; service.ErrBackpressure
	// means the queue is full.
	SubmitXPEvent(ctx context.Context, e model.XPEvent) (service.SubmitResult, error)
}

// EventsHandler handles XP event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// xpEventRequest is the body of POST /xp-events. TS is optional RFC3339.
type xpEventRequest struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
	QuestID string `json:"quest_id"`
	TS      string `json:"ts"`
}

func (e xpEventRequest) toEvent() (model.XPEvent, error) {
	ev := model.XPEvent{
		EventID: strings.TrimSpace(e.EventID),
		UserID:  e.UserID,
		Amount:  e.Amount,
		Reason:  e.Reason,
		QuestID: e.QuestID,
	}
	if strings.TrimSpace(e.UserID) == "" {
		return ev, errors.New("missing user_id")
	}
	if e.TS != "" {
		ts, err := time.Parse(time.RFC3339, e.TS)
		if err != nil {
			return ev, errors.New("invalid ts; must be RFC3339")
		}
		ev.TS = ts
	}
	return ev, nil
}

type ackResponse struct {
	EventID   string `json:"event_id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostEvent handles POST /xp-events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_xp_event"
	var req xpEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, op, err)
		return
	}
	ev, err := req.toEvent()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.SubmitXPEvent(r.Context(), ev)
	if err != nil {
		if errors.Is(err, service.ErrBackpressure) {
			writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
			return
		}
		writeFailure(w, op, err)
		return
	}

	if res.Status == service.StatusDuplicate {
		writeJSON(w, http.StatusOK, ackResponse{EventID: res.EventID, Status: res.Status, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{EventID: res.EventID, Status: res.Status})
}
