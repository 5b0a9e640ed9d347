// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/frameit/internal/domain/types"
	"github.com/okian/frameit/pkg/logger"
)

// Default server configuration constants.
const (
	defaultMaxLimit       = 100
	defaultRequestTimeout = 30 * time.Second
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	UserDependencies
	TeamDependencies
	QuestDependencies
	SubmissionDependencies
	LeaderboardDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	opsHandler         *OpsHandler
	eventsHandler      *EventsHandler
	usersHandler       *UsersHandler
	teamsHandler       *TeamsHandler
	questsHandler      *QuestsHandler
	submissionsHandler *SubmissionsHandler
	leaderboardHandler *LeaderboardHandler

	maxLimit int
	timeout  time.Duration
	logger   logger.Logger
	extra    []func(chi.Router)
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxLimit caps the leaderboard limit parameter.
func WithMaxLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithRequestTimeout bounds each request's context.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRoutes registers additional routes behind the same middleware stack.
func WithRoutes(register func(chi.Router)) Option {
	return func(s *Server) {
		if register != nil {
			s.extra = append(s.extra, register)
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxLimit: defaultMaxLimit,
		timeout:  defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}

	s.opsHandler = NewOpsHandler(deps)
	s.eventsHandler = NewEventsHandler(deps)
	s.usersHandler = NewUsersHandler(deps)
	s.teamsHandler = NewTeamsHandler(deps)
	s.questsHandler = NewQuestsHandler(deps)
	s.submissionsHandler = NewSubmissionsHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps, s.maxLimit)
	return s
}

// Router returns a chi router with the middleware stack and every route.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(s.timeout))
	r.Use(RequestLogger(s.logger))
	r.Use(MetricsMiddleware)

	s.Register(r)
	for _, register := range s.extra {
		register(r)
	}
	return r
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Get("/healthz", s.opsHandler.HandleHealth)
	r.Get("/stats", s.opsHandler.HandleStats)

	r.Post("/xp-events", s.eventsHandler.HandlePostEvent)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.usersHandler.HandleSignUp)
		r.Get("/{userID}", s.usersHandler.HandleGetUser)
		r.Get("/{userID}/progress", s.usersHandler.HandleGetProgress)
		r.Get("/{userID}/gallery-stats", s.usersHandler.HandleGetGalleryStats)
		r.Post("/{userID}/reset", s.usersHandler.HandleReset)
	})

	r.Route("/teams", func(r chi.Router) {
		r.Post("/", s.teamsHandler.HandleCreateTeam)
		r.Post("/{teamID}/members", s.teamsHandler.HandleAddMember)
		r.Get("/{teamID}/stats", s.teamsHandler.HandleGetStats)
	})

	r.Route("/quests", func(r chi.Router) {
		r.Put("/{questID}", s.questsHandler.HandlePutQuest)
		r.Get("/{questID}/eligibility/{userID}", s.questsHandler.HandleGetEligibility)
	})

	r.Route("/submissions", func(r chi.Router) {
		r.Post("/", s.submissionsHandler.HandleCreateSubmission)
		r.Get("/{submissionID}", s.submissionsHandler.HandleGetSubmission)
		r.Post("/{submissionID}/votes", s.submissionsHandler.HandleCastVote)
		r.Post("/{submissionID}/repair", s.submissionsHandler.HandleRepair)
	})
	r.Post("/repairs", s.submissionsHandler.HandleRepairAll)

	r.Get("/leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	r.Get("/rank/{userID}", s.leaderboardHandler.HandleGetRank)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure reports err with the status its kind maps to.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status, code := classify(err)
	writeError(w, status, code, Wrap(op, err))
}

// decodeJSON reads the request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
