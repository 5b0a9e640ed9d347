package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/frameit/internal/domain/model"
	"github.com/okian/frameit/internal/domain/types"
	"github.com/okian/frameit/pkg/logger"
	"github.com/okian/frameit/pkg/metrics"
)

// PoolConfig tunes the pgx connection pool.
type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// NewPool parses dsn and opens a pool.
func NewPool(ctx context.Context, dsn string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	return pool, nil
}

// Transactor runs callbacks inside a transaction.
type Transactor struct {
	pool *pgxpool.Pool
}

// NewTransactor wraps pool.
func NewTransactor(pool *pgxpool.Pool) *Transactor {
	return &Transactor{pool: pool}
}

// WithinTx commits when fn returns nil and rolls back otherwise.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return persistErr("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return persistErr("commit", err)
	}
	return nil
}

// PostgresStore implements Gateway on PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	tx   *Transactor
	log  logger.Logger
	now  func() time.Time
}

var _ Gateway = (*PostgresStore)(nil)

// NewPostgresStore wraps an open pool. Close closes the pool.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		pool: pool,
		tx:   NewTransactor(pool),
		log:  logger.Get().Named("postgres"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return persistErr("migrate", err)
			}
		}
		return nil
	})
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return persistErr("ping", err)
	}
	return nil
}

func persistErr(op string, err error) error {
	metrics.RecordErrorByComponent("repository", "persistence")
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// notFoundOr maps pgx.ErrNoRows to ErrNotFound.
func notFoundOr(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
	}
	return persistErr("get "+kind, err)
}

const userColumns = `id, display_name, xp, level, achievements`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.DisplayName, &u.XP, &u.Level, &u.Achievements)
	if u.Achievements == nil {
		u.Achievements = []string{}
	}
	return u, err
}

// PutUser upserts a user.
func (s *PostgresStore) PutUser(ctx context.Context, u model.User) error {
	defer observe("put_user", time.Now())
	if err := requireID("user", u.ID); err != nil {
		return err
	}
	if u.Achievements == nil {
		u.Achievements = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, xp, level, achievements)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			xp = excluded.xp,
			level = excluded.level,
			achievements = excluded.achievements`,
		u.ID, u.DisplayName, u.XP, u.Level, u.Achievements)
	if err != nil {
		return persistErr("put user", err)
	}
	return nil
}

// CreateUser inserts a user and fails with ErrAlreadyExists on a taken id.
func (s *PostgresStore) CreateUser(ctx context.Context, u model.User) error {
	defer observe("create_user", time.Now())
	if err := requireID("user", u.ID); err != nil {
		return err
	}
	if u.Achievements == nil {
		u.Achievements = []string{}
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, display_name, xp, level, achievements)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.DisplayName, u.XP, u.Level, u.Achievements)
	if err != nil {
		return persistErr("create user", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %q: %w", u.ID, ErrAlreadyExists)
	}
	return nil
}

// GetUser returns the user.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (model.User, error) {
	defer observe("get_user", time.Now())
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return model.User{}, notFoundOr("user", id, err)
	}
	return u, nil
}

// UpdateUser locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) UpdateUser(ctx context.Context, id string, fn func(*model.User) error) (model.User, error) {
	defer observe("update_user", time.Now())
	var out model.User
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundOr("user", id, err)
		}
		if err := fn(&u); err != nil {
			return err
		}
		u.ID = id
		if u.Achievements == nil {
			u.Achievements = []string{}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET display_name = $2, xp = $3, level = $4, achievements = $5
			WHERE id = $1`,
			u.ID, u.DisplayName, u.XP, u.Level, u.Achievements); err != nil {
			return persistErr("update user", err)
		}
		out = u
		return nil
	})
	return out, err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadTeam(ctx context.Context, q querier, id string, lock bool) (model.Team, error) {
	query := `SELECT id, name, max_members FROM teams WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var t model.Team
	if err := q.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.MaxMembers); err != nil {
		return model.Team{}, notFoundOr("team", id, err)
	}

	rows, err := q.Query(ctx, `SELECT user_id FROM team_members WHERE team_id = $1 ORDER BY position`, id)
	if err != nil {
		return model.Team{}, persistErr("team members", err)
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return model.Team{}, persistErr("team members", err)
	}
	t.Members = members
	return t, nil
}

// PutTeam replaces a team and its membership.
func (s *PostgresStore) PutTeam(ctx context.Context, t model.Team) error {
	defer observe("put_team", time.Now())
	if err := requireID("team", t.ID); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO teams (id, name, max_members) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, max_members = excluded.max_members`,
			t.ID, t.Name, t.MaxMembers); err != nil {
			return persistErr("put team", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM team_members WHERE team_id = $1`, t.ID); err != nil {
			return persistErr("put team", err)
		}
		for i, userID := range t.Members {
			if _, err := tx.Exec(ctx, `
				INSERT INTO team_members (team_id, user_id, position) VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`, t.ID, userID, i); err != nil {
				return persistErr("put team", err)
			}
		}
		return nil
	})
}

// CreateTeam inserts a team with its initial members.
func (s *PostgresStore) CreateTeam(ctx context.Context, t model.Team) error {
	defer observe("create_team", time.Now())
	if err := requireID("team", t.ID); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO teams (id, name, max_members) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING`,
			t.ID, t.Name, t.MaxMembers)
		if err != nil {
			return persistErr("create team", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("team %q: %w", t.ID, ErrAlreadyExists)
		}
		for i, userID := range t.Members {
			if _, err := tx.Exec(ctx, `
				INSERT INTO team_members (team_id, user_id, position) VALUES ($1, $2, $3)
				ON CONFLICT DO NOTHING`, t.ID, userID, i); err != nil {
				return persistErr("create team", err)
			}
		}
		return nil
	})
}

// GetTeam returns the team with its members.
func (s *PostgresStore) GetTeam(ctx context.Context, id string) (model.Team, error) {
	defer observe("get_team", time.Now())
	return loadTeam(ctx, s.pool, id, false)
}

// AddTeamMember locks the team row so concurrent joins cannot overfill it.
func (s *PostgresStore) AddTeamMember(ctx context.Context, teamID, userID string) (model.Team, error) {
	defer observe("add_team_member", time.Now())
	var out model.Team
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		t, err := loadTeam(ctx, tx, teamID, true)
		if err != nil {
			return err
		}
		if t.HasMember(userID) {
			out = t
			return nil
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
			return persistErr("add team member", err)
		}
		if !exists {
			return fmt.Errorf("user %q: %w", userID, ErrNotFound)
		}
		if len(t.Members) >= t.Capacity() {
			return fmt.Errorf("team %q has %d members: %w", teamID, len(t.Members), ErrTeamFull)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO team_members (team_id, user_id, position) VALUES ($1, $2, $3)`,
			teamID, userID, len(t.Members)); err != nil {
			return persistErr("add team member", err)
		}
		t.Members = append(t.Members, userID)
		out = t
		return nil
	})
	return out, err
}

// TeamMembers returns the member records in membership order.
func (s *PostgresStore) TeamMembers(ctx context.Context, teamID string) ([]model.User, error) {
	defer observe("team_members", time.Now())
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, teamID).Scan(&exists); err != nil {
		return nil, persistErr("team members", err)
	}
	if !exists {
		return nil, fmt.Errorf("team %q: %w", teamID, ErrNotFound)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.display_name, u.xp, u.level, u.achievements
		FROM team_members m JOIN users u ON u.id = m.user_id
		WHERE m.team_id = $1
		ORDER BY m.position`, teamID)
	if err != nil {
		return nil, persistErr("team members", err)
	}
	defer rows.Close()

	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, persistErr("team members", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("team members", err)
	}
	return out, nil
}

// PutQuest upserts a quest.
func (s *PostgresStore) PutQuest(ctx context.Context, q model.Quest) error {
	defer observe("put_quest", time.Now())
	if err := requireID("quest", q.ID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quests (id, title, location, category, xp_reward, min_level, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title, location = excluded.location, category = excluded.category,
			xp_reward = excluded.xp_reward, min_level = excluded.min_level, status = excluded.status`,
		q.ID, q.Title, q.Location, q.Category, q.XPReward, q.MinLevel, string(q.Status))
	if err != nil {
		return persistErr("put quest", err)
	}
	return nil
}

// GetQuest returns the quest.
func (s *PostgresStore) GetQuest(ctx context.Context, id string) (model.Quest, error) {
	defer observe("get_quest", time.Now())
	var q model.Quest
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, location, category, xp_reward, min_level, status
		FROM quests WHERE id = $1`, id).
		Scan(&q.ID, &q.Title, &q.Location, &q.Category, &q.XPReward, &q.MinLevel, &status)
	if err != nil {
		return model.Quest{}, notFoundOr("quest", id, err)
	}
	q.Status = model.QuestStatus(status)
	return q, nil
}

// RecordCompletion inserts once per (user, quest).
func (s *PostgresStore) RecordCompletion(ctx context.Context, c model.Completion) (bool, error) {
	defer observe("record_completion", time.Now())
	if err := requireID("user", c.UserID); err != nil {
		return false, err
	}
	if err := requireID("quest", c.QuestID); err != nil {
		return false, err
	}
	if c.CompletedAt.IsZero() {
		c.CompletedAt = s.now()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO completions (user_id, quest_id, completed_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, quest_id) DO NOTHING`,
		c.UserID, c.QuestID, c.CompletedAt)
	if err != nil {
		return false, persistErr("record completion", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountCompletions counts completions by any of userIDs.
func (s *PostgresStore) CountCompletions(ctx context.Context, userIDs []string) (int, error) {
	defer observe("count_completions", time.Now())
	if len(userIDs) == 0 {
		return 0, nil
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM completions WHERE user_id = ANY($1)`, userIDs).Scan(&n); err != nil {
		return 0, persistErr("count completions", err)
	}
	return n, nil
}

const submissionColumns = `id, user_id, quest_id, votes, upvotes, downvotes, vote_score, created_at`

func scanSubmission(row pgx.Row) (model.Submission, error) {
	var sub model.Submission
	err := row.Scan(&sub.ID, &sub.UserID, &sub.QuestID, &sub.Votes,
		&sub.Upvotes, &sub.Downvotes, &sub.VoteScore, &sub.CreatedAt)
	return sub, err
}

func votesParam(v map[string]model.VoteType) map[string]model.VoteType {
	if v == nil {
		return map[string]model.VoteType{}
	}
	return v
}

// PutSubmission upserts a submission.
func (s *PostgresStore) PutSubmission(ctx context.Context, sub model.Submission) error {
	defer observe("put_submission", time.Now())
	if err := requireID("submission", sub.ID); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id, quest_id = excluded.quest_id, votes = excluded.votes,
			upvotes = excluded.upvotes, downvotes = excluded.downvotes,
			vote_score = excluded.vote_score, created_at = excluded.created_at`,
		sub.ID, sub.UserID, sub.QuestID, votesParam(sub.Votes),
		sub.Upvotes, sub.Downvotes, sub.VoteScore, sub.CreatedAt)
	if err != nil {
		return persistErr("put submission", err)
	}
	return nil
}

// CreateSubmission inserts a submission and fails with ErrAlreadyExists on
// a taken id.
func (s *PostgresStore) CreateSubmission(ctx context.Context, sub model.Submission) error {
	defer observe("create_submission", time.Now())
	if err := requireID("submission", sub.ID); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		sub.ID, sub.UserID, sub.QuestID, votesParam(sub.Votes),
		sub.Upvotes, sub.Downvotes, sub.VoteScore, sub.CreatedAt)
	if err != nil {
		return persistErr("create submission", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("submission %q: %w", sub.ID, ErrAlreadyExists)
	}
	return nil
}

// GetSubmission returns the submission.
func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	defer observe("get_submission", time.Now())
	sub, err := scanSubmission(s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1`, id))
	if err != nil {
		return model.Submission{}, notFoundOr("submission", id, err)
	}
	return sub, nil
}

// UpdateSubmission locks the row for the duration of fn.
func (s *PostgresStore) UpdateSubmission(ctx context.Context, id string, fn func(*model.Submission) error) (model.Submission, error) {
	defer observe("update_submission", time.Now())
	var out model.Submission
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		sub, err := scanSubmission(tx.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return notFoundOr("submission", id, err)
		}
		if err := fn(&sub); err != nil {
			return err
		}
		sub.ID = id
		if _, err := tx.Exec(ctx, `
			UPDATE submissions SET votes = $2, upvotes = $3, downvotes = $4, vote_score = $5
			WHERE id = $1`,
			id, votesParam(sub.Votes), sub.Upvotes, sub.Downvotes, sub.VoteScore); err != nil {
			return persistErr("update submission", err)
		}
		out = sub
		return nil
	})
	return out, err
}

// ListSubmissionIDs returns every submission id in ascending order.
func (s *PostgresStore) ListSubmissionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM submissions ORDER BY id`)
	if err != nil {
		return nil, persistErr("list submissions", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, persistErr("list submissions", err)
	}
	return ids, nil
}

// Discoveries joins a user's submissions with their quests.
func (s *PostgresStore) Discoveries(ctx context.Context, userID string) ([]model.Discovery, error) {
	defer observe("discoveries", time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.quest_id, COALESCE(q.location, ''), COALESCE(q.category, ''),
		       COALESCE(q.xp_reward, 0), s.created_at
		FROM submissions s LEFT JOIN quests q ON q.id = s.quest_id
		WHERE s.user_id = $1
		ORDER BY s.created_at, s.id`, userID)
	if err != nil {
		return nil, persistErr("discoveries", err)
	}
	defer rows.Close()

	out := make([]model.Discovery, 0)
	for rows.Next() {
		var d model.Discovery
		var at time.Time
		if err := rows.Scan(&d.SubmissionID, &d.QuestID, &d.Location, &d.Category, &d.XP, &at); err != nil {
			return nil, persistErr("discoveries", err)
		}
		d.Timestamp = at
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("discoveries", err)
	}
	return out, nil
}

// TopN ranks with RANK() so ties share a rank.
func (s *PostgresStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	defer observe("top_n", time.Now())
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT RANK() OVER (ORDER BY xp DESC) AS rank, id, xp, level
		FROM users
		ORDER BY xp DESC, id ASC
		LIMIT $1`, n)
	if err != nil {
		return nil, persistErr("top n", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Entry, error) {
		var e types.Entry
		err := row.Scan(&e.Rank, &e.UserID, &e.XP, &e.Level)
		return e, err
	})
	if err != nil {
		return nil, persistErr("top n", err)
	}
	return out, nil
}

// Rank counts users with strictly more XP.
func (s *PostgresStore) Rank(ctx context.Context, userID string) (types.Entry, error) {
	defer observe("rank", time.Now())
	e := types.Entry{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		SELECT u.xp, u.level, 1 + (SELECT COUNT(*) FROM users o WHERE o.xp > u.xp)
		FROM users u WHERE u.id = $1`, userID).Scan(&e.XP, &e.Level, &e.Rank)
	if err != nil {
		return types.Entry{}, notFoundOr("user", userID, err)
	}
	return e, nil
}

// Count returns the number of users, or 0 when the query fails.
func (s *PostgresStore) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		s.log.Warn(ctx, "count users failed", logger.Error(err))
		return 0
	}
	return n
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
