package repository

// schemaStatements create the tables used by PostgresStore. Each statement is
// idempotent so Migrate can run on every start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id           TEXT PRIMARY KEY,
		display_name TEXT    NOT NULL DEFAULT '',
		xp           BIGINT  NOT NULL DEFAULT 0 CHECK (xp >= 0),
		level        INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
		achievements TEXT[]  NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS users_leaderboard_idx ON users (xp DESC, id ASC)`,
	`CREATE TABLE IF NOT EXISTS teams (
		id          TEXT PRIMARY KEY,
		name        TEXT    NOT NULL DEFAULT '',
		max_members INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS team_members (
		team_id  TEXT    NOT NULL REFERENCES teams (id) ON DELETE CASCADE,
		user_id  TEXT    NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (team_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS quests (
		id        TEXT PRIMARY KEY,
		title     TEXT    NOT NULL DEFAULT '',
		location  TEXT    NOT NULL DEFAULT '',
		category  TEXT    NOT NULL DEFAULT '',
		xp_reward BIGINT  NOT NULL DEFAULT 0,
		min_level INTEGER NOT NULL DEFAULT 1,
		status    TEXT    NOT NULL DEFAULT 'active'
	)`,
	`CREATE TABLE IF NOT EXISTS completions (
		user_id      TEXT        NOT NULL,
		quest_id     TEXT        NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, quest_id)
	)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT        NOT NULL,
		quest_id   TEXT        NOT NULL DEFAULT '',
		votes      JSONB       NOT NULL DEFAULT '{}',
		upvotes    INTEGER     NOT NULL DEFAULT 0,
		downvotes  INTEGER     NOT NULL DEFAULT 0,
		vote_score INTEGER     NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS submissions_user_idx ON submissions (user_id, created_at, id)`,
}
