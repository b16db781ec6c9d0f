package sqlstore

import (
	"context"
)

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL DEFAULT '',
			created_at_unix BIGINT NOT NULL,
			updated_at_unix BIGINT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			topic TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			-- grading state is explicit; score alone cannot tell a graded 0 from pending.
			state TEXT NOT NULL DEFAULT 'pending',
			score INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 10,
			questions_json TEXT NOT NULL,
			created_at_unix BIGINT NOT NULL,
			graded_at_unix BIGINT,
			CHECK (score >= 0 AND score <= total),
			CHECK (state IN ('pending', 'graded'))
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quizzes_owner_created ON quizzes(owner_id, created_at_unix DESC);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
