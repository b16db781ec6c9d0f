package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"quizforge/internal/quiz"
)

type userRow struct {
	ID            string `db:"id"`
	ExternalID    string `db:"external_id"`
	Email         string `db:"email"`
	Name          string `db:"name"`
	ImageURL      string `db:"image_url"`
	CreatedAtUnix int64  `db:"created_at_unix"`
	UpdatedAtUnix int64  `db:"updated_at_unix"`
}

func (r userRow) toUser() quiz.User {
	return quiz.User{
		ID:         r.ID,
		ExternalID: r.ExternalID,
		Email:      r.Email,
		Name:       r.Name,
		ImageURL:   r.ImageURL,
		CreatedAt:  time.Unix(0, r.CreatedAtUnix).UTC(),
		UpdatedAt:  time.Unix(0, r.UpdatedAtUnix).UTC(),
	}
}

// UpsertUser is the only write path for users. Replaying the same profile
// leaves a single row with the latest provider fields; id and created_at are
// kept from the first insert.
func (s *Store) UpsertUser(ctx context.Context, profile quiz.UserProfile) (quiz.User, error) {
	externalID := strings.TrimSpace(profile.ExternalID)
	if externalID == "" {
		return quiz.User{}, errors.New("external id is required")
	}

	nowUnix := time.Now().UTC().UnixNano()
	_, err := s.db.ExecContext(
		ctx,
		s.db.Rebind(`INSERT INTO users (id, external_id, email, name, image_url, created_at_unix, updated_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			image_url = excluded.image_url,
			updated_at_unix = excluded.updated_at_unix`),
		uuid.NewString(),
		externalID,
		profile.Email,
		profile.Name,
		profile.ImageURL,
		nowUnix,
		nowUnix,
	)
	if err != nil {
		return quiz.User{}, err
	}

	return s.GetUserByExternalID(ctx, externalID)
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (quiz.User, error) {
	var row userRow
	err := s.db.GetContext(
		ctx,
		&row,
		s.db.Rebind(`SELECT id, external_id, email, name, image_url, created_at_unix, updated_at_unix
		 FROM users WHERE external_id = ?`),
		externalID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.User{}, quiz.ErrUserNotFound
		}
		return quiz.User{}, err
	}
	return row.toUser(), nil
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}
