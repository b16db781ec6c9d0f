package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quizforge/internal/quiz"
)

type quizRow struct {
	ID            string        `db:"id"`
	OwnerID       string        `db:"owner_id"`
	Topic         string        `db:"topic"`
	Difficulty    string        `db:"difficulty"`
	State         string        `db:"state"`
	Score         int           `db:"score"`
	Total         int           `db:"total"`
	QuestionsJSON string        `db:"questions_json"`
	CreatedAtUnix int64         `db:"created_at_unix"`
	GradedAtUnix  sql.NullInt64 `db:"graded_at_unix"`
}

const quizColumns = `id, owner_id, topic, difficulty, state, score, total, questions_json, created_at_unix, graded_at_unix`

func (r quizRow) toQuiz() (quiz.Quiz, error) {
	var questions []quiz.Question
	if err := json.Unmarshal([]byte(r.QuestionsJSON), &questions); err != nil {
		return quiz.Quiz{}, fmt.Errorf("decode questions for quiz %s: %w", r.ID, err)
	}

	item := quiz.Quiz{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Topic:      r.Topic,
		Difficulty: quiz.Difficulty(r.Difficulty),
		State:      quiz.GradingState(r.State),
		Score:      r.Score,
		Total:      r.Total,
		Questions:  questions,
		CreatedAt:  time.Unix(0, r.CreatedAtUnix).UTC(),
	}
	if r.GradedAtUnix.Valid {
		gradedAt := time.Unix(0, r.GradedAtUnix.Int64).UTC()
		item.GradedAt = &gradedAt
	}
	return item, nil
}

func (s *Store) CreateQuiz(ctx context.Context, item quiz.Quiz) error {
	if item.ID == "" {
		return errors.New("quiz id is required")
	}
	if item.OwnerID == "" {
		return errors.New("quiz owner is required")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.State == "" {
		item.State = quiz.StatePending
	}

	questionsJSON, err := json.Marshal(item.Questions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		s.db.Rebind(`INSERT INTO quizzes (id, owner_id, topic, difficulty, state, score, total, questions_json, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID,
		item.OwnerID,
		item.Topic,
		string(item.Difficulty),
		string(item.State),
		item.Score,
		item.Total,
		string(questionsJSON),
		item.CreatedAt.UnixNano(),
	)
	return err
}

func (s *Store) GetOwnedQuiz(ctx context.Context, quizID, ownerID string) (quiz.Quiz, error) {
	var row quizRow
	err := s.db.GetContext(
		ctx,
		&row,
		s.db.Rebind(`SELECT `+quizColumns+` FROM quizzes WHERE id = ? AND owner_id = ?`),
		quizID,
		ownerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Quiz{}, quiz.ErrQuizNotFound
		}
		return quiz.Quiz{}, err
	}
	return row.toQuiz()
}

func (s *Store) ListQuizzes(ctx context.Context, ownerID string) ([]quiz.Quiz, error) {
	var rows []quizRow
	err := s.db.SelectContext(
		ctx,
		&rows,
		s.db.Rebind(`SELECT `+quizColumns+`
		 FROM quizzes
		 WHERE owner_id = ?
		 ORDER BY created_at_unix DESC, id DESC`),
		ownerID,
	)
	if err != nil {
		return nil, err
	}

	quizzes := make([]quiz.Quiz, 0, len(rows))
	for _, row := range rows {
		item, err := row.toQuiz()
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, item)
	}
	return quizzes, nil
}

func (s *Store) DeleteQuiz(ctx context.Context, quizID, ownerID string) error {
	result, err := s.db.ExecContext(
		ctx,
		s.db.Rebind(`DELETE FROM quizzes WHERE id = ? AND owner_id = ?`),
		quizID,
		ownerID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return quiz.ErrQuizNotFound
	}
	return nil
}

// SetScoreIfUnset moves a quiz from pending to graded in a single statement.
//
// Invariants:
//   - Only a pending row owned by ownerID can match the WHERE clause, so at
//     most one of any number of concurrent callers sees RowsAffected == 1.
//   - A graded row is never overwritten.
//
// When nothing transitions, an owner-scoped read tells "absent" apart from
// "already graded".
func (s *Store) SetScoreIfUnset(ctx context.Context, quizID, ownerID string, score int, gradedAt time.Time) error {
	result, err := s.db.ExecContext(
		ctx,
		s.db.Rebind(`UPDATE quizzes
		 SET state = ?, score = ?, graded_at_unix = ?
		 WHERE id = ? AND owner_id = ? AND state = ?`),
		string(quiz.StateGraded),
		score,
		gradedAt.UnixNano(),
		quizID,
		ownerID,
		string(quiz.StatePending),
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	var state string
	err = s.db.GetContext(
		ctx,
		&state,
		s.db.Rebind(`SELECT state FROM quizzes WHERE id = ? AND owner_id = ?`),
		quizID,
		ownerID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.ErrQuizNotFound
		}
		return err
	}
	return quiz.ErrAlreadySubmitted
}

type statsRow struct {
	TotalQuizzes  int             `db:"total_quizzes"`
	GradedQuizzes int             `db:"graded_quizzes"`
	TotalScore    int             `db:"total_score"`
	TotalPossible int             `db:"total_possible"`
	BestPercent   sql.NullFloat64 `db:"best_percent"`
}

// OwnerStats aggregates over graded quizzes; pending quizzes only count
// towards TotalQuizzes.
func (s *Store) OwnerStats(ctx context.Context, ownerID string) (quiz.Stats, error) {
	var row statsRow
	err := s.db.GetContext(
		ctx,
		&row,
		s.db.Rebind(`SELECT
			COUNT(*) AS total_quizzes,
			COALESCE(SUM(CASE WHEN state = 'graded' THEN 1 ELSE 0 END), 0) AS graded_quizzes,
			COALESCE(SUM(CASE WHEN state = 'graded' THEN score ELSE 0 END), 0) AS total_score,
			COALESCE(SUM(CASE WHEN state = 'graded' THEN total ELSE 0 END), 0) AS total_possible,
			MAX(CASE WHEN state = 'graded' AND total > 0 THEN CAST(score AS DOUBLE PRECISION) * 100 / total END) AS best_percent
		 FROM quizzes
		 WHERE owner_id = ?`),
		ownerID,
	)
	if err != nil {
		return quiz.Stats{}, err
	}

	stats := quiz.Stats{
		TotalQuizzes:  row.TotalQuizzes,
		GradedQuizzes: row.GradedQuizzes,
		TotalScore:    row.TotalScore,
		TotalPossible: row.TotalPossible,
	}
	if row.TotalPossible > 0 {
		stats.AveragePercent = float64(row.TotalScore) * 100 / float64(row.TotalPossible)
	}
	if row.BestPercent.Valid {
		stats.BestPercent = row.BestPercent.Float64
	}
	return stats, nil
}
