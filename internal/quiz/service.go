package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Service struct {
	quizzes   QuizRepository
	users     UserRepository
	generator *Generator
	notifier  Notifier
	logger    *logrus.Entry
	now       func() time.Time
}

func NewService(quizzes QuizRepository, users UserRepository, generator *Generator, notifier Notifier, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		quizzes:   quizzes,
		users:     users,
		generator: generator,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ResolveUser(ctx context.Context, externalID string) (User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return User{}, ErrUserNotFound
	}
	return s.users.GetUserByExternalID(ctx, externalID)
}

// GenerateQuiz asks the generator for questions and persists a new pending
// quiz. Nothing is stored when generation fails.
func (s *Service) GenerateQuiz(ctx context.Context, ownerID, topic string, difficulty Difficulty) (Quiz, error) {
	questions, err := s.generator.Generate(ctx, topic, difficulty)
	if err != nil {
		return Quiz{}, err
	}

	quiz := Quiz{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Topic:      strings.TrimSpace(topic),
		Difficulty: difficulty,
		State:      StatePending,
		Score:      0,
		Total:      QuestionsPerQuiz,
		Questions:  questions,
		CreatedAt:  s.now(),
	}
	if err := s.quizzes.CreateQuiz(ctx, quiz); err != nil {
		return Quiz{}, err
	}
	return quiz, nil
}

func (s *Service) GetQuiz(ctx context.Context, quizID, ownerID string) (Quiz, error) {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" {
		return Quiz{}, ErrQuizNotFound
	}
	return s.quizzes.GetOwnedQuiz(ctx, quizID, ownerID)
}

func (s *Service) ListQuizzes(ctx context.Context, ownerID string) ([]Quiz, error) {
	return s.quizzes.ListQuizzes(ctx, ownerID)
}

func (s *Service) DeleteQuiz(ctx context.Context, quizID, ownerID string) error {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" {
		return ErrQuizNotFound
	}
	return s.quizzes.DeleteQuiz(ctx, quizID, ownerID)
}

// SubmitScore records the final score of a quiz exactly once.
//
// The pre-read only gives fast, specific answers for the common cases. The
// guarantee comes from SetScoreIfUnset, which transitions pending -> graded in
// one conditional write, so concurrent duplicates cannot both succeed.
//
// finalScore is computed by the client and is not recomputed here; it is only
// checked against the quiz bounds.
func (s *Service) SubmitScore(ctx context.Context, quizID, ownerID string, finalScore int) (Quiz, error) {
	quiz, err := s.GetQuiz(ctx, quizID, ownerID)
	if err != nil {
		return Quiz{}, err
	}
	if quiz.Graded() {
		return Quiz{}, ErrAlreadySubmitted
	}
	if finalScore < 0 || finalScore > quiz.Total {
		return Quiz{}, fmt.Errorf("%w: finalScore must be between 0 and %d", ErrInvalidRequest, quiz.Total)
	}

	gradedAt := s.now()
	if err := s.quizzes.SetScoreIfUnset(ctx, quiz.ID, ownerID, finalScore, gradedAt); err != nil {
		return Quiz{}, err
	}

	quiz.State = StateGraded
	quiz.Score = finalScore
	quiz.GradedAt = &gradedAt

	if s.notifier != nil {
		// Delivery is best effort; the grade is already committed.
		if err := s.notifier.QuizGraded(ctx, quiz); err != nil {
			s.logger.WithError(err).WithField("quiz_id", quiz.ID).Warn("failed to publish quiz graded event")
		}
	}
	return quiz, nil
}

func (s *Service) Stats(ctx context.Context, ownerID string) (Stats, error) {
	return s.quizzes.OwnerStats(ctx, ownerID)
}

// IsClientError reports whether err should be shown to the caller as a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAlreadySubmitted)
}
