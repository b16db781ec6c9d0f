package quiz

import (
	"context"
	"errors"
	"time"
)

var (
	ErrQuizNotFound      = errors.New("quiz not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrAlreadySubmitted  = errors.New("quiz already submitted")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrGenerationFailed  = errors.New("quiz generation failed")
	ErrInvalidContent    = errors.New("generated content is invalid")
	ErrGeneratorNotReady = errors.New("question generator is not configured")
)

// QuestionsPerQuiz is fixed: every quiz has exactly this many questions and
// its Total is set to it on creation.
const QuestionsPerQuiz = 10

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func ParseDifficulty(value string) (Difficulty, bool) {
	switch Difficulty(value) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return Difficulty(value), true
	default:
		return "", false
	}
}

// GradingState is tracked separately from Score so a legitimate zero score
// is never mistaken for "not yet graded".
type GradingState string

const (
	StatePending GradingState = "pending"
	StateGraded  GradingState = "graded"
)

type Quiz struct {
	ID         string
	OwnerID    string
	Topic      string
	Difficulty Difficulty
	State      GradingState
	Score      int
	Total      int
	Questions  []Question
	CreatedAt  time.Time
	GradedAt   *time.Time
}

func (q Quiz) Graded() bool {
	return q.State == StateGraded
}

type User struct {
	ID         string
	ExternalID string
	Email      string
	Name       string
	ImageURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// UserProfile is the provider-derived part of a User. It is the only input
// accepted by UserRepository.UpsertUser.
type UserProfile struct {
	ExternalID string
	Email      string
	Name       string
	ImageURL   string
}

type Stats struct {
	TotalQuizzes   int     `json:"totalQuizzes"`
	GradedQuizzes  int     `json:"gradedQuizzes"`
	TotalScore     int     `json:"totalScore"`
	TotalPossible  int     `json:"totalPossible"`
	AveragePercent float64 `json:"averagePercent"`
	BestPercent    float64 `json:"bestPercent"`
}

type QuizRepository interface {
	CreateQuiz(ctx context.Context, quiz Quiz) error
	GetOwnedQuiz(ctx context.Context, quizID, ownerID string) (Quiz, error)
	ListQuizzes(ctx context.Context, ownerID string) ([]Quiz, error)
	DeleteQuiz(ctx context.Context, quizID, ownerID string) error
	// SetScoreIfUnset must be a single conditional write. It returns
	// ErrQuizNotFound or ErrAlreadySubmitted when no row transitions.
	SetScoreIfUnset(ctx context.Context, quizID, ownerID string, score int, gradedAt time.Time) error
	OwnerStats(ctx context.Context, ownerID string) (Stats, error)
}

type UserRepository interface {
	UpsertUser(ctx context.Context, profile UserProfile) (User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (User, error)
	CountUsers(ctx context.Context) (int, error)
}

// Notifier receives domain events after they are committed. Implementations
// are best effort; failures never undo the committed change.
type Notifier interface {
	QuizGraded(ctx context.Context, quiz Quiz) error
}
