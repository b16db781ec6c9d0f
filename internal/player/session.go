package player

import (
	"errors"
	"fmt"

	"quizforge/internal/quiz"
)

var (
	ErrAlreadyAnswered   = errors.New("question already answered")
	ErrUnknownQuestion   = errors.New("unknown question")
	ErrInvalidChoice     = errors.New("choice is not one of the options")
	ErrSessionIncomplete = errors.New("not every question has been answered")
	ErrAlreadySubmitted  = errors.New("score already submitted")
)

type AnswerState string

const (
	Unanswered        AnswerState = "unanswered"
	AnsweredCorrect   AnswerState = "correct"
	AnsweredIncorrect AnswerState = "incorrect"
)

// Outcome is one entry of the append-only answer log. Choice is empty when
// the question was skipped.
type Outcome struct {
	QuestionID int
	Choice     string
	Correct    bool
}

// Session tracks one play-through of a quiz. Each question moves from
// Unanswered to exactly one answered state; the score is derived from the
// log and never stored separately.
type Session struct {
	quizID    string
	questions []quiz.Question
	states    []AnswerState
	log       []Outcome
	submitted bool
}

func NewSession(quizID string, questions []quiz.Question) (*Session, error) {
	if quizID == "" {
		return nil, errors.New("quiz id is required")
	}
	if len(questions) == 0 {
		return nil, errors.New("quiz has no questions")
	}

	states := make([]AnswerState, len(questions))
	for idx := range states {
		states[idx] = Unanswered
	}
	return &Session{
		quizID:    quizID,
		questions: append([]quiz.Question(nil), questions...),
		states:    states,
	}, nil
}

func (s *Session) QuizID() string {
	return s.quizID
}

func (s *Session) Total() int {
	return len(s.questions)
}

func (s *Session) Question(index int) (quiz.Question, error) {
	if index < 0 || index >= len(s.questions) {
		return quiz.Question{}, fmt.Errorf("%w: %d", ErrUnknownQuestion, index)
	}
	return s.questions[index], nil
}

func (s *Session) State(index int) AnswerState {
	if index < 0 || index >= len(s.states) {
		return Unanswered
	}
	return s.states[index]
}

// Answer records choice for the question at index. Choice must match one of
// the question's options exactly.
func (s *Session) Answer(index int, choice string) (Outcome, error) {
	question, err := s.Question(index)
	if err != nil {
		return Outcome{}, err
	}
	if s.states[index] != Unanswered {
		return Outcome{}, fmt.Errorf("%w: question %d", ErrAlreadyAnswered, question.ID)
	}
	if !containsOption(question.Options, choice) {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	return s.record(index, Outcome{
		QuestionID: question.ID,
		Choice:     choice,
		Correct:    choice == question.Answer,
	}), nil
}

// Skip marks the question at index as answered incorrectly.
func (s *Session) Skip(index int) (Outcome, error) {
	question, err := s.Question(index)
	if err != nil {
		return Outcome{}, err
	}
	if s.states[index] != Unanswered {
		return Outcome{}, fmt.Errorf("%w: question %d", ErrAlreadyAnswered, question.ID)
	}
	return s.record(index, Outcome{QuestionID: question.ID}), nil
}

func (s *Session) record(index int, outcome Outcome) Outcome {
	if outcome.Correct {
		s.states[index] = AnsweredCorrect
	} else {
		s.states[index] = AnsweredIncorrect
	}
	s.log = append(s.log, outcome)
	return outcome
}

func (s *Session) Score() int {
	score := 0
	for _, outcome := range s.log {
		if outcome.Correct {
			score++
		}
	}
	return score
}

func (s *Session) Answered() int {
	return len(s.log)
}

func (s *Session) Done() bool {
	return len(s.log) == len(s.questions)
}

func (s *Session) Outcomes() []Outcome {
	return append([]Outcome(nil), s.log...)
}

// Submission returns the final score once every question is answered and
// the score has not been marked as submitted.
func (s *Session) Submission() (int, error) {
	if s.submitted {
		return 0, ErrAlreadySubmitted
	}
	if !s.Done() {
		return 0, fmt.Errorf("%w: %d of %d", ErrSessionIncomplete, len(s.log), len(s.questions))
	}
	return s.Score(), nil
}

func (s *Session) MarkSubmitted() {
	s.submitted = true
}

func (s *Session) Submitted() bool {
	return s.submitted
}

func containsOption(options []string, choice string) bool {
	for _, option := range options {
		if option == choice {
			return true
		}
	}
	return false
}
