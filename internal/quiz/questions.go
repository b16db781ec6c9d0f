package quiz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

const OptionsPerQuestion = 4

type Question struct {
	ID       int      `json:"id" validate:"min=1,max=10"`
	Question string   `json:"question" validate:"required"`
	Options  []string `json:"options" validate:"len=4,dive,required"`
	Answer   string   `json:"answer" validate:"required"`
}

// PublicQuestion is a Question without its answer key.
type PublicQuestion struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

var questionValidator = validator.New(validator.WithRequiredStructEnabled())

func ToPublicQuestions(questions []Question) []PublicQuestion {
	public := make([]PublicQuestion, 0, len(questions))
	for _, question := range questions {
		public = append(public, PublicQuestion{
			ID:       question.ID,
			Question: question.Question,
			Options:  question.Options,
		})
	}
	return public
}

// ParseGeneratedQuestions turns raw model output into exactly QuestionsPerQuiz
// validated questions. Any problem is reported as ErrInvalidContent; a partial
// result is never returned.
func ParseGeneratedQuestions(raw string) ([]Question, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty output", ErrInvalidContent)
	}

	decoder := json.NewDecoder(strings.NewReader(cleaned))
	var objects []map[string]json.RawMessage
	if err := decoder.Decode(&objects); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidContent, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON array", ErrInvalidContent)
	}
	if err := checkQuestionKeys(objects); err != nil {
		return nil, err
	}

	decoder = json.NewDecoder(strings.NewReader(cleaned))
	decoder.DisallowUnknownFields()
	var questions []Question
	if err := decoder.Decode(&questions); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidContent, err)
	}

	if err := ValidateQuestions(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

var questionKeys = map[string]struct{}{
	"id":       {},
	"question": {},
	"options":  {},
	"answer":   {},
}

// checkQuestionKeys requires the exact lowercase field names. encoding/json
// alone would accept "Answer" or "ANSWER".
func checkQuestionKeys(objects []map[string]json.RawMessage) error {
	for idx, object := range objects {
		for key := range object {
			if _, ok := questionKeys[key]; !ok {
				return fmt.Errorf("%w: question %d: unexpected field %q", ErrInvalidContent, idx+1, key)
			}
		}
	}
	return nil
}

func ValidateQuestions(questions []Question) error {
	if len(questions) != QuestionsPerQuiz {
		return fmt.Errorf("%w: expected %d questions, got %d", ErrInvalidContent, QuestionsPerQuiz, len(questions))
	}

	seenIDs := make(map[int]struct{}, len(questions))
	for idx := range questions {
		question := &questions[idx]
		question.Question = strings.TrimSpace(question.Question)
		question.Answer = strings.TrimSpace(question.Answer)
		for optIdx := range question.Options {
			question.Options[optIdx] = strings.TrimSpace(question.Options[optIdx])
		}

		if err := questionValidator.Struct(question); err != nil {
			return fmt.Errorf("%w: question %d: %v", ErrInvalidContent, idx+1, err)
		}

		if _, dup := seenIDs[question.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %d", ErrInvalidContent, question.ID)
		}
		seenIDs[question.ID] = struct{}{}

		if err := checkOptions(question); err != nil {
			return fmt.Errorf("%w: question %d: %v", ErrInvalidContent, question.ID, err)
		}
	}
	return nil
}

func checkOptions(question *Question) error {
	seen := make(map[string]struct{}, len(question.Options))
	matches := 0
	for _, option := range question.Options {
		if _, dup := seen[option]; dup {
			return fmt.Errorf("duplicate option %q", option)
		}
		seen[option] = struct{}{}
		if option == question.Answer {
			matches++
		}
	}
	if matches != 1 {
		return errors.New("answer is not one of the options")
	}
	return nil
}

// stripFences removes markdown code fences and blank lines that models tend
// to add around JSON despite being told not to.
func stripFences(raw string) string {
	var out bytes.Buffer
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			trimmed = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(trimmed, "```"), "json"))
		}
		if strings.HasSuffix(trimmed, "```") {
			trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
		}
		if trimmed == "" {
			continue
		}
		out.WriteString(trimmed)
		out.WriteByte('\n')
	}
	return strings.TrimSpace(out.String())
}
