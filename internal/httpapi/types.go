package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"quizforge/internal/quiz"
)

type generateQuizRequest struct {
	Topic      string `json:"topic" validate:"required"`
	Difficulty string `json:"difficulty" validate:"required,oneof=easy medium hard"`
}

type submitScoreRequest struct {
	FinalScore *int `json:"finalScore" validate:"required"`
}

var requestValidator = validator.New(validator.WithRequiredStructEnabled())

func validateRequest(dst any) error {
	err := requestValidator.Struct(dst)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", quiz.ErrInvalidRequest, err)
	}

	fields := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		fields = append(fields, fmt.Sprintf("%s is %s", jsonFieldName(fieldErr.Field()), describeTag(fieldErr.Tag())))
	}
	return fmt.Errorf("%w: %s", quiz.ErrInvalidRequest, strings.Join(fields, ", "))
}

func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func describeTag(tag string) string {
	switch tag {
	case "required":
		return "required"
	case "oneof":
		return "not one of easy, medium, hard"
	default:
		return "invalid"
	}
}

type generateQuizResponse struct {
	QuizID     string                `json:"quizId"`
	Topic      string                `json:"topic"`
	Difficulty quiz.Difficulty       `json:"difficulty"`
	Total      int                   `json:"total"`
	Questions  []quiz.PublicQuestion `json:"questions"`
}

type quizResponse struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	Difficulty quiz.Difficulty   `json:"difficulty"`
	State      quiz.GradingState `json:"state"`
	Score      int               `json:"score"`
	Total      int               `json:"total"`
	Questions  []quiz.Question   `json:"questions,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	GradedAt   *time.Time        `json:"gradedAt,omitempty"`
}

type quizEnvelope struct {
	Quiz quizResponse `json:"quiz"`
}

type quizListResponse struct {
	Quizzes []quizResponse `json:"quizzes"`
}

type statsResponse struct {
	Stats quiz.Stats `json:"stats"`
}

type userResponse struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"imageUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type userEnvelope struct {
	User userResponse `json:"user"`
}

type webhookResponse struct {
	Status string `json:"status"`
}

type healthResponse struct {
	Status string `json:"status"`
	Users  int    `json:"users"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toQuizResponse(item quiz.Quiz, withQuestions bool) quizResponse {
	response := quizResponse{
		ID:         item.ID,
		Topic:      item.Topic,
		Difficulty: item.Difficulty,
		State:      item.State,
		Score:      item.Score,
		Total:      item.Total,
		CreatedAt:  item.CreatedAt,
		GradedAt:   item.GradedAt,
	}
	if withQuestions {
		response.Questions = item.Questions
	}
	return response
}

func toUserResponse(user quiz.User) userResponse {
	return userResponse{
		ID:         user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		Name:       user.Name,
		ImageURL:   user.ImageURL,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	}
}
