package player

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quizforge/internal/quiz"
)

const DefaultServer = "http://127.0.0.1:8080"

var ErrServiceUnavailable = errors.New("quiz service unavailable")

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// GeneratedQuiz is what the service returns right after generation. The
// questions carry no answers.
type GeneratedQuiz struct {
	QuizID     string                `json:"quizId"`
	Topic      string                `json:"topic"`
	Difficulty quiz.Difficulty       `json:"difficulty"`
	Total      int                   `json:"total"`
	Questions  []quiz.PublicQuestion `json:"questions"`
}

type QuizView struct {
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

func (q QuizView) Graded() bool {
	return q.State == quiz.StateGraded
}

type UserView struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"imageUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type generateRequest struct {
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

type submitRequest struct {
	FinalScore int `json:"finalScore"`
}

type quizEnvelope struct {
	Quiz QuizView `json:"quiz"`
}

type quizListResponse struct {
	Quizzes []QuizView `json:"quizzes"`
}

type statsResponse struct {
	Stats quiz.Stats `json:"stats"`
}

type userEnvelope struct {
	User UserView `json:"user"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHTTPClient(baseURL, token string, httpClient *http.Client) *HTTPClient {
	baseURL = strings.TrimSpace(baseURL)
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultServer
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &HTTPClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) GenerateQuiz(ctx context.Context, topic string, difficulty quiz.Difficulty) (GeneratedQuiz, error) {
	request := generateRequest{Topic: topic, Difficulty: string(difficulty)}

	var payload GeneratedQuiz
	if err := c.doJSON(ctx, http.MethodPost, "/quiz/generate", request, &payload); err != nil {
		return GeneratedQuiz{}, err
	}
	return payload, nil
}

func (c *HTTPClient) ListQuizzes(ctx context.Context) ([]QuizView, error) {
	var payload quizListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/quiz", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Quizzes, nil
}

func (c *HTTPClient) GetQuiz(ctx context.Context, quizID string) (QuizView, error) {
	path, err := quizPath(quizID, "")
	if err != nil {
		return QuizView{}, err
	}

	var payload quizEnvelope
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return QuizView{}, err
	}
	return payload.Quiz, nil
}

func (c *HTTPClient) DeleteQuiz(ctx context.Context, quizID string) error {
	path, err := quizPath(quizID, "")
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *HTTPClient) SubmitScore(ctx context.Context, quizID string, finalScore int) (QuizView, error) {
	path, err := quizPath(quizID, "/submit")
	if err != nil {
		return QuizView{}, err
	}

	var payload quizEnvelope
	if err := c.doJSON(ctx, http.MethodPost, path, submitRequest{FinalScore: finalScore}, &payload); err != nil {
		return QuizView{}, err
	}
	return payload.Quiz, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (quiz.Stats, error) {
	var payload statsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/quiz/stats", nil, &payload); err != nil {
		return quiz.Stats{}, err
	}
	return payload.Stats, nil
}

// SyncUser returns the caller's stored profile. The profile itself is
// written by the identity webhook, so a 404 means it has not arrived yet.
func (c *HTTPClient) SyncUser(ctx context.Context) (UserView, error) {
	var payload userEnvelope
	if err := c.doJSON(ctx, http.MethodPost, "/user/sync", nil, &payload); err != nil {
		return UserView{}, err
	}
	return payload.User, nil
}

func quizPath(quizID, suffix string) (string, error) {
	quizID = strings.TrimSpace(quizID)
	if quizID == "" {
		return "", errors.New("quiz id is required")
	}
	return "/quiz/" + url.PathEscape(quizID) + suffix, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) error {
	fullURL := c.baseURL + path

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return err
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		apiErr := APIError{StatusCode: response.StatusCode}
		var payload errorResponse
		if err := json.NewDecoder(response.Body).Decode(&payload); err == nil && strings.TrimSpace(payload.Error) != "" {
			apiErr.Message = payload.Error
		}
		if apiErr.Message == "" {
			apiErr.Message = response.Status
		}
		return &apiErr
	}

	if responseBody == nil {
		return nil
	}
	return json.NewDecoder(response.Body).Decode(responseBody)
}
