package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"

	"quizforge/internal/auth"
	"quizforge/internal/identity"
	"quizforge/internal/logging"
	"quizforge/internal/metrics"
	"quizforge/internal/pubsub"
	"quizforge/internal/quiz"
	"quizforge/internal/quiz/sqlstore"
)

const devSecret = "test-dev-secret"

var webhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("httpapi-webhook-secret"))

type stubText struct {
	mu     sync.Mutex
	output string
	err    error
}

func (s *stubText) GenerateText(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output, s.err
}

func generatedQuestionsJSON(t *testing.T) string {
	t.Helper()
	questions := make([]quiz.Question, 0, quiz.QuestionsPerQuiz)
	for idx := 1; idx <= quiz.QuestionsPerQuiz; idx++ {
		questions = append(questions, quiz.Question{
			ID:       idx,
			Question: fmt.Sprintf("Photosynthesis question %d?", idx),
			Options:  []string{"Light", "Sound", "Heat", "Wind"},
			Answer:   "Light",
		})
	}
	raw, err := json.Marshal(questions)
	require.NoError(t, err)
	return "```json\n" + string(raw) + "\n```"
}

type testEnv struct {
	router  http.Handler
	store   *sqlstore.Store
	text    *stubText
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, withWebhook bool) *testEnv {
	t.Helper()

	store, err := sqlstore.NewStore(sqlstore.Options{
		Driver: sqlstore.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	text := &stubText{output: generatedQuestionsJSON(t)}
	service := quiz.NewService(store, store, quiz.NewGenerator(text, time.Second), pubsub.NopPublisher{}, logging.Discard())
	gate := auth.NewGate(auth.NewHMACVerifier(devSecret, ""), service)

	var syncer *identity.Syncer
	if withWebhook {
		verifier, err := identity.NewSvixVerifier(webhookSecret)
		require.NoError(t, err)
		syncer = identity.NewSyncer(verifier, store, pubsub.NopPublisher{}, logging.Discard())
	}

	m := metrics.New()
	router := NewRouter(Deps{
		Service:  service,
		Gate:     gate,
		Identity: syncer,
		Health:   store,
		Metrics:  m,
		Logger:   logging.Discard(),
	})

	return &testEnv{router: router, store: store, text: text, metrics: m}
}

func (e *testEnv) seedUser(t *testing.T, externalID string) quiz.User {
	t.Helper()
	user, err := e.store.UpsertUser(context.Background(), quiz.UserProfile{ExternalID: externalID})
	require.NoError(t, err)
	return user
}

func (e *testEnv) do(t *testing.T, method, path, externalID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch value := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(value))
	default:
		raw, err := json.Marshal(value)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if externalID != "" {
		token, err := auth.IssueHMACToken(devSecret, "", externalID, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload), rec.Body.String())
	return payload
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rec).Error
}

func (e *testEnv) generate(t *testing.T, externalID, topic, difficulty string) generateQuizResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/quiz/generate", externalID, map[string]string{
		"topic":      topic,
		"difficulty": difficulty,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[generateQuizResponse](t, rec)
}

func TestPhotosynthesisScenario(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")

	rec := env.do(t, http.MethodPost, "/quiz/generate", "user_alice", map[string]string{
		"topic":      "Photosynthesis",
		"difficulty": "easy",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"answer"`)

	created := decodeBody[generateQuizResponse](t, rec)
	assert.NotEmpty(t, created.QuizID)
	assert.Equal(t, "Photosynthesis", created.Topic)
	assert.Equal(t, quiz.DifficultyEasy, created.Difficulty)
	assert.Equal(t, 10, created.Total)
	require.Len(t, created.Questions, 10)
	for _, question := range created.Questions {
		assert.Len(t, question.Options, 4)
	}

	rec = env.do(t, http.MethodGet, "/quiz/"+created.QuizID, "user_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeBody[quizEnvelope](t, rec).Quiz
	assert.Equal(t, quiz.StatePending, fetched.State)
	require.Len(t, fetched.Questions, 10)
	assert.Equal(t, "Light", fetched.Questions[0].Answer)

	rec = env.do(t, http.MethodPost, "/quiz/"+created.QuizID+"/submit", "user_alice", map[string]int{"finalScore": 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	graded := decodeBody[quizEnvelope](t, rec).Quiz
	assert.Equal(t, quiz.StateGraded, graded.State)
	assert.Equal(t, 7, graded.Score)

	rec = env.do(t, http.MethodPost, "/quiz/"+created.QuizID+"/submit", "user_alice", map[string]int{"finalScore": 9})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "quiz already submitted", errorMessage(t, rec))

	rec = env.do(t, http.MethodGet, "/quiz/"+created.QuizID, "user_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	final := decodeBody[quizEnvelope](t, rec).Quiz
	assert.Equal(t, 7, final.Score)
	assert.Equal(t, 10, final.Total)
	assert.NotNil(t, final.GradedAt)
}

func TestSameTopicTwiceCreatesTwoQuizzes(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")

	first := env.generate(t, "user_alice", "Photosynthesis", "easy")
	second := env.generate(t, "user_alice", "Photosynthesis", "easy")
	assert.NotEqual(t, first.QuizID, second.QuizID)

	rec := env.do(t, http.MethodGet, "/quiz", "user_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[quizListResponse](t, rec)
	require.Len(t, list.Quizzes, 2)
	assert.Empty(t, list.Quizzes[0].Questions)
}

func TestAuthFailures(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPost, "/quiz/generate", "", map[string]string{"topic": "Go", "difficulty": "easy"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorMessage(t, rec))

	rec = env.do(t, http.MethodGet, "/quiz", "user_never_synced", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "user not found", errorMessage(t, rec))

	req := httptest.NewRequest(http.MethodGet, "/quiz", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestGenerateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")

	tests := map[string]any{
		"unknown difficulty": map[string]string{"topic": "Go", "difficulty": "extreme"},
		"missing topic":      map[string]string{"difficulty": "easy"},
		"blank topic":        map[string]string{"topic": "   ", "difficulty": "easy"},
		"long topic":         map[string]string{"topic": strings.Repeat("a", 201), "difficulty": "easy"},
		"malformed json":     `{"topic":`,
		"empty body":         nil,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/quiz/generate", "user_alice", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := env.do(t, http.MethodGet, "/quiz", "user_alice", nil)
	assert.Empty(t, decodeBody[quizListResponse](t, rec).Quizzes)
}

func TestGenerateFailureIsUniform500(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")

	for name, setup := range map[string]func(){
		"upstream error": func() { env.text.output, env.text.err = "", errors.New("api key leaked-in-message") },
		"bad content":    func() { env.text.output, env.text.err = `[{"id":1}]`, nil },
	} {
		t.Run(name, func(t *testing.T) {
			setup()
			rec := env.do(t, http.MethodPost, "/quiz/generate", "user_alice", map[string]string{
				"topic":      "Go",
				"difficulty": "medium",
			})
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "failed to generate quiz", errorMessage(t, rec))
		})
	}

	rec := env.do(t, http.MethodGet, "/quiz", "user_alice", nil)
	assert.Empty(t, decodeBody[quizListResponse](t, rec).Quizzes)
}

func TestOwnershipIsolation(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")
	env.seedUser(t, "user_bob")

	created := env.generate(t, "user_alice", "Go", "hard")
	quizPath := "/quiz/" + created.QuizID

	rec := env.do(t, http.MethodGet, quizPath, "user_bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "quiz not found", errorMessage(t, rec))

	rec = env.do(t, http.MethodPost, quizPath+"/submit", "user_bob", map[string]int{"finalScore": 10})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, quizPath, "user_bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, quizPath, "user_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, quiz.StatePending, decodeBody[quizEnvelope](t, rec).Quiz.State)

	rec = env.do(t, http.MethodGet, "/quiz/does-not-exist", "user_alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteQuiz(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")
	created := env.generate(t, "user_alice", "Go", "easy")

	rec := env.do(t, http.MethodDelete, "/quiz/"+created.QuizID, "user_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/quiz/"+created.QuizID, "user_alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitRejectsBadScores(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")
	created := env.generate(t, "user_alice", "Go", "easy")
	submitPath := "/quiz/" + created.QuizID + "/submit"

	for name, body := range map[string]any{
		"too high": map[string]int{"finalScore": 11},
		"negative": map[string]int{"finalScore": -1},
		"missing":  map[string]int{},
		"string":   `{"finalScore":"seven"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, submitPath, "user_alice", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := env.do(t, http.MethodPost, submitPath, "user_alice", map[string]int{"finalScore": 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, quiz.StateGraded, decodeBody[quizEnvelope](t, rec).Quiz.State)
}

func TestConcurrentSubmitsExactlyOneWins(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")
	created := env.generate(t, "user_alice", "Go", "easy")
	submitPath := "/quiz/" + created.QuizID + "/submit"

	const workers = 10
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		codes = make([]int, workers)
	)
	for idx := 0; idx < workers; idx++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			rec := env.do(t, http.MethodPost, submitPath, "user_alice", map[string]int{"finalScore": idx})
			codes[idx] = rec.Code
		}(idx)
	}
	close(start)
	wg.Wait()

	ok, rejected := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, rejected)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")
	first := env.generate(t, "user_alice", "Go", "easy")
	env.generate(t, "user_alice", "Rust", "easy")

	rec := env.do(t, http.MethodPost, "/quiz/"+first.QuizID+"/submit", "user_alice", map[string]int{"finalScore": 8})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/quiz/stats", "user_alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[statsResponse](t, rec).Stats
	assert.Equal(t, 2, stats.TotalQuizzes)
	assert.Equal(t, 1, stats.GradedQuizzes)
	assert.Equal(t, 8, stats.TotalScore)
	assert.InDelta(t, 80.0, stats.AveragePercent, 0.001)
}

func webhookRequest(t *testing.T, secret string, body []byte) *http.Request {
	t.Helper()

	wh, err := svix.NewWebhook(secret)
	require.NoError(t, err)
	now := time.Now()
	signature, err := wh.Sign("msg_test", now, body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(body))
	req.Header.Set("svix-id", "msg_test")
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("svix-signature", signature)
	return req
}

func TestIdentityWebhookThenUserSync(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(t, http.MethodPost, "/user/sync", "user_2abc", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	body := []byte(`{"type":"user.created","data":{"id":"user_2abc","first_name":"Ada","last_name":"Lovelace",
		"primary_email_address_id":"idn_1",
		"email_addresses":[{"id":"idn_1","email_address":"ada@example.com","verification":{"status":"verified"}}]}}`)
	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, webhookRequest(t, webhookSecret, body))
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	assert.Equal(t, "synced", decodeBody[webhookResponse](t, recorder).Status)

	rec = env.do(t, http.MethodPost, "/user/sync", "user_2abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decodeBody[userEnvelope](t, rec).User
	assert.Equal(t, "user_2abc", user.ExternalID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.Equal(t, "Ada Lovelace", user.Name)

	created := env.generate(t, "user_2abc", "Analytical engines", "hard")
	assert.NotEmpty(t, created.QuizID)
}

func TestIdentityWebhookRejections(t *testing.T) {
	body := []byte(`{"type":"user.created","data":{"id":"user_evil"}}`)

	t.Run("missing headers", func(t *testing.T) {
		env := newTestEnv(t, true)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		env := newTestEnv(t, true)
		other := "whsec_" + base64.StdEncoding.EncodeToString([]byte("a-different-secret"))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, webhookRequest(t, other, body))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		count, err := env.store.CountUsers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("secret not configured", func(t *testing.T) {
		env := newTestEnv(t, false)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, webhookRequest(t, webhookSecret, body))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("ignored kind", func(t *testing.T) {
		env := newTestEnv(t, true)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, webhookRequest(t, webhookSecret, []byte(`{"type":"session.ended","data":{}}`)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ignored", decodeBody[webhookResponse](t, rec).Status)
	})
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)
	env.seedUser(t, "user_alice")

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[healthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Users)

	require.NoError(t, env.store.Close())
	rec = env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(t, http.MethodPut, "/quiz/generate", "user_alice", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))

	rec = env.do(t, http.MethodPatch, "/quiz/abc", "user_alice", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, DELETE", rec.Header().Get("Allow"))
}

func TestServiceErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{auth.ErrUnauthorized, http.StatusUnauthorized},
		{identity.ErrUnauthorized, http.StatusUnauthorized},
		{identity.ErrWebhookSecretMissing, http.StatusInternalServerError},
		{quiz.ErrUserNotFound, http.StatusNotFound},
		{quiz.ErrQuizNotFound, http.StatusNotFound},
		{quiz.ErrAlreadySubmitted, http.StatusBadRequest},
		{fmt.Errorf("%w: topic is required", quiz.ErrInvalidRequest), http.StatusBadRequest},
		{fmt.Errorf("%w: %w", quiz.ErrGenerationFailed, quiz.ErrInvalidContent), http.StatusInternalServerError},
		{errors.New("disk I/O error"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		status, message := serviceErrorStatus(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.NotEmpty(t, message)
	}

	_, message := serviceErrorStatus(errors.New("disk I/O error"))
	assert.Equal(t, "request failed", message)
}
