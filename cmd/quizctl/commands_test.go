package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizforge/internal/auth"
)

func execute(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("QUIZ_TOKEN", "")
	t.Setenv("QUIZ_SERVER", "")

	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(input), &out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	out, err := execute(t, "", "token", "--secret", "dev-secret", "--issuer", "quizforge-dev", "--subject", "user_123")
	require.NoError(t, err)

	subject, err := auth.NewHMACVerifier("dev-secret", "quizforge-dev").Verify(context.Background(), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "user_123", subject)
}

func TestTokenCommandRequiresSubject(t *testing.T) {
	_, err := execute(t, "", "token", "--secret", "dev-secret")
	assert.Error(t, err)
}

func TestCommandsRequireToken(t *testing.T) {
	for _, args := range [][]string{{"list"}, {"stats"}, {"show", "quiz-1"}, {"delete", "quiz-1"}, {"play", "quiz-1"}, {"generate", "Go"}} {
		_, err := execute(t, "", args...)
		require.Error(t, err, args)
		assert.Contains(t, err.Error(), "session token is required")
	}
}

func TestGenerateRejectsUnknownDifficulty(t *testing.T) {
	_, err := execute(t, "", "--token", "abc", "generate", "--difficulty", "extreme", "Go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "difficulty must be easy, medium or hard")
}

func TestListAndShowAgainstServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /quiz", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"quizzes":[{"id":"quiz-9","topic":"Go","difficulty":"hard","state":"graded","score":7,"total":10,"createdAt":"2026-01-02T03:04:05Z"}]}`))
	})
	mux.HandleFunc("GET /quiz/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"quiz":{"id":"quiz-9","topic":"Go","difficulty":"hard","state":"pending","score":0,"total":10,"createdAt":"2026-01-02T03:04:05Z","questions":[{"id":1,"question":"Zero value of a map?","options":["nil","{}","0","panic"],"answer":"nil"}]}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	out, err := execute(t, "", "--server", server.URL, "--token", "abc", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "1. quiz-9 [hard] Go (score 7/10")

	out, err = execute(t, "", "--server", server.URL, "--token", "abc", "show", "quiz-9")
	require.NoError(t, err)
	assert.Contains(t, out, "Go (hard) state=pending")
	assert.Contains(t, out, "Q1: Zero value of a map?")
	assert.Contains(t, out, " *A. nil")
	assert.Contains(t, out, "  B. {}")
}

func TestDescribesUnavailableServer(t *testing.T) {
	_, err := execute(t, "", "--server", "http://127.0.0.1:1", "--token", "abc", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quiz service unavailable at http://127.0.0.1:1")
}
