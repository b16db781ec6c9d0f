package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"quizforge/internal/auth"
	"quizforge/internal/identity"
	"quizforge/internal/quiz"
)

const (
	maxJSONBodyBytes    = 16 << 10
	maxWebhookBodyBytes = 1 << 20
)

var errBodyTooLarge = errors.New("request body too large")

// serviceErrorStatus maps domain errors to a status and a message that is
// safe to show clients. Upstream and storage details never leave the server.
func serviceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, identity.ErrUnauthorized):
		return http.StatusUnauthorized, "invalid webhook signature"
	case errors.Is(err, identity.ErrWebhookSecretMissing):
		return http.StatusInternalServerError, "webhook signing secret is not configured"
	case errors.Is(err, identity.ErrInvalidPayload):
		return http.StatusBadRequest, "invalid webhook payload"
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, quiz.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, quiz.ErrQuizNotFound):
		return http.StatusNotFound, "quiz not found"
	case errors.Is(err, quiz.ErrAlreadySubmitted):
		return http.StatusBadRequest, "quiz already submitted"
	case errors.Is(err, quiz.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, quiz.ErrGenerationFailed), errors.Is(err, quiz.ErrGeneratorNotReady):
		return http.StatusInternalServerError, "failed to generate quiz"
	default:
		return http.StatusInternalServerError, "request failed"
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := serviceErrorStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithField("path", r.URL.Path).Error("request error")
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func (a *API) requireService(w http.ResponseWriter) bool {
	if a.service == nil || a.gate == nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "quiz service unavailable"})
		return false
	}
	return true
}

// currentUser resolves the caller or writes the 401/404 response.
func (a *API) currentUser(w http.ResponseWriter, r *http.Request) (quiz.User, bool) {
	user, err := a.gate.Resolve(r)
	if err != nil {
		a.writeServiceError(w, r, err)
		return quiz.User{}, false
	}
	return user, true
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return errBodyTooLarge
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is required", quiz.ErrInvalidRequest)
		default:
			return fmt.Errorf("%w: invalid JSON body", quiz.ErrInvalidRequest)
		}
	}
	return validateRequest(dst)
}

func readRawBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	defer r.Body.Close()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return body, nil
}

func pathID(r *http.Request, key string) string {
	return strings.TrimSpace(r.PathValue(key))
}

func writeMethodNotAllowed(w http.ResponseWriter, allowedMethods ...string) {
	w.Header().Set("Allow", strings.Join(allowedMethods, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
