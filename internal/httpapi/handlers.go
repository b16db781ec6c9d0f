package httpapi

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"quizforge/internal/identity"
	"quizforge/internal/quiz"
)

func (a *API) HandleGenerateQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.requireService(w) {
		return
	}

	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var request generateQuizRequest
	if err := decodeJSON(w, r, &request); err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	created, err := a.service.GenerateQuiz(r.Context(), user.ID, request.Topic, quiz.Difficulty(request.Difficulty))
	if err != nil {
		if quiz.IsClientError(err) {
			a.metrics.ObserveGeneration("rejected")
		} else {
			a.metrics.ObserveGeneration("failed")
		}
		a.writeServiceError(w, r, err)
		return
	}
	a.metrics.ObserveGeneration("success")

	writeJSON(w, http.StatusOK, generateQuizResponse{
		QuizID:     created.ID,
		Topic:      created.Topic,
		Difficulty: created.Difficulty,
		Total:      created.Total,
		Questions:  quiz.ToPublicQuestions(created.Questions),
	})
}

func (a *API) HandleListQuizzes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !a.requireService(w) {
		return
	}

	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	quizzes, err := a.service.ListQuizzes(r.Context(), user.ID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	response := quizListResponse{Quizzes: make([]quizResponse, 0, len(quizzes))}
	for _, item := range quizzes {
		response.Quizzes = append(response.Quizzes, toQuizResponse(item, false))
	}
	writeJSON(w, http.StatusOK, response)
}

func (a *API) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !a.requireService(w) {
		return
	}

	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	stats, err := a.service.Stats(r.Context(), user.ID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{Stats: stats})
}

// HandleQuiz serves GET and DELETE on a single owned quiz. GET includes the
// answer key because play and scoring happen on the client.
func (a *API) HandleQuiz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodDelete {
		writeMethodNotAllowed(w, http.MethodGet, http.MethodDelete)
		return
	}
	if !a.requireService(w) {
		return
	}

	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	quizID := pathID(r, "quiz_id")

	if r.Method == http.MethodDelete {
		if err := a.service.DeleteQuiz(r.Context(), quizID, user.ID); err != nil {
			a.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
		return
	}

	item, err := a.service.GetQuiz(r.Context(), quizID, user.ID)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quizEnvelope{Quiz: toQuizResponse(item, true)})
}

func (a *API) HandleSubmitScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.requireService(w) {
		return
	}

	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}

	var request submitScoreRequest
	if err := decodeJSON(w, r, &request); err != nil {
		a.metrics.ObserveSubmission("invalid_request")
		a.writeServiceError(w, r, err)
		return
	}

	graded, err := a.service.SubmitScore(r.Context(), pathID(r, "quiz_id"), user.ID, *request.FinalScore)
	if err != nil {
		a.metrics.ObserveSubmission(submissionOutcome(err))
		a.writeServiceError(w, r, err)
		return
	}
	a.metrics.ObserveSubmission("graded")

	a.logger.WithFields(logrus.Fields{
		"quiz_id": graded.ID,
		"user_id": user.ID,
		"score":   graded.Score,
	}).Info("quiz graded")

	writeJSON(w, http.StatusOK, quizEnvelope{Quiz: toQuizResponse(graded, false)})
}

func submissionOutcome(err error) string {
	switch {
	case errors.Is(err, quiz.ErrAlreadySubmitted):
		return "already_submitted"
	case errors.Is(err, quiz.ErrQuizNotFound):
		return "not_found"
	case errors.Is(err, quiz.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}

func (a *API) HandleIdentityWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if a.identity == nil {
		a.metrics.ObserveWebhook("", "secret_missing")
		a.writeServiceError(w, r, identity.ErrWebhookSecretMissing)
		return
	}

	body, err := readRawBody(w, r, maxWebhookBodyBytes)
	if err != nil {
		a.metrics.ObserveWebhook("", "invalid")
		a.writeServiceError(w, r, err)
		return
	}

	outcome, err := a.identity.HandleEvent(r.Context(), r.Header, body)
	if err != nil {
		a.metrics.ObserveWebhook(outcome.Kind, webhookOutcome(err))
		if errors.Is(err, identity.ErrUnauthorized) {
			a.logger.WithError(err).Warn("rejected identity webhook")
		}
		a.writeServiceError(w, r, err)
		return
	}

	status := "ignored"
	if outcome.Synced {
		status = "synced"
		a.logger.WithFields(logrus.Fields{
			"event_type":  outcome.Kind,
			"user_id":     outcome.User.ID,
			"external_id": outcome.User.ExternalID,
		}).Info("user synced")
	}
	a.metrics.ObserveWebhook(outcome.Kind, status)
	writeJSON(w, http.StatusOK, webhookResponse{Status: status})
}

func webhookOutcome(err error) string {
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, identity.ErrWebhookSecretMissing):
		return "secret_missing"
	case errors.Is(err, identity.ErrInvalidPayload):
		return "invalid"
	default:
		return "error"
	}
}

// HandleUserSync reports the local record for the caller. Users are created
// only by the identity webhook, so an unsynced caller gets 404 and should
// retry once the provider has delivered the event.
func (a *API) HandleUserSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !a.requireService(w) {
		return
	}

	user, ok := a.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(user)})
}

func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if a.health == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}

	if err := a.health.Ping(r.Context()); err != nil {
		a.logger.WithError(err).Error("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	users, err := a.health.CountUsers(r.Context())
	if err != nil {
		a.logger.WithError(err).Error("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Users: users})
}
