package httpapi

import (
	"net/http"
)

func NewRouter(deps Deps) http.Handler {
	api := NewAPI(deps)

	mux := http.NewServeMux()
	handle := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, api.observe(pattern, handler))
	}

	handle("/quiz/generate", api.HandleGenerateQuiz)
	handle("/quiz", api.HandleListQuizzes)
	handle("/quiz/stats", api.HandleStats)
	handle("/quiz/{quiz_id}", api.HandleQuiz)
	handle("/quiz/{quiz_id}/submit", api.HandleSubmitScore)
	handle("/webhooks/identity", api.HandleIdentityWebhook)
	handle("/user/sync", api.HandleUserSync)
	handle("/healthz", api.HandleHealth)

	if deps.Metrics != nil {
		mux.Handle("/metrics", deps.Metrics.Handler())
	}

	return mux
}
