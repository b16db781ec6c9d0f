package httpapi

import (
	"context"

	"github.com/sirupsen/logrus"

	"quizforge/internal/auth"
	"quizforge/internal/identity"
	"quizforge/internal/logging"
	"quizforge/internal/metrics"
	"quizforge/internal/quiz"
)

// HealthChecker is the slice of the store /healthz needs.
type HealthChecker interface {
	Ping(ctx context.Context) error
	CountUsers(ctx context.Context) (int, error)
}

type Deps struct {
	Service  *quiz.Service
	Gate     *auth.Gate
	Identity *identity.Syncer
	Health   HealthChecker
	Metrics  *metrics.Metrics
	Logger   *logrus.Entry
}

type API struct {
	service  *quiz.Service
	gate     *auth.Gate
	identity *identity.Syncer
	health   HealthChecker
	metrics  *metrics.Metrics
	logger   *logrus.Entry
}

func NewAPI(deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &API{
		service:  deps.Service,
		gate:     deps.Gate,
		identity: deps.Identity,
		health:   deps.Health,
		metrics:  deps.Metrics,
		logger:   logger,
	}
}
