package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"quizforge/internal/auth"
	"quizforge/internal/config"
	"quizforge/internal/gemini"
	"quizforge/internal/httpapi"
	"quizforge/internal/identity"
	"quizforge/internal/logging"
	"quizforge/internal/metrics"
	"quizforge/internal/pubsub"
	"quizforge/internal/quiz"
	"quizforge/internal/quiz/sqlstore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	flag.Parse()

	logger := logging.New("quiz-service", cfg.LogLevel, cfg.LogFile)
	if err := run(cfg, *addr, logger); err != nil {
		logger.WithError(err).Fatal("quiz-service stopped")
	}
}

func run(cfg config.Config, addr string, logger *logrus.Entry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.NewStore(sqlstore.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DBDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	var publisher pubsub.Publisher = pubsub.NopPublisher{}
	if cfg.RedisURL != "" {
		redisPublisher, err := pubsub.NewRedisPublisher(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		publisher = redisPublisher
	}
	defer publisher.Close()

	var text quiz.TextGenerator
	if cfg.GeminiAPIKey != "" {
		text = gemini.NewClient(
			&http.Client{Timeout: cfg.GenerationTimeout + 5*time.Second},
			cfg.GeminiAPIKey,
			gemini.WithBaseURL(cfg.GeminiBaseURL),
			gemini.WithModel(cfg.GeminiModel),
		)
	} else {
		logger.Warn("GEMINI_API_KEY is not set; quiz generation will fail")
	}
	generator := quiz.NewGenerator(text, cfg.GenerationTimeout)
	service := quiz.NewService(store, store, generator, publisher, logger.WithField("component", "quiz"))

	var webhookVerifier identity.WebhookVerifier
	if cfg.WebhookSigningSecret != "" {
		webhookVerifier, err = identity.NewSvixVerifier(cfg.WebhookSigningSecret)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("WEBHOOK_SIGNING_SECRET is not set; identity webhooks will be rejected")
	}
	syncer := identity.NewSyncer(webhookVerifier, store, publisher, logger.WithField("component", "identity"))

	var credentials auth.CredentialVerifier
	if cfg.AuthJWKSURL != "" {
		credentials = auth.NewOIDCVerifier(ctx, cfg.AuthIssuer, cfg.AuthJWKSURL, cfg.AuthAudience)
	} else {
		logger.Warn("AUTH_JWKS_URL is not set; accepting HS256 development tokens")
		credentials = auth.NewHMACVerifier(cfg.AuthDevSecret, cfg.AuthIssuer)
	}

	server := &http.Server{
		Addr: addr,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Service:  service,
			Gate:     auth.NewGate(credentials, service),
			Identity: syncer,
			Health:   store,
			Metrics:  metrics.New(),
			Logger:   logger,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": addr, "db_driver": cfg.DBDriver}).Info("quiz-service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
