package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	svix "github.com/svix/svix-webhooks/go"

	"quizforge/internal/quiz"
)

var (
	ErrUnauthorized         = errors.New("invalid webhook signature")
	ErrWebhookSecretMissing = errors.New("webhook signing secret is not configured")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
)

var requiredHeaders = []string{"svix-id", "svix-timestamp", "svix-signature"}

// WebhookVerifier checks a delivery signature over the raw request body.
type WebhookVerifier interface {
	Verify(payload []byte, header http.Header) error
}

// NewSvixVerifier accepts secrets in the provider's "whsec_..." format.
func NewSvixVerifier(secret string) (WebhookVerifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook secret: %w", err)
	}
	return wh, nil
}

type Publisher interface {
	UserSynced(ctx context.Context, user quiz.User) error
}

type Outcome struct {
	Kind   string
	Synced bool
	User   quiz.User
}

type Syncer struct {
	verifier  WebhookVerifier
	users     quiz.UserRepository
	publisher Publisher
	logger    *logrus.Entry
}

// NewSyncer builds a syncer. A nil verifier is allowed: every delivery then
// fails with ErrWebhookSecretMissing.
func NewSyncer(verifier WebhookVerifier, users quiz.UserRepository, publisher Publisher, logger *logrus.Entry) *Syncer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Syncer{
		verifier:  verifier,
		users:     users,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleEvent verifies and applies one provider delivery.
//
// Invariants:
//   - Nothing is written unless the signature over the exact body verifies.
//   - user.created and user.updated go through the same UpsertUser, so
//     redelivery and out-of-order created/updated pairs converge.
//   - Other event kinds are acknowledged without side effects.
func (s *Syncer) HandleEvent(ctx context.Context, header http.Header, body []byte) (Outcome, error) {
	for _, name := range requiredHeaders {
		if strings.TrimSpace(header.Get(name)) == "" {
			return Outcome{}, fmt.Errorf("%w: missing %s header", ErrUnauthorized, name)
		}
	}
	if s.verifier == nil {
		return Outcome{}, ErrWebhookSecretMissing
	}
	if err := s.verifier.Verify(body, header); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	var event envelope
	if err := json.Unmarshal(body, &event); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	outcome := Outcome{Kind: event.Type}
	switch event.Type {
	case EventUserCreated, EventUserUpdated:
	default:
		s.logger.WithField("event_type", event.Type).Debug("ignoring identity event")
		return outcome, nil
	}

	var data userData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	profile := data.profile()
	if profile.ExternalID == "" {
		return Outcome{}, fmt.Errorf("%w: user id is missing", ErrInvalidPayload)
	}

	user, err := s.users.UpsertUser(ctx, profile)
	if err != nil {
		return Outcome{}, fmt.Errorf("upsert user %s: %w", profile.ExternalID, err)
	}
	outcome.Synced = true
	outcome.User = user

	if s.publisher != nil {
		if err := s.publisher.UserSynced(ctx, user); err != nil {
			s.logger.WithError(err).WithField("user_id", user.ID).Warn("failed to publish user synced event")
		}
	}
	return outcome, nil
}
