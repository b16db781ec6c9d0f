package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"

	"quizforge/internal/quiz"
)

const (
	ChannelUserSynced = "quiz-users-synced"
	ChannelQuizGraded = "quiz-graded"
)

// Publisher fans domain events out to other processes. It satisfies
// quiz.Notifier and identity.Publisher.
type Publisher interface {
	UserSynced(ctx context.Context, user quiz.User) error
	QuizGraded(ctx context.Context, item quiz.Quiz) error
	Close() error
}

type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to redisURL and fails fast when the server is
// unreachable.
func NewRedisPublisher(ctx context.Context, redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaintNotificationsConfig = &maintnotifications.Config{
		Mode: maintnotifications.ModeDisabled,
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{client: client}, nil
}

type UserSyncedEvent struct {
	UserID     string    `json:"userId"`
	ExternalID string    `json:"externalId"`
	Email      string    `json:"email"`
	SyncedAt   time.Time `json:"syncedAt"`
}

type QuizGradedEvent struct {
	QuizID   string    `json:"quizId"`
	OwnerID  string    `json:"ownerId"`
	Topic    string    `json:"topic"`
	Score    int       `json:"score"`
	Total    int       `json:"total"`
	GradedAt time.Time `json:"gradedAt"`
}

func newUserSyncedEvent(user quiz.User) UserSyncedEvent {
	return UserSyncedEvent{
		UserID:     user.ID,
		ExternalID: user.ExternalID,
		Email:      user.Email,
		SyncedAt:   user.UpdatedAt,
	}
}

func newQuizGradedEvent(item quiz.Quiz) QuizGradedEvent {
	event := QuizGradedEvent{
		QuizID:  item.ID,
		OwnerID: item.OwnerID,
		Topic:   item.Topic,
		Score:   item.Score,
		Total:   item.Total,
	}
	if item.GradedAt != nil {
		event.GradedAt = *item.GradedAt
	}
	return event
}

func (p *RedisPublisher) UserSynced(ctx context.Context, user quiz.User) error {
	return p.publish(ctx, ChannelUserSynced, newUserSyncedEvent(user))
}

func (p *RedisPublisher) QuizGraded(ctx context.Context, item quiz.Quiz) error {
	return p.publish(ctx, ChannelQuizGraded, newQuizGradedEvent(item))
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// NopPublisher is used when REDIS_URL is empty.
type NopPublisher struct{}

func (NopPublisher) UserSynced(context.Context, quiz.User) error { return nil }
func (NopPublisher) QuizGraded(context.Context, quiz.Quiz) error { return nil }
func (NopPublisher) Close() error                                { return nil }
