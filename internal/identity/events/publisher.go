package events

import (
	"context"

	"github.com/drims/drims-backend/internal/identity/repository"
	"github.com/drims/drims-backend/pkg/logger"
	"github.com/drims/drims-backend/pkg/messaging"
)

// UserEventPublisher publishes user-related events
type UserEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewUserEventPublisher creates a new user event publisher
func NewUserEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*UserEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeUserEvents, "drims-server", log)
	if err != nil {
		return nil, err
	}

	return &UserEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishUserCreated publishes a user created event
func (p *UserEventPublisher) PublishUserCreated(ctx context.Context, user *repository.User) {
	if p == nil {
		return
	}

	data := messaging.UserCreatedEvent{
		UserID:      user.ID,
		UserName:    user.UserName,
		DisplayName: user.DisplayName,
		RoleCode:    user.RoleCode,
	}

	if err := p.publisher.Publish(ctx, messaging.EventUserCreated, data); err != nil {
		p.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to publish user created event")
	}
}
