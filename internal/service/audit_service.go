package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/school-service/internal/events"
)

// AuditService writes auth lifecycle events to the structured log.
type AuditService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher: dispatcher,
		logger:     logger.Named("audit"),
	}
}

// RegisterHandlers subscribes to events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventLoginSucceeded, a.handleInfo)
	a.dispatcher.Subscribe(events.EventSessionSuperseded, a.handleInfo)
	a.dispatcher.Subscribe(events.EventLoggedOut, a.handleInfo)
	a.dispatcher.Subscribe(events.EventAccountStatusChanged, a.handleInfo)
	a.dispatcher.Subscribe(events.EventLoginRejected, a.handleLoginRejected)
}

func (a *AuditService) handleInfo(_ context.Context, event events.Event) error {
	a.logger.Info(string(event.Type), a.fields(event)...)
	return nil
}

func (a *AuditService) handleLoginRejected(_ context.Context, event events.Event) error {
	a.logger.Warn(string(event.Type), a.fields(event)...)
	return nil
}

func (a *AuditService) fields(event events.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.Time("at", event.Timestamp),
	}
	if event.Actor.UserID != nil {
		fields = append(fields, zap.Int64("user_id", *event.Actor.UserID))
	}
	if event.Actor.Role != "" {
		fields = append(fields, zap.String("role", string(event.Actor.Role)))
	}
	if event.Actor.Email != "" {
		fields = append(fields, zap.String("email", event.Actor.Email))
	}
	if event.Payload != nil {
		fields = append(fields, zap.Any("payload", event.Payload))
	}
	return fields
}
