package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/tourbook/tour-booking-service/internal/events"
	"github.com/tourbook/tour-booking-service/internal/observability"
)

// StartAuditWorker subscribes the audit handler to every session event. Events
// are logged with id and role only and counted in metrics.
func StartAuditWorker(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) {
	if dispatcher == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := auditHandler(logger, metrics)
	for _, eventType := range events.SessionEventTypes {
		dispatcher.Subscribe(eventType, handler)
	}
}

func auditHandler(logger *zap.Logger, metrics *observability.Metrics) events.EventHandler {
	return func(_ context.Context, event events.Event) error {
		metrics.AuthEvent(string(event.Type), string(event.Role))

		fields := []zap.Field{
			zap.String("event_id", event.ID),
			zap.String("event", string(event.Type)),
			zap.String("role", string(event.Role)),
		}
		if event.PrincipalID != "" {
			fields = append(fields, zap.String("principal_id", event.PrincipalID))
		}
		switch p := event.Payload.(type) {
		case events.LoginFailedPayload:
			fields = append(fields, zap.String("reason", p.Reason))
		case events.RefreshRejectedPayload:
			fields = append(fields, zap.String("reason", p.Reason))
		}
		logger.Info("session event", fields...)
		return nil
	}
}
