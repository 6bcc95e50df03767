package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	EventTokenIssued    = "token_issued"
	EventTokenRefreshed = "token_refreshed"
	EventTokenRejected  = "token_rejected"
	EventRateLimited    = "rate_limited"
)

// AuditEvent is the record published for every authorization decision worth
// tracing. Consumers live downstream of the audit topic.
type AuditEvent struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	TokenID   string    `json:"token_id,omitempty"`
	Window    string    `json:"window,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditPublisher is satisfied by the Kafka producer. A nil publisher
// disables auditing without touching the admission path.
type AuditPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}

// publishAudit never fails the calling operation; a broker outage costs
// events, not availability.
func (s *AuthService) publishAudit(ctx context.Context, event AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(ctx, event.UserID, event); err != nil {
		s.logger.Warn("failed to publish audit event",
			zap.String("event_type", event.Type),
			zap.Error(err))
	}
}
