package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/mailseat/internal/audit/domain"
	"github.com/smallbiznis/mailseat/internal/notification"
	"go.uber.org/zap"
)

type auditEntry struct {
	orgID      snowflake.ID
	actorID    snowflake.ID
	action     string
	targetType string
	targetID   string
	metadata   map[string]any
}

// sideEffects collects audit entries and notifications while a transaction
// runs. They are emitted only after the transaction commits.
type sideEffects struct {
	audits   []auditEntry
	messages []notification.Message
}

func (e *sideEffects) audit(orgID, actorID snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	e.audits = append(e.audits, auditEntry{
		orgID:      orgID,
		actorID:    actorID,
		action:     action,
		targetType: targetType,
		targetID:   targetID,
		metadata:   metadata,
	})
}

func (e *sideEffects) notify(msg notification.Message) {
	e.messages = append(e.messages, msg)
}

// flush writes audit entries and dispatches notifications. Failures are
// logged and counted but never returned. The change is already committed, so
// the request's cancellation no longer applies; its values still do.
func (s *Service) flush(ctx context.Context, effects *sideEffects) {
	ctx = context.WithoutCancel(ctx)
	for _, entry := range effects.audits {
		orgID := entry.orgID
		actorID := entry.actorID.String()
		targetID := entry.targetID
		if err := s.auditSvc.AuditLog(ctx, &orgID, string(auditdomain.ActorTypeUser), &actorID, entry.action, entry.targetType, &targetID, entry.metadata); err != nil {
			s.metrics.SideEffectFailed("audit")
			s.log.Warn("audit write failed after commit",
				zap.String("action", entry.action),
				zap.String("org_id", orgID.String()),
				zap.Error(err),
			)
		}
	}

	for _, msg := range effects.messages {
		if err := s.notifier.Dispatch(ctx, msg); err != nil {
			s.metrics.SideEffectFailed("notification")
			s.log.Warn("notification failed after commit",
				zap.String("kind", string(msg.Kind)),
				zap.Error(err),
			)
		}
	}
}
