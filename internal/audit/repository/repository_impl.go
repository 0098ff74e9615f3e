package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/mailseat/internal/audit/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

// Provide returns the gorm-backed audit log repository. Callers pass the
// handle so writes can join a transaction or run on their own.
func Provide() domain.Repository {
	return &repo{}
}

// Insert appends one entry. Membership events always belong to an
// organization, so entries without one are refused.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	if entry.OrgID == nil || *entry.OrgID == 0 {
		return domain.ErrInvalidOrganization
	}
	if entry.Metadata == nil {
		entry.Metadata = datatypes.JSONMap{}
	}
	return db.WithContext(ctx).Create(entry).Error
}

// List returns entries of one organization newest first. An action without
// a dot selects the whole category, so "invite" matches "invite.issued" and
// "invite.revoked".
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("org_id = ?", filter.OrgID)

	if action := strings.TrimSpace(filter.Action); action != "" {
		if strings.Contains(action, ".") {
			stmt = stmt.Where("action = ?", action)
		} else {
			stmt = stmt.Where("action LIKE ?", action+".%")
		}
	}
	for _, eq := range []struct{ column, value string }{
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
		{"actor_type", filter.ActorType},
		{"actor_id", filter.ActorID},
	} {
		if value := strings.TrimSpace(eq.value); value != "" {
			stmt = stmt.Where(eq.column+" = ?", value)
		}
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("((created_at < ?) OR (created_at = ? AND id < ?))",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		// One extra row tells the caller whether another page exists.
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
