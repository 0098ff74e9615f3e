// Package seat owns the seats_used counter of an organization. Every change
// goes through a single guarded UPDATE so concurrent reservations can never
// overdraw the capacity.
package seat

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/clock"
	"github.com/smallbiznis/mailseat/internal/observability/metrics"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *metrics.MembershipMetrics `optional:"true"`
}

type Accountant struct {
	log     *zap.Logger
	clock   clock.Clock
	metrics *metrics.MembershipMetrics
}

func New(p Params) *Accountant {
	return &Accountant{
		log:     p.Log.Named("organization.seat"),
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

// Reserve takes one seat. It returns domain.ErrSeatsExhausted when the
// organization is at capacity and domain.ErrOrganizationNotFound when the
// organization does not exist. tx must be the caller's transaction.
func (a *Accountant) Reserve(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET seats_used = seats_used + 1, updated_at = ?
		 WHERE id = ? AND seats_used < seats`,
		a.clock.Now(),
		orgID,
	)
	if res.Error != nil {
		if db.IsCheckViolationErr(res.Error) {
			a.metrics.SeatExhausted()
			return domain.ErrSeatsExhausted
		}
		return fmt.Errorf("reserve seat: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		exists, err := organizationExists(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrganizationNotFound
		}
		a.metrics.SeatExhausted()
		a.log.Info("seat reservation denied",
			zap.String("org_id", orgID.String()),
		)
		return domain.ErrSeatsExhausted
	}

	a.metrics.SeatReserved()
	return nil
}

// Release returns one seat. The counter is clamped at zero.
func (a *Accountant) Release(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) error {
	res := tx.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET seats_used = CASE WHEN seats_used > 0 THEN seats_used - 1 ELSE 0 END, updated_at = ?
		 WHERE id = ?`,
		a.clock.Now(),
		orgID,
	)
	if res.Error != nil {
		return fmt.Errorf("release seat: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrOrganizationNotFound
	}

	a.metrics.SeatReleased()
	return nil
}

// Resize sets the seat capacity. It fails with domain.ErrSeatsBelowUsage when
// the new capacity is smaller than the seats already in use.
func (a *Accountant) Resize(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, seats int) error {
	if seats < 1 {
		return domain.ErrInvalidSeats
	}

	res := tx.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET seats = ?, updated_at = ?
		 WHERE id = ? AND seats_used <= ?`,
		seats,
		a.clock.Now(),
		orgID,
		seats,
	)
	if res.Error != nil {
		if db.IsCheckViolationErr(res.Error) {
			return domain.ErrSeatsBelowUsage
		}
		return fmt.Errorf("resize seats: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		exists, err := organizationExists(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrganizationNotFound
		}
		return domain.ErrSeatsBelowUsage
	}
	return nil
}

func organizationExists(ctx context.Context, tx *gorm.DB, orgID snowflake.ID) (bool, error) {
	var count int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM organizations WHERE id = ?`,
		orgID,
	).Scan(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
