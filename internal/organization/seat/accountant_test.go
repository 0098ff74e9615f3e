package seat

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/mailseat/internal/clock"
	"github.com/smallbiznis/mailseat/internal/observability/metrics"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/internal/organization/internal/orgtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type harness struct {
	db         *gorm.DB
	fixture    *orgtest.Fixture
	accountant *Accountant
	registry   *prometheus.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn := orgtest.NewDB(t)
	reg := metrics.NewRegistry()
	m := metrics.NewMembershipMetrics(reg)
	return &harness{
		db:      conn,
		fixture: orgtest.NewFixture(t, conn, orgtest.NewNode(t)),
		accountant: New(Params{
			Log:     zaptest.NewLogger(t),
			Clock:   clock.NewFakeClock(orgtest.Epoch),
			Metrics: m,
		}),
		registry: reg,
	}
}

func (h *harness) counter(t *testing.T, name string) float64 {
	t.Helper()

	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name && len(family.GetMetric()) > 0 {
			return family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestReserveUntilExhausted(t *testing.T) {
	h := newHarness(t)
	org := h.fixture.Organization(2)
	ctx := context.Background()

	require.NoError(t, h.accountant.Reserve(ctx, h.db, org.ID))
	require.NoError(t, h.accountant.Reserve(ctx, h.db, org.ID))

	err := h.accountant.Reserve(ctx, h.db, org.ID)
	assert.ErrorIs(t, err, domain.ErrSeatsExhausted)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	reloaded := h.fixture.Reload(org.ID)
	assert.Equal(t, 2, reloaded.SeatsUsed)
	assert.Equal(t, 0, reloaded.SeatsAvailable())
}

func TestReserveUnknownOrganization(t *testing.T) {
	h := newHarness(t)

	err := h.accountant.Reserve(context.Background(), h.db, 12345)
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestReleaseClampsAtZero(t *testing.T) {
	h := newHarness(t)
	org := h.fixture.Organization(1)
	ctx := context.Background()

	require.NoError(t, h.accountant.Reserve(ctx, h.db, org.ID))
	require.NoError(t, h.accountant.Release(ctx, h.db, org.ID))
	require.NoError(t, h.accountant.Release(ctx, h.db, org.ID))

	assert.Equal(t, 0, h.fixture.Reload(org.ID).SeatsUsed)
	assert.ErrorIs(t, h.accountant.Release(ctx, h.db, 999), domain.ErrOrganizationNotFound)
}

func TestReservationRollsBackWithTransaction(t *testing.T) {
	h := newHarness(t)
	org := h.fixture.Organization(1)
	ctx := context.Background()

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := h.accountant.Reserve(ctx, tx, org.ID); err != nil {
			return err
		}
		return domain.ErrAlreadyMember
	})
	require.ErrorIs(t, err, domain.ErrAlreadyMember)
	assert.Equal(t, 0, h.fixture.Reload(org.ID).SeatsUsed)
}

func TestConcurrentReservationsNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	org := h.fixture.Organization(1)
	ctx := context.Background()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		exhausted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.db.Transaction(func(tx *gorm.DB) error {
				return h.accountant.Reserve(ctx, tx, org.ID)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.KindOf(err) == domain.KindConflict:
				exhausted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, exhausted)
	assert.Equal(t, 1, h.fixture.Reload(org.ID).SeatsUsed)
	assert.Equal(t, float64(1), h.counter(t, "mailseat_seats_reserved_total"))
	assert.Equal(t, float64(workers-1), h.counter(t, "mailseat_seats_exhausted_total"))
}

func TestResize(t *testing.T) {
	h := newHarness(t)
	org := h.fixture.Organization(3)
	ctx := context.Background()

	require.NoError(t, h.accountant.Reserve(ctx, h.db, org.ID))
	require.NoError(t, h.accountant.Reserve(ctx, h.db, org.ID))

	assert.ErrorIs(t, h.accountant.Resize(ctx, h.db, org.ID, 1), domain.ErrSeatsBelowUsage)
	assert.ErrorIs(t, h.accountant.Resize(ctx, h.db, org.ID, 0), domain.ErrInvalidSeats)
	assert.ErrorIs(t, h.accountant.Resize(ctx, h.db, 777, 4), domain.ErrOrganizationNotFound)

	require.NoError(t, h.accountant.Resize(ctx, h.db, org.ID, 2))
	reloaded := h.fixture.Reload(org.ID)
	assert.Equal(t, 2, reloaded.Seats)
	assert.Equal(t, 2, reloaded.SeatsUsed)

	require.NoError(t, h.accountant.Resize(ctx, h.db, org.ID, 10))
	assert.Equal(t, 10, h.fixture.Reload(org.ID).Seats)
}

func TestReserveChecksCapacityInTheUpdateItself(t *testing.T) {
	h := newHarness(t)
	org := h.fixture.Organization(2)
	ctx := context.Background()

	// A caller that read the row earlier still sees free seats.
	stale := h.fixture.Reload(org.ID)
	require.Less(t, stale.SeatsUsed, stale.Seats)

	// Another writer fills the organization after that read.
	require.NoError(t, h.db.Exec(`UPDATE organizations SET seats_used = seats WHERE id = ?`, org.ID).Error)

	err := h.accountant.Reserve(ctx, h.db, org.ID)
	assert.ErrorIs(t, err, domain.ErrSeatsExhausted)
	assert.Equal(t, 2, h.fixture.Reload(org.ID).SeatsUsed)
	assert.Equal(t, float64(1), h.counter(t, "mailseat_seats_exhausted_total"))
}
