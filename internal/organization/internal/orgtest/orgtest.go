// Package orgtest provides database fixtures for organization tests.
package orgtest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/migration"
	"github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Epoch is the fixed instant fixtures are stamped with.
var Epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// NewDB opens a migrated in-memory database.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	return conn
}

// NewNode returns a snowflake node for tests.
func NewNode(t testing.TB) *snowflake.Node {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

type Fixture struct {
	t    testing.TB
	db   *gorm.DB
	node *snowflake.Node
}

func NewFixture(t testing.TB, conn *gorm.DB, node *snowflake.Node) *Fixture {
	return &Fixture{t: t, db: conn, node: node}
}

func (f *Fixture) Organization(seats int) domain.Organization {
	f.t.Helper()

	org := domain.Organization{
		ID:        f.node.Generate(),
		Name:      "Acme Mail",
		Plan:      "team",
		Seats:     seats,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	org.Slug = "acme-" + org.ID.Base36()
	require.NoError(f.t, f.db.Create(&org).Error)
	return org
}

func (f *Fixture) User(email string) domain.User {
	f.t.Helper()

	user := domain.User{
		ID:        f.node.Generate(),
		Email:     email,
		Name:      email,
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}
	require.NoError(f.t, f.db.Create(&user).Error)
	return user
}

func (f *Fixture) SuperAdmin(email string) domain.User {
	f.t.Helper()

	user := f.User(email)
	require.NoError(f.t, f.db.Model(&domain.User{}).Where("id = ?", user.ID).Update("is_super_admin", true).Error)
	user.IsSuperAdmin = true
	return user
}

// Member inserts a membership. MEMBER rows also bump seats_used so the
// fixture starts from a consistent ledger.
func (f *Fixture) Member(orgID, userID snowflake.ID, role domain.Role) domain.Member {
	f.t.Helper()

	member := domain.Member{
		ID:       f.node.Generate(),
		OrgID:    orgID,
		UserID:   userID,
		Role:     role,
		JoinedAt: Epoch,
	}
	require.NoError(f.t, f.db.Create(&member).Error)
	if role.ConsumesSeat() {
		require.NoError(f.t, f.db.Exec(`UPDATE organizations SET seats_used = seats_used + 1 WHERE id = ?`, orgID).Error)
	}
	return member
}

// Reload reads the organization row.
func (f *Fixture) Reload(orgID snowflake.ID) domain.Organization {
	f.t.Helper()

	var org domain.Organization
	require.NoError(f.t, f.db.First(&org, "id = ?", orgID).Error)
	return org
}

// CountRole counts members holding role.
func (f *Fixture) CountRole(orgID snowflake.ID, role domain.Role) int {
	f.t.Helper()

	var count int64
	require.NoError(f.t, f.db.Model(&domain.Member{}).Where("org_id = ? AND role = ?", orgID, role).Count(&count).Error)
	return int(count)
}

// AssertLedger checks that seats_used matches the number of MEMBER rows and
// stays within capacity.
func (f *Fixture) AssertLedger(orgID snowflake.ID) {
	f.t.Helper()

	org := f.Reload(orgID)
	require.Equal(f.t, f.CountRole(orgID, domain.RoleMember), org.SeatsUsed, "seats_used out of sync")
	require.LessOrEqual(f.t, org.SeatsUsed, org.Seats, "seats overdrawn")
	require.GreaterOrEqual(f.t, org.SeatsUsed, 0)
}
