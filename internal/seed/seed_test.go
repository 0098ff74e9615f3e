package seed

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	organizationdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSeedDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&organizationdomain.User{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return conn, node
}

func TestEnsureSuperAdminIsIdempotent(t *testing.T) {
	conn, node := newSeedDB(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := EnsureSuperAdmin(context.Background(), conn, node, " Root@Example.com ", now)
	require.NoError(t, err)
	second, err := EnsureSuperAdmin(context.Background(), conn, node, "root@example.com", now)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var users []organizationdomain.User
	require.NoError(t, conn.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "root@example.com", users[0].Email)
	assert.True(t, users[0].IsSuperAdmin)
}

func TestEnsureSuperAdminPromotesExistingUser(t *testing.T) {
	conn, node := newSeedDB(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	existing := organizationdomain.User{ID: node.Generate(), Email: "ops@example.com", Name: "Ops", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, conn.Create(&existing).Error)

	id, err := EnsureSuperAdmin(context.Background(), conn, node, "ops@example.com", now)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, id)

	var reloaded organizationdomain.User
	require.NoError(t, conn.First(&reloaded, "id = ?", existing.ID).Error)
	assert.True(t, reloaded.IsSuperAdmin)
	assert.Equal(t, "Ops", reloaded.Name)
}

func TestEnsureSuperAdminRejectsBadEmail(t *testing.T) {
	conn, node := newSeedDB(t)

	_, err := EnsureSuperAdmin(context.Background(), conn, node, "not-an-email", time.Now())
	assert.ErrorIs(t, err, organizationdomain.ErrInvalidEmail)
}
