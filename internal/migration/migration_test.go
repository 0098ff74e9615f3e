package migration

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/mailseat/internal/clock"
	"github.com/smallbiznis/mailseat/internal/config"
	orgdomain "github.com/smallbiznis/mailseat/internal/organization/domain"
	"github.com/smallbiznis/mailseat/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap/zaptest"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected file in migrations: %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestMigrationDeclaresSeatConstraints(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_membership.up.sql")
	require.NoError(t, err)

	sql := string(body)
	assert.Contains(t, sql, "CHECK (seats_used >= 0 AND seats_used <= seats)")
	assert.Contains(t, sql, "ux_org_user")
	assert.Contains(t, sql, "ux_invites_token_hash")
}

func TestAutoMigrateCreatesTables(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, AutoMigrate(conn))
	for _, table := range []string{"organizations", "users", "organization_members", "organization_invites", "audit_logs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestApplySchemaUsesModelsOutsidePostgres(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	require.NoError(t, applySchema(conn, zaptest.NewLogger(t)))
	assert.True(t, conn.Migrator().HasTable("organization_members"))
}

func TestModuleBootstrapsSuperAdmin(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	app := fxtest.New(t,
		fx.NopLogger,
		fx.Supply(conn, node, zaptest.NewLogger(t)),
		fx.Supply(config.Config{BootstrapSuperAdminEmail: "Root@Example.com"}),
		fx.Provide(func() clock.Clock { return clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) }),
		Module,
	)
	app.RequireStart()
	defer app.RequireStop()

	var admin orgdomain.User
	require.NoError(t, conn.Where("email = ?", "root@example.com").First(&admin).Error)
	assert.True(t, admin.IsSuperAdmin)
}
