package migration

import (
	"io/fs"
	"testing"

	"github.com/smallbiznis/placementpay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	up, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.up.sql")
	require.NoError(t, err)
	down, err := fs.Glob(embeddedMigrations, migrationsDir+"/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, up)
	assert.Len(t, down, len(up))
}

func TestAutoMigrateCreatesEveryTable(t *testing.T) {
	conn := dbtest.Open(t)
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{
		"placement_snapshots",
		"placement_splits",
		"placement_payout_transactions",
		"payouts",
		"payout_schedules",
		"escrow_holds",
		"payout_audit_logs",
		"webhook_events",
		"billing_subscriptions",
		"billing_invoices",
		"connected_accounts",
		"promo_codes",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
