package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	attributiondomain "github.com/smallbiznis/placementpay/internal/attribution/domain"
	auditdomain "github.com/smallbiznis/placementpay/internal/audit/domain"
	billingdomain "github.com/smallbiznis/placementpay/internal/billing/domain"
	escrowdomain "github.com/smallbiznis/placementpay/internal/escrow/domain"
	payoutdomain "github.com/smallbiznis/placementpay/internal/payout/domain"
	promodomain "github.com/smallbiznis/placementpay/internal/promo/domain"
	scheduledomain "github.com/smallbiznis/placementpay/internal/schedule/domain"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
	webhookdomain "github.com/smallbiznis/placementpay/internal/webhook/domain"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Models lists every persisted table, in dependency order.
func Models() []any {
	return []any{
		&attributiondomain.Snapshot{},
		&splitdomain.Split{},
		&splitdomain.Transaction{},
		&payoutdomain.Payout{},
		&scheduledomain.Schedule{},
		&escrowdomain.Hold{},
		&auditdomain.PayoutAuditLog{},
		&webhookdomain.EventRecord{},
		&billingdomain.Subscription{},
		&billingdomain.Invoice{},
		&billingdomain.ConnectedAccount{},
		&promodomain.PromoCode{},
	}
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the gorm models. Used for sqlite and
// mysql where the embedded SQL does not apply.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(Models()...)
}
