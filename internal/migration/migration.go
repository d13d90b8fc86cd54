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
	accountingdomain "github.com/smallbiznis/fieldbooks/internal/accounting/domain"
	attachmentdomain "github.com/smallbiznis/fieldbooks/internal/attachment/domain"
	auditdomain "github.com/smallbiznis/fieldbooks/internal/audit/domain"
	customerdomain "github.com/smallbiznis/fieldbooks/internal/customer/domain"
	estimatedomain "github.com/smallbiznis/fieldbooks/internal/estimate/domain"
	invoicedomain "github.com/smallbiznis/fieldbooks/internal/invoice/domain"
	joborderdomain "github.com/smallbiznis/fieldbooks/internal/joborder/domain"
	personneldomain "github.com/smallbiznis/fieldbooks/internal/personnel/domain"
	purchaseorderdomain "github.com/smallbiznis/fieldbooks/internal/purchaseorder/domain"
	vendordomain "github.com/smallbiznis/fieldbooks/internal/supplier/domain"
	timeentrydomain "github.com/smallbiznis/fieldbooks/internal/timeentry/domain"
	vendorbilldomain "github.com/smallbiznis/fieldbooks/internal/vendorbill/domain"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Up applies every pending migration. A database that is already current is not an error.
func Up(db *sql.DB) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// Closing the migrator would close the shared *sql.DB.
	return nil
}

// Down rolls back steps migrations, or all of them when steps <= 0.
func Down(db *sql.DB, steps int) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}
	if steps > 0 {
		err = migrator.Steps(-steps)
	} else {
		err = migrator.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version. Zero means nothing was applied.
func Version(db *sql.DB) (uint, bool, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}

// Models lists every table the service owns, in dependency order. Non-postgres
// databases are created from these with gorm's AutoMigrate.
func Models() []any {
	return []any{
		&customerdomain.Customer{},
		&vendordomain.Vendor{},
		&estimatedomain.Estimate{},
		&estimatedomain.Line{},
		&joborderdomain.JobOrder{},
		&joborderdomain.ChangeOrder{},
		&invoicedomain.Invoice{},
		&invoicedomain.Payment{},
		&purchaseorderdomain.PurchaseOrder{},
		&purchaseorderdomain.Line{},
		&vendorbilldomain.VendorBill{},
		&vendorbilldomain.Line{},
		&vendorbilldomain.Payment{},
		&personneldomain.Person{},
		&personneldomain.Certification{},
		&timeentrydomain.TimeEntry{},
		&attachmentdomain.Attachment{},
		&accountingdomain.SyncMapping{},
		&auditdomain.AuditLog{},
	}
}
