package stores

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/tenantauthz"
)

// RecordBackend is a record store that can also be seeded and listed.
type RecordBackend interface {
	tenantauthz.RecordStore
	tenantauthz.RecordWriter
	tenantauthz.RecordLister
}

// Backend bundles the stores selected by a Config.
type Backend struct {
	Records RecordBackend
	// Audit is nil when auditing is disabled.
	Audit   tenantauthz.AuditSink
	closers []func() error
}

// Close releases database and redis connections.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the record store and audit sink named by cfg. SQL schemas are
// migrated on open.
func Open(ctx context.Context, cfg *tenantauthz.Config) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b := &Backend{}
	var db *squealx.DB
	switch cfg.Store.Driver {
	case "", tenantauthz.DriverMemory:
		b.Records = NewMemoryRecordStore()
	case tenantauthz.DriverSQLite, tenantauthz.DriverPgx:
		var closeDB func() error
		var err error
		db, closeDB, err = openSQL(ctx, cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, closeDB)
		b.Records = NewSQLRecordStore(db)
	case tenantauthz.DriverRedis:
		client, err := NewRedisClient(cfg.Store.Redis)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Store.Redis.Addr, err)
		}
		b.closers = append(b.closers, client.Close)
		b.Records = NewRedisRecordStore(client, cfg.Store.Redis.KeyPrefix)
	}

	switch cfg.Audit.Driver {
	case tenantauthz.DriverMemory:
		b.Audit = NewMemoryAuditStore()
	case tenantauthz.DriverSQL:
		sink, err := NewSQLAuditStore(db)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Audit = sink
	}
	return b, nil
}

func openSQL(ctx context.Context, driver, dsn string) (*squealx.DB, func() error, error) {
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}
	dialect := "sqlite"
	if driver == tenantauthz.DriverPgx {
		dialect = "postgres"
	} else if dsn == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
	}
	db := squealx.NewDb(sqlDB, dialect, driver)
	if err := Migrate(ctx, db); err != nil {
		sqlDB.Close()
		return nil, nil, err
	}
	return db, sqlDB.Close, nil
}

// Seed upserts records and returns how many were written.
func (b *Backend) Seed(ctx context.Context, records []*tenantauthz.UserRecord) (int, error) {
	n := 0
	for _, r := range records {
		if err := b.Records.PutUserRecord(ctx, r); err != nil {
			return n, fmt.Errorf("seed %s/%s: %w", r.OrganizationID, r.SubjectID, err)
		}
		n++
	}
	return n, nil
}
