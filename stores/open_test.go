package stores

import (
	"context"
	"testing"

	"github.com/oarkflow/tenantauthz"
)

func TestOpenMemoryBackend(t *testing.T) {
	cfg := &tenantauthz.Config{Audit: tenantauthz.AuditConfig{Driver: tenantauthz.DriverMemory}}
	b, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if _, ok := b.Records.(*MemoryRecordStore); !ok {
		t.Fatalf("expected memory record store, got %T", b.Records)
	}
	if _, ok := b.Audit.(*MemoryAuditStore); !ok {
		t.Fatalf("expected memory audit store, got %T", b.Audit)
	}
}

func TestOpenSQLiteBackendSeeds(t *testing.T) {
	cfg := &tenantauthz.Config{
		Store: tenantauthz.StoreConfig{Driver: tenantauthz.DriverSQLite, DSN: ":memory:"},
		Audit: tenantauthz.AuditConfig{Driver: tenantauthz.DriverSQL},
		Records: []*tenantauthz.UserRecord{
			tenantauthz.NewRecordBuilder("org-1", "alice").Role("admin").Grant("invoices", "read").Build(),
			tenantauthz.NewRecordBuilder("org-1", "bob").Role("viewer").Build(),
		},
	}
	ctx := context.Background()
	b, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	n, err := b.Seed(ctx, cfg.Records)
	if err != nil || n != 2 {
		t.Fatalf("seed: n=%d err=%v", n, err)
	}
	list, err := b.Records.ListUserRecords(ctx, "org-1")
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v (%d records)", err, len(list))
	}
	if _, ok := b.Audit.(*SQLAuditStore); !ok {
		t.Fatalf("expected sql audit store, got %T", b.Audit)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := &tenantauthz.Config{Store: tenantauthz.StoreConfig{Driver: "mongo"}}
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
