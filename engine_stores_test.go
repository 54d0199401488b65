package tenantauthz_test

import (
	"context"
	"testing"

	"github.com/oarkflow/tenantauthz"
	"github.com/oarkflow/tenantauthz/logger"
	"github.com/oarkflow/tenantauthz/stores"
)

func TestEngineAgainstSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	cfg := &tenantauthz.Config{
		Store: tenantauthz.StoreConfig{Driver: tenantauthz.DriverSQLite, DSN: ":memory:"},
		Audit: tenantauthz.AuditConfig{Driver: tenantauthz.DriverSQL},
		Records: []*tenantauthz.UserRecord{
			tenantauthz.NewRecordBuilder("orgA", "u1").Role("hr-manager").Version(2).Grant("warnings", "create", "read").Build(),
			tenantauthz.NewRecordBuilder(tenantauthz.DefaultSystemTenant, "ops").RoleObject("operator").Build(),
		},
	}
	backend, err := stores.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	defer backend.Close()
	if _, err := backend.Seed(ctx, cfg.Records); err != nil {
		t.Fatalf("seed: %v", err)
	}

	eng, err := tenantauthz.NewEngine(backend.Records,
		tenantauthz.WithLogger(logger.NewNullLogger()),
		tenantauthz.WithAuditSink(backend.Audit, 16),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	u1 := tenantauthz.NewTokenBuilder("u1").Organization("orgA").Version(2).Build()
	ac, err := eng.ValidatePermission(ctx, u1, "orgA", "warnings:create")
	if err != nil {
		t.Fatalf("scenario A: expected allow, got %v", err)
	}
	if ac.Role != "hr-manager" {
		t.Fatalf("scenario A: expected role hr-manager, got %q", ac.Role)
	}
	if _, err := eng.ValidatePermission(ctx, u1, "", "warnings:delete"); tenantauthz.KindOf(err) != tenantauthz.KindPermissionDenied {
		t.Fatalf("scenario B: expected permission denied, got %v", err)
	}
	stale := tenantauthz.NewTokenBuilder("u1").Organization("orgA").Version(1).Build()
	if _, err := eng.ValidatePermission(ctx, stale, "", "warnings:create"); tenantauthz.KindOf(err) != tenantauthz.KindFailedPrecondition {
		t.Fatalf("scenario C: expected failed precondition, got %v", err)
	}
	ops := tenantauthz.NewTokenBuilder("ops").Organization(tenantauthz.DefaultSystemTenant).Version(1).Build()
	ac, err = eng.ValidateOrganizationMember(ctx, ops, "orgB")
	if err != nil || ac.OrganizationID != "orgB" || ac.Role != "operator" {
		t.Fatalf("scenario D: expected system bypass scoped to orgB, got %+v %v", ac, err)
	}
	ghost := tenantauthz.NewTokenBuilder("ghost").Organization("orgA").Version(1).Build()
	if _, err := eng.ValidatePermission(ctx, ghost, "", "warnings:read"); tenantauthz.KindOf(err) != tenantauthz.KindNotFound {
		t.Fatalf("scenario E: expected not found, got %v", err)
	}

	if err := eng.Close(ctx); err != nil {
		t.Fatalf("close engine: %v", err)
	}
	querier, ok := backend.Audit.(tenantauthz.AuditQuerier)
	if !ok {
		t.Fatalf("sql audit sink should be queryable")
	}
	events, err := querier.GetAuditLog(ctx, tenantauthz.AuditFilter{OrganizationID: "orgA"})
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 orgA events, got %d", len(events))
	}
	denies, err := querier.GetAuditLog(ctx, tenantauthz.AuditFilter{Outcome: tenantauthz.OutcomeDeny})
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(denies) != 3 {
		t.Fatalf("expected 3 denials, got %d", len(denies))
	}
}

func TestEngineAuditToMemoryStore(t *testing.T) {
	ctx := context.Background()
	records := stores.NewMemoryRecordStore(
		tenantauthz.NewRecordBuilder("orgA", "u1").Role("admin").Build(),
	)
	audit := stores.NewMemoryAuditStore()
	eng, err := tenantauthz.NewEngine(records,
		tenantauthz.WithLogger(logger.NewNullLogger()),
		tenantauthz.WithAuditSink(audit, 0),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	tok := tenantauthz.NewTokenBuilder("u1").Organization("orgA").Version(1).Build()
	_, _ = eng.ValidateRole(ctx, tok, "", []string{"admin"})
	_, _ = eng.ValidateRole(ctx, tok, "", []string{"owner"})
	if err := eng.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if audit.Len() != 2 {
		t.Fatalf("expected 2 audit events, got %d", audit.Len())
	}
	denied, _ := audit.GetAuditLog(ctx, tenantauthz.AuditFilter{ErrorKind: tenantauthz.KindPermissionDenied})
	if len(denied) != 1 || denied[0].Target != "owner" || denied[0].EntryPoint != tenantauthz.EntryRole {
		t.Fatalf("unexpected denied events %+v", denied)
	}
}
