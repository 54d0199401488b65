package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/tenantauthz"
)

// SQLRecordStore persists user records in the user_records table (squealx).
type SQLRecordStore struct {
	db *squealx.DB
}

func NewSQLRecordStore(db *squealx.DB) *SQLRecordStore {
	return &SQLRecordStore{db: db}
}

const selectRecordColumns = `SELECT organization_id, subject_id, is_active, role_json, claims_version, permissions_json, updated_at FROM user_records`

func (s *SQLRecordStore) GetUserRecord(ctx context.Context, organizationID, subjectID string) (*tenantauthz.UserRecord, error) {
	if err := requireKey(organizationID, subjectID); err != nil {
		return nil, err
	}
	q := selectRecordColumns + ` WHERE organization_id = :organization_id AND subject_id = :subject_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"organization_id": organizationID, "subject_id": subjectID})
	if err != nil {
		return nil, fmt.Errorf("query user record: %w", err)
	}
	defer r.Close()
	return firstRecord(r, organizationID, subjectID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// recordRows is the subset of *squealx.Rows the record readers use.
type recordRows interface {
	rowScanner
	Next() bool
	Err() error
}

// firstRecord reports not-found only when iteration ended cleanly.
func firstRecord(r recordRows, organizationID, subjectID string) (*tenantauthz.UserRecord, error) {
	if !r.Next() {
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("read user record %s/%s: %w", organizationID, subjectID, err)
		}
		return nil, fmt.Errorf("%w: %s/%s", tenantauthz.ErrRecordNotFound, organizationID, subjectID)
	}
	return scanRecord(r)
}

func collectRecords(r recordRows) ([]*tenantauthz.UserRecord, error) {
	out := make([]*tenantauthz.UserRecord, 0)
	for r.Next() {
		rec, err := scanRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read user records: %w", err)
	}
	return out, nil
}

func scanRecord(r rowScanner) (*tenantauthz.UserRecord, error) {
	var org, subject, roleJSON, permsJSON string
	var active int
	var version int64
	var updatedRaw any
	if err := r.Scan(&org, &subject, &active, &roleJSON, &version, &permsJSON, &updatedRaw); err != nil {
		return nil, fmt.Errorf("scan user record: %w", err)
	}
	rec := &tenantauthz.UserRecord{
		OrganizationID: org,
		SubjectID:      subject,
		IsActive:       active != 0,
		ClaimsVersion:  version,
		UpdatedAt:      scanTime(updatedRaw),
	}
	if err := json.Unmarshal([]byte(roleJSON), &rec.Role); err != nil {
		return nil, fmt.Errorf("decode role for %s/%s: %w", org, subject, err)
	}
	if err := json.Unmarshal([]byte(permsJSON), &rec.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions for %s/%s: %w", org, subject, err)
	}
	return rec, nil
}

// PutUserRecord inserts or replaces the record for its (organization, subject).
func (s *SQLRecordStore) PutUserRecord(ctx context.Context, rec *tenantauthz.UserRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if err := requireKey(rec.OrganizationID, rec.SubjectID); err != nil {
		return err
	}
	role, err := json.Marshal(rec.Role)
	if err != nil {
		return fmt.Errorf("encode role: %w", err)
	}
	perms := rec.Permissions
	if perms == nil {
		perms = []tenantauthz.PermissionGrant{}
	}
	permsJSON, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	q := `INSERT INTO user_records(organization_id, subject_id, is_active, role_json, claims_version, permissions_json, updated_at)
VALUES(:organization_id, :subject_id, :is_active, :role_json, :claims_version, :permissions_json, :updated_at)
ON CONFLICT (organization_id, subject_id) DO UPDATE SET
is_active = excluded.is_active, role_json = excluded.role_json, claims_version = excluded.claims_version,
permissions_json = excluded.permissions_json, updated_at = excluded.updated_at`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"organization_id":  rec.OrganizationID,
		"subject_id":       rec.SubjectID,
		"is_active":        boolToInt(rec.IsActive),
		"role_json":        string(role),
		"claims_version":   rec.ClaimsVersion,
		"permissions_json": string(permsJSON),
		"updated_at":       sqlNullTimeOrNil(updated),
	})
	if err != nil {
		return fmt.Errorf("upsert user record %s/%s: %w", rec.OrganizationID, rec.SubjectID, err)
	}
	return nil
}

func (s *SQLRecordStore) DeleteUserRecord(ctx context.Context, organizationID, subjectID string) error {
	q := `DELETE FROM user_records WHERE organization_id = :organization_id AND subject_id = :subject_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"organization_id": organizationID, "subject_id": subjectID})
	return err
}

func (s *SQLRecordStore) ListUserRecords(ctx context.Context, organizationID string) ([]*tenantauthz.UserRecord, error) {
	q := selectRecordColumns + ` WHERE (:organization_id = '' OR organization_id = :organization_id) ORDER BY organization_id, subject_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"organization_id": organizationID})
	if err != nil {
		return nil, fmt.Errorf("list user records: %w", err)
	}
	defer r.Close()
	return collectRecords(r)
}
