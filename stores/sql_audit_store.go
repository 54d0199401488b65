package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/tenantauthz"
)

// SQLAuditStore persists audit events in the audit_events table.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) RecordDecision(ctx context.Context, ev *tenantauthz.AuditEvent) error {
	if ev == nil {
		return nil
	}
	metaB, _ := json.Marshal(ev.Metadata)
	q := `INSERT INTO audit_events(id, trace_id, timestamp, entry_point, subject_id, organization_id, target, outcome, error_kind, detail, stage, token_version, record_version, claims_ahead, duration_ns, metadata_json)
VALUES(:id, :trace_id, :timestamp, :entry_point, :subject_id, :organization_id, :target, :outcome, :error_kind, :detail, :stage, :token_version, :record_version, :claims_ahead, :duration_ns, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              ev.ID,
		"trace_id":        ev.TraceID,
		"timestamp":       ev.Timestamp.UTC(),
		"entry_point":     string(ev.EntryPoint),
		"subject_id":      ev.SubjectID,
		"organization_id": ev.OrganizationID,
		"target":          ev.Target,
		"outcome":         string(ev.Outcome),
		"error_kind":      string(ev.ErrorKind),
		"detail":          ev.Detail,
		"stage":           string(ev.Stage),
		"token_version":   ev.TokenVersion,
		"record_version":  ev.RecordVersion,
		"claims_ahead":    boolToInt(ev.ClaimsAhead),
		"duration_ns":     int64(ev.Duration),
		"metadata_json":   string(metaB),
	})
	if err != nil {
		return fmt.Errorf("insert audit event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *SQLAuditStore) GetAuditLog(ctx context.Context, filter tenantauthz.AuditFilter) ([]*tenantauthz.AuditEvent, error) {
	q := `SELECT id, trace_id, timestamp, entry_point, subject_id, organization_id, target, outcome, error_kind, detail, stage, token_version, record_version, claims_ahead, duration_ns, metadata_json FROM audit_events WHERE 1=1`
	params := map[string]any{}
	if filter.SubjectID != "" {
		q += " AND subject_id = :subject_id"
		params["subject_id"] = filter.SubjectID
	}
	if filter.OrganizationID != "" {
		q += " AND organization_id = :organization_id"
		params["organization_id"] = filter.OrganizationID
	}
	if filter.Outcome != "" {
		q += " AND outcome = :outcome"
		params["outcome"] = string(filter.Outcome)
	}
	if filter.ErrorKind != "" {
		q += " AND error_kind = :error_kind"
		params["error_kind"] = string(filter.ErrorKind)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime.UTC()
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime.UTC()
	}
	q += " ORDER BY timestamp"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer r.Close()
	out := make([]*tenantauthz.AuditEvent, 0)
	for r.Next() {
		var id, traceID, entry, subject, org, target, outcome, kind, detail, stage, metaJSON string
		var tsRaw any
		var tokenVersion, recordVersion, durationNs int64
		var ahead int
		if err := r.Scan(&id, &traceID, &tsRaw, &entry, &subject, &org, &target, &outcome, &kind, &detail, &stage, &tokenVersion, &recordVersion, &ahead, &durationNs, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev := &tenantauthz.AuditEvent{
			ID:             id,
			TraceID:        traceID,
			Timestamp:      scanTime(tsRaw),
			EntryPoint:     tenantauthz.EntryPoint(entry),
			SubjectID:      subject,
			OrganizationID: org,
			Target:         target,
			Outcome:        tenantauthz.Outcome(outcome),
			ErrorKind:      tenantauthz.ErrorKind(kind),
			Detail:         detail,
			Stage:          tenantauthz.Stage(stage),
			TokenVersion:   tokenVersion,
			RecordVersion:  recordVersion,
			ClaimsAhead:    ahead != 0,
			Duration:       time.Duration(durationNs),
		}
		_ = json.Unmarshal([]byte(metaJSON), &ev.Metadata)
		out = append(out, ev)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}
	return out, nil
}
