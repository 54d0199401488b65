package tenantauthz

import (
	"context"
	"time"
)

// Outcome of one evaluation.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
)

// EntryPoint names the validator that produced an audit event.
type EntryPoint string

const (
	EntryPermission   EntryPoint = "permission"
	EntryRole         EntryPoint = "role"
	EntryOrganization EntryPoint = "organization"
)

// Stage is the last state the evaluation reached.
type Stage string

const (
	StageStart          Stage = "start"
	StageTokenExtracted Stage = "token_extracted"
	StageRecordFetched  Stage = "record_fetched"
	StageStaleness      Stage = "staleness_checked"
	StageActive         Stage = "active_checked"
	StageChecked        Stage = "check_passed"
	StageContextBuilt   Stage = "context_built"
)

// AuditEvent is emitted once per evaluation, allowed or denied. When the
// token organization differs from OrganizationID, Metadata carries it as
// caller_organization; system tenant allows also set system_bypass.
type AuditEvent struct {
	ID             string         `json:"id"`
	TraceID        string         `json:"trace_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	EntryPoint     EntryPoint     `json:"entry_point"`
	SubjectID      string         `json:"subject_id"`
	OrganizationID string         `json:"organization_id"`
	Target         string         `json:"target"`
	Outcome        Outcome        `json:"outcome"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	Detail         string         `json:"detail,omitempty"`
	Stage          Stage          `json:"stage"`
	TokenVersion   int64          `json:"token_version"`
	RecordVersion  int64          `json:"record_version"`
	ClaimsAhead    bool           `json:"claims_ahead,omitempty"`
	Duration       time.Duration  `json:"duration"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AuditSink persists audit events.
type AuditSink interface {
	RecordDecision(ctx context.Context, event *AuditEvent) error
}

// AuditFilter narrows AuditQuerier results. Zero fields match everything.
type AuditFilter struct {
	SubjectID      string
	OrganizationID string
	Outcome        Outcome
	ErrorKind      ErrorKind
	StartTime      time.Time
	EndTime        time.Time
	Limit          int
}

// Matches applies the filter to one event (Limit is ignored).
func (f AuditFilter) Matches(ev *AuditEvent) bool {
	if ev == nil {
		return false
	}
	if f.SubjectID != "" && ev.SubjectID != f.SubjectID {
		return false
	}
	if f.OrganizationID != "" && ev.OrganizationID != f.OrganizationID {
		return false
	}
	if f.Outcome != "" && ev.Outcome != f.Outcome {
		return false
	}
	if f.ErrorKind != "" && ev.ErrorKind != f.ErrorKind {
		return false
	}
	if !f.StartTime.IsZero() && ev.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && ev.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

// AuditQuerier reads back recorded events.
type AuditQuerier interface {
	GetAuditLog(ctx context.Context, filter AuditFilter) ([]*AuditEvent, error)
}
