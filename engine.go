package tenantauthz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/tenantauthz/logger"
)

const (
	DefaultSystemTenant = "SYSTEM"
	DefaultFetchTimeout = 5 * time.Second
)

// AuthContext is the result of a successful evaluation. Role and
// ClaimsVersion come from the authoritative record, never from the token.
// It is valid for one request only.
type AuthContext struct {
	SubjectID      string      `json:"subjectId"`
	OrganizationID string      `json:"organizationId"`
	Role           string      `json:"role"`
	ClaimsVersion  int64       `json:"claimsVersion"`
	Record         *UserRecord `json:"userRecord"`
	TraceID        string      `json:"traceId,omitempty"`
}

// Engine evaluates authorization requests against a RecordStore. It keeps no
// per-request state between calls and is safe for concurrent use.
type Engine struct {
	store        RecordStore
	reader       *ClaimsReader
	systemTenant string
	fetchTimeout time.Duration
	logger       logger.Logger
	traceIDFunc  logger.TraceIDFunc
	metrics      *Metrics
	lag          *LagMonitor
	lagConfig    *LagMonitorConfig
	now          func() time.Time

	auditSink   AuditSink
	auditBuffer int
	auditCh     chan AuditEvent
	auditMu     sync.RWMutex
	auditClosed bool
	auditWG     sync.WaitGroup
}

func NewEngine(store RecordStore, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("record store is required")
	}
	e := &Engine{
		store:        store,
		reader:       NewClaimsReader(),
		systemTenant: DefaultSystemTenant,
		fetchTimeout: DefaultFetchTimeout,
		logger:       logger.NewPhusluLogger(),
		traceIDFunc:  uuid.NewString,
		now:          time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	lagCfg := LagMonitorConfig{}
	if e.lagConfig != nil {
		lagCfg = *e.lagConfig
	}
	lag, err := NewLagMonitor(lagCfg, e.logger)
	if err != nil {
		return nil, err
	}
	e.lag = lag
	if e.auditSink != nil {
		e.auditCh = make(chan AuditEvent, e.auditBuffer)
		e.auditWG.Add(1)
		go e.runAudit()
	}
	return e, nil
}

// SystemTenant returns the organization id allowed to target any tenant.
func (e *Engine) SystemTenant() string { return e.systemTenant }

// Logger returns the logger decisions are written to.
func (e *Engine) Logger() logger.Logger { return e.logger }

// ValidatePermission authorizes capability ("resource:action") for the
// token's organization. A non-empty organizationHint must name that same
// organization.
func (e *Engine) ValidatePermission(ctx context.Context, tok *IdentityToken, organizationHint, capability string) (*AuthContext, error) {
	ev := e.begin(EntryPermission, capability)
	ac, err := e.evaluate(ctx, ev, tok, organizationHint, func(rec *UserRecord) error {
		return checkCapability(rec, capability)
	})
	return e.finish(ev, ac, err)
}

// ValidateRole authorizes when the authoritative role is one of allowedRoles.
func (e *Engine) ValidateRole(ctx context.Context, tok *IdentityToken, organizationHint string, allowedRoles []string) (*AuthContext, error) {
	ev := e.begin(EntryRole, strings.Join(allowedRoles, ","))
	ac, err := e.evaluate(ctx, ev, tok, organizationHint, func(rec *UserRecord) error {
		return checkRole(rec, allowedRoles)
	})
	return e.finish(ev, ac, err)
}

// ValidateOrganizationMember authorizes acting on targetOrganizationID. The
// caller's record is read from its token organization; the system tenant may
// target any organization. The returned context is scoped to the target.
func (e *Engine) ValidateOrganizationMember(ctx context.Context, tok *IdentityToken, targetOrganizationID string) (*AuthContext, error) {
	ev := e.begin(EntryOrganization, targetOrganizationID)
	ac, err := e.evaluateMembership(ctx, ev, tok, targetOrganizationID)
	return e.finish(ev, ac, err)
}

// PermissionResult is one entry of BatchValidatePermissions.
type PermissionResult struct {
	Capability string
	Context    *AuthContext
	Err        error
}

// BatchValidatePermissions runs ValidatePermission once per capability. Each
// evaluation re-fetches the record and is audited separately.
func (e *Engine) BatchValidatePermissions(ctx context.Context, tok *IdentityToken, organizationHint string, capabilities []string) []PermissionResult {
	out := make([]PermissionResult, len(capabilities))
	for i, c := range capabilities {
		ac, err := e.ValidatePermission(ctx, tok, organizationHint, c)
		out[i] = PermissionResult{Capability: c, Context: ac, Err: err}
	}
	return out
}

// evaluation carries one request through the pipeline.
type evaluation struct {
	entry     EntryPoint
	target    string
	traceID   string
	start     time.Time
	stage     Stage
	claims    *TokenClaims
	record    *UserRecord
	staleness StalenessResult
	org       string
	bypass    bool
}

func (e *Engine) begin(entry EntryPoint, target string) *evaluation {
	ev := &evaluation{entry: entry, target: target, start: e.now(), stage: StageStart}
	if e.traceIDFunc != nil {
		ev.traceID = e.traceIDFunc()
	}
	return ev
}

func (e *Engine) evaluate(ctx context.Context, ev *evaluation, tok *IdentityToken, hint string, check func(*UserRecord) error) (*AuthContext, error) {
	claims, err := e.extract(ev, tok)
	if err != nil {
		return nil, err
	}
	if err := claims.RequireOrganization(); err != nil {
		return nil, err
	}
	ev.org = claims.OrganizationID
	if hint != "" && hint != claims.OrganizationID {
		return nil, newError(KindPermissionDenied, "organization mismatch").
			withDetail("token organization %s, requested organization %s", claims.OrganizationID, hint)
	}
	if err := e.load(ctx, ev); err != nil {
		return nil, err
	}
	if err := check(ev.record); err != nil {
		return nil, err
	}
	ev.stage = StageChecked
	return e.build(ev), nil
}

func (e *Engine) evaluateMembership(ctx context.Context, ev *evaluation, tok *IdentityToken, target string) (*AuthContext, error) {
	claims, err := e.extract(ev, tok)
	if err != nil {
		return nil, err
	}
	if err := claims.RequireOrganization(); err != nil {
		return nil, err
	}
	ev.org = target
	if target == "" {
		return nil, newError(KindInvalidArgument, "target organization is required")
	}
	if err := e.load(ctx, ev); err != nil {
		return nil, err
	}
	if claims.OrganizationID != target && claims.OrganizationID != e.systemTenant {
		return nil, newError(KindPermissionDenied, "organization mismatch").
			withDetail("token organization %s, target organization %s", claims.OrganizationID, target)
	}
	ev.bypass = claims.OrganizationID != target
	ev.stage = StageChecked
	return e.build(ev), nil
}

func (e *Engine) extract(ev *evaluation, tok *IdentityToken) (*TokenClaims, error) {
	claims, err := e.reader.Read(tok)
	if err != nil {
		return nil, err
	}
	ev.claims = claims
	ev.stage = StageTokenExtracted
	return claims, nil
}

// load runs the gates shared by every entry point: fetch, staleness, active.
func (e *Engine) load(ctx context.Context, ev *evaluation) error {
	rec, err := e.fetch(ctx, ev.claims.OrganizationID, ev.claims.SubjectID)
	if err != nil {
		return err
	}
	ev.record = rec
	ev.stage = StageRecordFetched

	res, err := CheckStaleness(ev.claims.ClaimsVersion, rec)
	ev.staleness = res
	if err != nil {
		return err
	}
	if res.Ahead {
		e.metrics.incClaimsAhead()
		e.lag.Observe(ev.claims.OrganizationID, ev.claims.SubjectID, res)
	}
	ev.stage = StageStaleness

	if !rec.IsActive {
		return newError(KindPermissionDenied, "account is inactive")
	}
	ev.stage = StageActive
	return nil
}

// fetch is the only suspension point. It is bounded by fetchTimeout, follows
// ctx cancellation and is never retried here.
func (e *Engine) fetch(ctx context.Context, organizationID, subjectID string) (*UserRecord, error) {
	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()
	start := e.now()
	rec, err := e.store.GetUserRecord(fctx, organizationID, subjectID)
	elapsed := e.now().Sub(start)
	switch {
	case errors.Is(err, ErrRecordNotFound) || (err == nil && rec == nil):
		e.metrics.observeFetch("not_found", elapsed)
		return nil, newError(KindNotFound, "user record not found").
			withDetail("no record for organization %s subject %s", organizationID, subjectID)
	case err != nil:
		e.metrics.observeFetch("error", elapsed)
		return nil, newError(KindInternal, "internal error").
			withDetail("record fetch for organization %s subject %s: %v", organizationID, subjectID, err).
			wrap(err)
	}
	e.metrics.observeFetch("ok", elapsed)
	return rec.Clone(), nil
}

func (e *Engine) build(ev *evaluation) *AuthContext {
	ev.stage = StageContextBuilt
	return &AuthContext{
		SubjectID:      ev.claims.SubjectID,
		OrganizationID: ev.org,
		Role:           ev.record.Role.Identifier(),
		ClaimsVersion:  ev.record.AuthoritativeVersion(),
		Record:         ev.record,
		TraceID:        ev.traceID,
	}
}

// finish writes exactly one log line, metric and audit event per evaluation.
func (e *Engine) finish(ev *evaluation, ac *AuthContext, err error) (*AuthContext, error) {
	event := AuditEvent{
		ID:             uuid.NewString(),
		TraceID:        ev.traceID,
		Timestamp:      ev.start,
		EntryPoint:     ev.entry,
		OrganizationID: ev.org,
		Target:         ev.target,
		Outcome:        OutcomeAllow,
		Stage:          ev.stage,
		TokenVersion:   ev.staleness.TokenVersion,
		RecordVersion:  ev.staleness.AuthoritativeVersion,
		ClaimsAhead:    ev.staleness.Ahead,
		Duration:       e.now().Sub(ev.start),
	}
	if ev.claims != nil {
		event.SubjectID = ev.claims.SubjectID
		event.TokenVersion = ev.claims.ClaimsVersion
		if event.OrganizationID == "" {
			event.OrganizationID = ev.claims.OrganizationID
		}
		if ev.claims.OrganizationID != event.OrganizationID {
			event.Metadata = map[string]any{"caller_organization": ev.claims.OrganizationID}
		}
	}
	if ev.bypass {
		event.Metadata["system_bypass"] = true
	}
	if err != nil {
		ac = nil
		event.Outcome = OutcomeDeny
		event.ErrorKind = KindOf(err)
		event.Detail = DetailOf(err)
	}

	kv := []any{
		"trace_id", event.TraceID,
		"entry_point", string(event.EntryPoint),
		"subject", event.SubjectID,
		"organization", event.OrganizationID,
		"target", event.Target,
		"outcome", string(event.Outcome),
		"stage", string(event.Stage),
	}
	if err != nil {
		kv = append(kv, "error_kind", string(event.ErrorKind), "detail", event.Detail)
	}
	if caller, ok := event.Metadata["caller_organization"]; ok {
		kv = append(kv, "caller_organization", caller)
	}
	if ev.bypass {
		kv = append(kv, "system_bypass", true)
	}
	if event.ClaimsAhead {
		kv = append(kv, "claims_ahead", true)
	}
	if event.ErrorKind == KindInternal {
		e.logger.Error("authz decision", kv...)
	} else {
		e.logger.Info("authz decision", kv...)
	}

	e.metrics.observeDecision(event.EntryPoint, event.Outcome, event.ErrorKind)
	e.enqueueAudit(event)
	return ac, err
}

func (e *Engine) enqueueAudit(event AuditEvent) {
	if e.auditCh == nil {
		return
	}
	e.auditMu.RLock()
	defer e.auditMu.RUnlock()
	if e.auditClosed {
		e.metrics.incAuditDropped()
		return
	}
	select {
	case e.auditCh <- event:
	default:
		// never block an authorization on the audit sink
		e.metrics.incAuditDropped()
		e.logger.Warn("audit queue full, event dropped", "event_id", event.ID, "trace_id", event.TraceID)
	}
}

func (e *Engine) runAudit() {
	defer e.auditWG.Done()
	for ev := range e.auditCh {
		if err := e.auditSink.RecordDecision(context.Background(), &ev); err != nil {
			e.logger.Error("audit sink write failed", "event_id", ev.ID, "error", err)
		}
	}
}

// Close stops the audit worker after draining queued events and releases the
// lag monitor. Evaluations after Close still work but are not audited.
func (e *Engine) Close(ctx context.Context) error {
	e.auditMu.Lock()
	if !e.auditClosed {
		e.auditClosed = true
		if e.auditCh != nil {
			close(e.auditCh)
		}
	}
	e.auditMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.auditWG.Wait()
		close(done)
	}()
	defer e.lag.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	return nil
}
