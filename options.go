package tenantauthz

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/tenantauthz/logger"
)

// Logger is re-exported so callers need not import the logger package.
type Logger = logger.Logger

// EngineOption configures an Engine at construction.
type EngineOption func(e *Engine) error

// WithLogger installs the decision/diagnostic logger.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("logger is nil")
		}
		e.logger = l
		return nil
	}
}

// WithTraceIDFunc installs a custom trace ID generator.
func WithTraceIDFunc(f logger.TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceIDFunc = f
		return nil
	}
}

// WithAuditSink sends one event per evaluation to sink through a queue of
// bufferSize entries (1024 when <= 0).
func WithAuditSink(sink AuditSink, bufferSize int) EngineOption {
	return func(e *Engine) error {
		if bufferSize <= 0 {
			bufferSize = 1024
		}
		e.auditSink = sink
		e.auditBuffer = bufferSize
		return nil
	}
}

// WithFetchTimeout bounds each authoritative record fetch.
func WithFetchTimeout(d time.Duration) EngineOption {
	return func(e *Engine) error {
		if d <= 0 {
			return fmt.Errorf("fetch timeout must be positive, got %s", d)
		}
		e.fetchTimeout = d
		return nil
	}
}

// WithSystemTenant overrides the reserved organization that may act on any
// target organization in ValidateOrganizationMember.
func WithSystemTenant(id string) EngineOption {
	return func(e *Engine) error {
		if id == "" {
			return fmt.Errorf("system tenant id must not be empty")
		}
		e.systemTenant = id
		return nil
	}
}

// WithClaimNames overrides the token claim names. Empty values keep defaults.
func WithClaimNames(organizationClaims []string, versionClaim string) EngineOption {
	return func(e *Engine) error {
		if len(organizationClaims) > 0 {
			e.reader.OrganizationClaims = append([]string(nil), organizationClaims...)
		}
		if versionClaim != "" {
			e.reader.VersionClaim = versionClaim
		}
		return nil
	}
}

// WithMetrics registers Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) EngineOption {
	return func(e *Engine) error {
		m, err := NewMetrics(reg)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		e.metrics = m
		return nil
	}
}

// WithLagMonitor configures de-duplicated warnings for tokens that are ahead
// of the authoritative record.
func WithLagMonitor(cfg LagMonitorConfig) EngineOption {
	return func(e *Engine) error {
		e.lagConfig = &cfg
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		e.now = now
		return nil
	}
}
