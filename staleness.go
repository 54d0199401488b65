package tenantauthz

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/tenantauthz/logger"
)

// StalenessResult describes how the token's claims version relates to the
// authoritative one.
type StalenessResult struct {
	TokenVersion         int64
	AuthoritativeVersion int64
	// Ahead is set when the token claims a newer version than the store holds.
	// It is accepted (claims propagation lag) but should be monitored.
	Ahead bool
}

// CheckStaleness rejects tokens older than the authoritative record.
func CheckStaleness(tokenVersion int64, record *UserRecord) (StalenessResult, error) {
	res := StalenessResult{TokenVersion: tokenVersion, AuthoritativeVersion: record.AuthoritativeVersion()}
	if res.TokenVersion < res.AuthoritativeVersion {
		msg := fmt.Sprintf("token claims are stale (token version %d, current version %d); refresh the token and retry",
			res.TokenVersion, res.AuthoritativeVersion)
		return res, newError(KindFailedPrecondition, msg)
	}
	res.Ahead = res.TokenVersion > res.AuthoritativeVersion
	return res, nil
}

// LagMonitor reports tokens that are ahead of the store. Warnings are
// de-duplicated per (organization, subject, versions) for Window so a lagging
// replica does not flood the log. It holds no authorization state.
type LagMonitor struct {
	seen      *ristretto.Cache
	window    time.Duration
	log       logger.Logger
	closeOnce sync.Once
	closed    bool
}

type LagMonitorConfig struct {
	Window      time.Duration
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func (c LagMonitorConfig) withDefaults() LagMonitorConfig {
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.NumCounters <= 0 {
		c.NumCounters = 1e5
	}
	if c.MaxCost <= 0 {
		c.MaxCost = 1e4
	}
	if c.BufferItems <= 0 {
		c.BufferItems = 64
	}
	return c
}

func NewLagMonitor(cfg LagMonitorConfig, l logger.Logger) (*LagMonitor, error) {
	cfg = cfg.withDefaults()
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("lag monitor cache: %w", err)
	}
	if l == nil {
		l = logger.NewNullLogger()
	}
	return &LagMonitor{seen: cache, window: cfg.Window, log: l}, nil
}

// Observe logs a warning for res unless the same lag was reported within the
// window. It returns true when a warning was emitted.
func (m *LagMonitor) Observe(organizationID, subjectID string, res StalenessResult) bool {
	if m == nil || !res.Ahead {
		return false
	}
	key := fmt.Sprintf("%s/%s/%d/%d", organizationID, subjectID, res.TokenVersion, res.AuthoritativeVersion)
	if _, ok := m.seen.Get(key); ok {
		return false
	}
	m.seen.SetWithTTL(key, struct{}{}, 1, m.window)
	m.seen.Wait()
	m.log.Warn("token claims ahead of authoritative record",
		"organization", organizationID,
		"subject", subjectID,
		"token_version", res.TokenVersion,
		"record_version", res.AuthoritativeVersion,
	)
	return true
}

// Close releases the cache. It is safe to call more than once.
func (m *LagMonitor) Close() {
	if m == nil || m.seen == nil {
		return
	}
	m.closeOnce.Do(func() {
		m.seen.Close()
		m.closed = true
	})
}
