package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oarkflow/tenantauthz"
)

// MemoryRecordStore keeps user records in memory for tests and demos.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[recordKey]*tenantauthz.UserRecord
}

type recordKey struct {
	org     string
	subject string
}

func NewMemoryRecordStore(records ...*tenantauthz.UserRecord) *MemoryRecordStore {
	s := &MemoryRecordStore{records: make(map[recordKey]*tenantauthz.UserRecord)}
	for _, r := range records {
		if r != nil {
			s.records[recordKey{r.OrganizationID, r.SubjectID}] = r.Clone()
		}
	}
	return s
}

func (s *MemoryRecordStore) GetUserRecord(ctx context.Context, organizationID, subjectID string) (*tenantauthz.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := requireKey(organizationID, subjectID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordKey{organizationID, subjectID}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", tenantauthz.ErrRecordNotFound, organizationID, subjectID)
	}
	return r.Clone(), nil
}

func (s *MemoryRecordStore) PutUserRecord(ctx context.Context, r *tenantauthz.UserRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if err := requireKey(r.OrganizationID, r.SubjectID); err != nil {
		return err
	}
	dup := r.Clone()
	if dup.UpdatedAt.IsZero() {
		dup.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey{r.OrganizationID, r.SubjectID}] = dup
	return nil
}

func (s *MemoryRecordStore) DeleteUserRecord(ctx context.Context, organizationID, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordKey{organizationID, subjectID})
	return nil
}

func (s *MemoryRecordStore) ListUserRecords(ctx context.Context, organizationID string) ([]*tenantauthz.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*tenantauthz.UserRecord, 0)
	for k, r := range s.records {
		if organizationID == "" || k.org == organizationID {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrganizationID != out[j].OrganizationID {
			return out[i].OrganizationID < out[j].OrganizationID
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out, nil
}

// MemoryAuditStore keeps audit events in memory.
type MemoryAuditStore struct {
	mu     sync.RWMutex
	events []*tenantauthz.AuditEvent
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{events: make([]*tenantauthz.AuditEvent, 0)}
}

func (s *MemoryAuditStore) RecordDecision(ctx context.Context, ev *tenantauthz.AuditEvent) error {
	if ev == nil {
		return nil
	}
	dup := *ev
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, &dup)
	return nil
}

func (s *MemoryAuditStore) GetAuditLog(ctx context.Context, filter tenantauthz.AuditFilter) ([]*tenantauthz.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	out := make([]*tenantauthz.AuditEvent, 0)
	for _, ev := range s.events {
		if !filter.Matches(ev) {
			continue
		}
		dup := *ev
		out = append(out, &dup)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *MemoryAuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
