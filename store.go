package tenantauthz

import (
	"context"
	"errors"
)

// ErrRecordNotFound is returned (possibly wrapped) by a RecordStore when no
// record exists for the key. Every other store error is a transport failure.
var ErrRecordNotFound = errors.New("user record not found")

// RecordStore is the read side of the tenant record store, keyed by
// (organization, subject).
type RecordStore interface {
	GetUserRecord(ctx context.Context, organizationID, subjectID string) (*UserRecord, error)
}

// RecordWriter is implemented by stores that can be seeded. The engine never
// uses it; administration tooling and tests do.
type RecordWriter interface {
	PutUserRecord(ctx context.Context, record *UserRecord) error
	DeleteUserRecord(ctx context.Context, organizationID, subjectID string) error
}

// RecordLister enumerates an organization's records for operator tooling.
type RecordLister interface {
	ListUserRecords(ctx context.Context, organizationID string) ([]*UserRecord, error)
}
