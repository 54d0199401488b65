package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/tenantauthz"
)

const defaultRedisPrefix = "tenantauthz"

// RedisRecordStore stores each user record as a JSON document under
// {prefix}:{organization}:user:{subject}.
type RedisRecordStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRecordStore(client redis.UniversalClient, prefix string) *RedisRecordStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisRecordStore{client: client, prefix: prefix}
}

// NewRedisClient builds a single-node client from configuration.
func NewRedisClient(cfg tenantauthz.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

func (r *RedisRecordStore) key(organizationID, subjectID string) string {
	return fmt.Sprintf("%s:%s:user:%s", r.prefix, organizationID, subjectID)
}

func (r *RedisRecordStore) GetUserRecord(ctx context.Context, organizationID, subjectID string) (*tenantauthz.UserRecord, error) {
	if err := requireKey(organizationID, subjectID); err != nil {
		return nil, err
	}
	data, err := r.client.Get(ctx, r.key(organizationID, subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s/%s", tenantauthz.ErrRecordNotFound, organizationID, subjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get user record: %w", err)
	}
	return decodeRecord(data, organizationID, subjectID)
}

// decodeRecord fills the key fields when the stored document omits them.
func decodeRecord(data []byte, organizationID, subjectID string) (*tenantauthz.UserRecord, error) {
	rec := &tenantauthz.UserRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode user record %s/%s: %w", organizationID, subjectID, err)
	}
	if rec.OrganizationID == "" {
		rec.OrganizationID = organizationID
	}
	if rec.SubjectID == "" {
		rec.SubjectID = subjectID
	}
	return rec, nil
}

func (r *RedisRecordStore) PutUserRecord(ctx context.Context, rec *tenantauthz.UserRecord) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	if err := requireKey(rec.OrganizationID, rec.SubjectID); err != nil {
		return err
	}
	dup := rec.Clone()
	if dup.UpdatedAt.IsZero() {
		dup.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(dup)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	return r.client.Set(ctx, r.key(rec.OrganizationID, rec.SubjectID), data, 0).Err()
}

func (r *RedisRecordStore) DeleteUserRecord(ctx context.Context, organizationID, subjectID string) error {
	return r.client.Del(ctx, r.key(organizationID, subjectID)).Err()
}

func (r *RedisRecordStore) ListUserRecords(ctx context.Context, organizationID string) ([]*tenantauthz.UserRecord, error) {
	org := organizationID
	if org == "" {
		org = "*"
	}
	iter := r.client.Scan(ctx, 0, r.key(org, "*"), 100).Iterator()
	out := make([]*tenantauthz.UserRecord, 0)
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", iter.Val(), err)
		}
		rec, err := decodeRecord(data, "", "")
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrganizationID != out[j].OrganizationID {
			return out[i].OrganizationID < out[j].OrganizationID
		}
		return out[i].SubjectID < out[j].SubjectID
	})
	return out, nil
}
