package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

// Options configures a Store's connection. Two Store values are built per
// process from two Options, bound to the validator principal (read-mostly:
// get_key, incr_rate, append_audit, usage bumps) and the manager principal
// (admin: put_key, put_project, index mutation) respectively. Nothing in
// this package enforces that split; the caller wires each Store to the
// service layer that is allowed to use it.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
}

// Store is a Redis-backed apikey.Store.
type Store struct {
	client *redis.Client
}

var _ apikey.Store = (*Store)(nil)

// New builds a Store against a single Redis connection pool.
func New(opts Options) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	})}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return apikey.ErrNotFound
	}
	return fmt.Errorf("%w: %v", apikey.ErrTransient, err)
}

func (s *Store) GetKey(ctx context.Context, projectID, keyID string) (*apikey.KeyDoc, error) {
	raw, err := s.client.Get(ctx, keyDocKey(projectID, keyID)).Result()
	if err != nil {
		return nil, translateErr(err)
	}
	var doc apikey.KeyDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: unmarshal key doc: %v", apikey.ErrPermanent, err)
	}
	return &doc, nil
}

func (s *Store) PutKeyCreateOnly(ctx context.Context, doc *apikey.KeyDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal key doc: %v", apikey.ErrPermanent, err)
	}
	ok, err := s.client.SetNX(ctx, keyDocKey(doc.ProjectID, doc.KeyID), data, 0).Result()
	if err != nil {
		return translateErr(err)
	}
	if !ok {
		return apikey.ErrAlreadyExists
	}
	return nil
}

// SetKeyDisabled reads, flips, and rewrites the key document. This is not
// a single atomic Redis operation: Redis strings have no native partial
// field update, so a full GET+SET is the cheapest way to flip one field
// without standing up a Lua script for a single boolean flag. Concurrent
// disables of the same key both converge on the same end state, so a lost
// update here cannot leave a key silently re-enabled.
func (s *Store) SetKeyDisabled(ctx context.Context, projectID, keyID string, disabled bool) error {
	doc, err := s.GetKey(ctx, projectID, keyID)
	if err != nil {
		return err
	}
	doc.Disabled = disabled
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal key doc: %v", apikey.ErrPermanent, err)
	}
	if err := s.client.Set(ctx, keyDocKey(projectID, keyID), data, 0).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *Store) AddKeyToIndex(ctx context.Context, projectID, keyID string) error {
	if err := s.client.SAdd(ctx, indexKey(projectID), keyID).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *Store) RemoveKeyFromIndex(ctx context.Context, projectID, keyID string) error {
	if err := s.client.SRem(ctx, indexKey(projectID), keyID).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

// ScanIndex reads the full index set and applies a deterministic
// lexicographic sort before slicing, since a Redis set carries no
// native ordering or cursor stability guarantee across members.
func (s *Store) ScanIndex(ctx context.Context, projectID string, offset, limit int) ([]string, *int, error) {
	members, err := s.client.SMembers(ctx, indexKey(projectID)).Result()
	if err != nil {
		return nil, nil, translateErr(err)
	}
	sort.Strings(members)

	if offset < 0 {
		offset = 0
	}
	if offset >= len(members) {
		return []string{}, nil, nil
	}
	end := offset + limit
	if end > len(members) {
		end = len(members)
	}
	page := append([]string{}, members[offset:end]...)
	var next *int
	if end < len(members) {
		n := end
		next = &n
	}
	return page, next, nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*apikey.ProjectDoc, error) {
	raw, err := s.client.Get(ctx, projectKey(projectID)).Result()
	if err != nil {
		return nil, translateErr(err)
	}
	var doc apikey.ProjectDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: unmarshal project doc: %v", apikey.ErrPermanent, err)
	}
	return &doc, nil
}

func (s *Store) PutProjectCreateOnly(ctx context.Context, doc *apikey.ProjectDoc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal project doc: %v", apikey.ErrPermanent, err)
	}
	ok, err := s.client.SetNX(ctx, projectKey(doc.ProjectID), data, 0).Result()
	if err != nil {
		return translateErr(err)
	}
	if !ok {
		return apikey.ErrAlreadyExists
	}
	return nil
}

// AppendAudit writes to the audit stream with XAdd. Failures here are
// returned to the caller, who is responsible for logging-and-discarding
// per the best-effort contract; the store itself never silently drops.
func (s *Store) AppendAudit(ctx context.Context, record apikey.AuditRecord) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: auditStreamKey,
		Values: map[string]interface{}{
			"ts":         record.TS,
			"project_id": record.ProjectID,
			"key_id":     record.KeyID,
			"result":     record.Result,
			"client":     record.Client,
		},
	}).Err()
	if err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *Store) IncrRate(ctx context.Context, projectID, keyID string, minute int64, ttlSeconds int) (int64, error) {
	key := rateKey(projectID, keyID, minute)
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, secondsToDuration(ttlSeconds))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, translateErr(err)
	}
	return incr.Val(), nil
}

func (s *Store) BumpUsage(ctx context.Context, projectID, keyID, field string, delta int64) error {
	if err := s.client.HIncrBy(ctx, usageKey(projectID, keyID), field, delta).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

func (s *Store) SetUsageTimestamp(ctx context.Context, projectID, keyID, field string, ts float64) error {
	if err := s.client.HSet(ctx, usageKey(projectID, keyID), field, strconv.FormatFloat(ts, 'f', -1, 64)).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return translateErr(err)
	}
	return nil
}
