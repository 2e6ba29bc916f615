// Package memstore is an in-memory apikey.Store for unit tests and
// single-process development, with no persistence across restarts.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

const (
	shardCount          = 32
	defaultSweepInterval = 30 * time.Second
)

// Store is a mutex-guarded in-memory apikey.Store. The rate counter map
// is split across shardCount shards, hashed by xxhash, so that a burst
// of validations against distinct keys does not serialize on one lock —
// the same reason the teacher's cache layer shards by xxhash of the
// cache key.
type Store struct {
	mu       sync.RWMutex
	keys     map[string]apikey.KeyDoc
	projects map[string]apikey.ProjectDoc
	index    map[string][]string
	usage    map[string]map[string]float64
	audit    []apikey.AuditRecord

	shards []*counterShard

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type counterShard struct {
	mu       sync.Mutex
	counters map[string]counterEntry
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

var _ apikey.Store = (*Store)(nil)

// New builds a Store with a background sweep goroutine that evicts
// expired rate counters every 30 seconds. Call Stop when done with it,
// typically via t.Cleanup in tests, so the goroutine does not leak.
func New() *Store {
	return NewWithSweepInterval(defaultSweepInterval)
}

// NewWithSweepInterval is like New but with a configurable sweep period,
// for tests that want to observe eviction without waiting 30 seconds.
func NewWithSweepInterval(interval time.Duration) *Store {
	s := &Store{
		keys:     map[string]apikey.KeyDoc{},
		projects: map[string]apikey.ProjectDoc{},
		index:    map[string][]string{},
		usage:    map[string]map[string]float64{},
		shards:   make([]*counterShard, shardCount),
		stopCh:   make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &counterShard{counters: map[string]counterEntry{}}
	}
	s.wg.Add(1)
	go s.sweepLoop(interval)
	return s
}

// Stop terminates the background sweep goroutine. Safe to call more than
// once and safe to call on a Store that was never started concurrently
// with anything else.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.sweepExpired(now)
		}
	}
}

func (s *Store) sweepExpired(now time.Time) {
	for _, shard := range s.shards {
		shard.mu.Lock()
		for k, entry := range shard.counters {
			if now.After(entry.expiresAt) {
				delete(shard.counters, k)
			}
		}
		shard.mu.Unlock()
	}
}

func (s *Store) shardFor(key string) *counterShard {
	h := xxhash.Sum64String(key)
	return s.shards[h%uint64(len(s.shards))]
}

func docKey(projectID, keyID string) string {
	return projectID + "/" + keyID
}

func counterKey(projectID, keyID string, minute int64) string {
	return fmt.Sprintf("%s/%d", docKey(projectID, keyID), minute)
}

func (s *Store) GetKey(ctx context.Context, projectID, keyID string) (*apikey.KeyDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.keys[docKey(projectID, keyID)]
	if !ok {
		return nil, apikey.ErrNotFound
	}
	out := doc
	return &out, nil
}

func (s *Store) PutKeyCreateOnly(ctx context.Context, doc *apikey.KeyDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dk := docKey(doc.ProjectID, doc.KeyID)
	if _, exists := s.keys[dk]; exists {
		return apikey.ErrAlreadyExists
	}
	s.keys[dk] = *doc
	return nil
}

func (s *Store) SetKeyDisabled(ctx context.Context, projectID, keyID string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dk := docKey(projectID, keyID)
	doc, ok := s.keys[dk]
	if !ok {
		return apikey.ErrNotFound
	}
	doc.Disabled = disabled
	s.keys[dk] = doc
	return nil
}

func (s *Store) AddKeyToIndex(ctx context.Context, projectID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.index[projectID] {
		if id == keyID {
			return nil
		}
	}
	ids := append(s.index[projectID], keyID)
	sort.Strings(ids)
	s.index[projectID] = ids
	return nil
}

func (s *Store) RemoveKeyFromIndex(ctx context.Context, projectID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.index[projectID]
	out := ids[:0:0]
	for _, id := range ids {
		if id != keyID {
			out = append(out, id)
		}
	}
	s.index[projectID] = out
	return nil
}

func (s *Store) ScanIndex(ctx context.Context, projectID string, offset, limit int) ([]string, *int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.index[projectID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return []string{}, nil, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := append([]string{}, ids[offset:end]...)
	var next *int
	if end < len(ids) {
		n := end
		next = &n
	}
	return page, next, nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*apikey.ProjectDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.projects[projectID]
	if !ok {
		return nil, apikey.ErrNotFound
	}
	out := doc
	return &out, nil
}

func (s *Store) PutProjectCreateOnly(ctx context.Context, doc *apikey.ProjectDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.projects[doc.ProjectID]; exists {
		return apikey.ErrAlreadyExists
	}
	s.projects[doc.ProjectID] = *doc
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, record apikey.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, record)
	return nil
}

// Audit returns a copy of the recorded audit trail, for test assertions.
func (s *Store) Audit() []apikey.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]apikey.AuditRecord{}, s.audit...)
}

func (s *Store) IncrRate(ctx context.Context, projectID, keyID string, minute int64, ttlSeconds int) (int64, error) {
	shard := s.shardFor(counterKey(projectID, keyID, minute))
	shard.mu.Lock()
	defer shard.mu.Unlock()
	ck := counterKey(projectID, keyID, minute)
	entry := shard.counters[ck]
	entry.count++
	entry.expiresAt = time.Now().Add(time.Duration(ttlSeconds) * time.Second)
	shard.counters[ck] = entry
	return entry.count, nil
}

func (s *Store) BumpUsage(ctx context.Context, projectID, keyID, field string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dk := docKey(projectID, keyID)
	fields, ok := s.usage[dk]
	if !ok {
		fields = map[string]float64{}
		s.usage[dk] = fields
	}
	fields[field] += float64(delta)
	return nil
}

func (s *Store) SetUsageTimestamp(ctx context.Context, projectID, keyID, field string, ts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dk := docKey(projectID, keyID)
	fields, ok := s.usage[dk]
	if !ok {
		fields = map[string]float64{}
		s.usage[dk] = fields
	}
	fields[field] = ts
	return nil
}

// UsageField returns a single usage field for test assertions.
func (s *Store) UsageField(projectID, keyID, field string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage[docKey(projectID, keyID)][field]
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}
