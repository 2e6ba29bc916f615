package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func TestGetKeyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetKey(context.Background(), "p1", "missing")
	if !errors.Is(err, apikey.ErrNotFound) {
		t.Fatalf("GetKey error = %v, want ErrNotFound", err)
	}
}

func TestPutKeyCreateOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := &apikey.KeyDoc{ProjectID: "p1", KeyID: "k1", Owner: "alice"}

	if err := s.PutKeyCreateOnly(ctx, doc); err != nil {
		t.Fatalf("PutKeyCreateOnly: %v", err)
	}
	if err := s.PutKeyCreateOnly(ctx, doc); !errors.Is(err, apikey.ErrAlreadyExists) {
		t.Fatalf("second PutKeyCreateOnly error = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetKey(ctx, "p1", "k1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if got.Owner != "alice" {
		t.Fatalf("GetKey.Owner = %q, want alice", got.Owner)
	}
}

func TestIndexOrderingIsDeterministic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"k3", "k1", "k2"} {
		if err := s.AddKeyToIndex(ctx, "p1", id); err != nil {
			t.Fatalf("AddKeyToIndex: %v", err)
		}
	}
	page, next, err := s.ScanIndex(ctx, "p1", 0, 10)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if next != nil {
		t.Fatalf("next = %v, want nil", *next)
	}
	want := []string{"k1", "k2", "k3"}
	for i, w := range want {
		if page[i] != w {
			t.Fatalf("page = %v, want %v", page, want)
		}
	}
}

func TestIncrRateShardsIndependently(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	minute := time.Now().Unix() / 60

	var wg sync.WaitGroup
	keys := []string{"k1", "k2", "k3", "k4", "k5"}
	wg.Add(len(keys))
	for _, k := range keys {
		k := k
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if _, err := s.IncrRate(ctx, "p1", k, minute, 120); err != nil {
					t.Errorf("IncrRate: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	for _, k := range keys {
		count, err := s.IncrRate(ctx, "p1", k, minute, 120)
		if err != nil {
			t.Fatalf("IncrRate final: %v", err)
		}
		if count != 11 {
			t.Fatalf("key %s final count = %d, want 11", k, count)
		}
	}
}

func TestSweepEvictsExpiredCounters(t *testing.T) {
	s := NewWithSweepInterval(10 * time.Millisecond)
	t.Cleanup(s.Stop)
	ctx := context.Background()

	if _, err := s.IncrRate(ctx, "p1", "k1", 0, 0); err != nil {
		t.Fatalf("IncrRate: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		shard := s.shardFor(counterKey("p1", "k1", 0))
		shard.mu.Lock()
		_, exists := shard.counters[counterKey("p1", "k1", 0)]
		shard.mu.Unlock()
		if !exists {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expired counter was never swept")
}

func TestBumpUsageAndTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.BumpUsage(ctx, "p1", "k1", apikey.UsageValidationsOK, 1); err != nil {
		t.Fatalf("BumpUsage: %v", err)
	}
	if err := s.BumpUsage(ctx, "p1", "k1", apikey.UsageValidationsOK, 1); err != nil {
		t.Fatalf("BumpUsage: %v", err)
	}
	if err := s.SetUsageTimestamp(ctx, "p1", "k1", apikey.UsageLastSeenTS, 1700000000); err != nil {
		t.Fatalf("SetUsageTimestamp: %v", err)
	}

	if got := s.UsageField("p1", "k1", apikey.UsageValidationsOK); got != 2 {
		t.Fatalf("validations_ok = %v, want 2", got)
	}
	if got := s.UsageField("p1", "k1", apikey.UsageLastSeenTS); got != 1700000000 {
		t.Fatalf("last_seen_ts = %v, want 1700000000", got)
	}
}

func TestAppendAuditRecordsAreOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, result := range []string{apikey.ResultOK, apikey.ResultDenied, apikey.ResultRateLimited} {
		rec := apikey.AuditRecord{ProjectID: "p1", KeyID: "k1", Result: result, Client: apikey.ClientTag}
		if err := s.AppendAudit(ctx, rec); err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
	}
	records := s.Audit()
	if len(records) != 3 {
		t.Fatalf("len(Audit()) = %d, want 3", len(records))
	}
	if records[0].Result != apikey.ResultOK || records[2].Result != apikey.ResultRateLimited {
		t.Fatalf("audit records out of order: %+v", records)
	}
}
