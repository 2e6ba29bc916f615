package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "state.json"), testLogger())
}

func TestPutAndGetKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := &apikey.KeyDoc{ProjectID: "p1", KeyID: "k1", Owner: "alice", Verifier: "hash"}

	if err := s.PutKeyCreateOnly(ctx, doc); err != nil {
		t.Fatalf("PutKeyCreateOnly: %v", err)
	}

	got, err := s.GetKey(ctx, "p1", "k1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if got.Owner != "alice" || got.Verifier != "hash" {
		t.Fatalf("GetKey = %+v, want owner alice verifier hash", got)
	}
}

func TestGetKeyNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetKey(context.Background(), "p1", "missing")
	if !errors.Is(err, apikey.ErrNotFound) {
		t.Fatalf("GetKey error = %v, want ErrNotFound", err)
	}
}

func TestPutKeyCreateOnlyRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := &apikey.KeyDoc{ProjectID: "p1", KeyID: "k1"}

	if err := s.PutKeyCreateOnly(ctx, doc); err != nil {
		t.Fatalf("first PutKeyCreateOnly: %v", err)
	}
	err := s.PutKeyCreateOnly(ctx, doc)
	if !errors.Is(err, apikey.ErrAlreadyExists) {
		t.Fatalf("second PutKeyCreateOnly error = %v, want ErrAlreadyExists", err)
	}
}

func TestSetKeyDisabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := &apikey.KeyDoc{ProjectID: "p1", KeyID: "k1"}
	if err := s.PutKeyCreateOnly(ctx, doc); err != nil {
		t.Fatalf("PutKeyCreateOnly: %v", err)
	}

	if err := s.SetKeyDisabled(ctx, "p1", "k1", true); err != nil {
		t.Fatalf("SetKeyDisabled: %v", err)
	}
	got, err := s.GetKey(ctx, "p1", "k1")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if !got.Disabled {
		t.Fatalf("GetKey.Disabled = false after SetKeyDisabled(true)")
	}
}

func TestSetKeyDisabledNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.SetKeyDisabled(context.Background(), "p1", "missing", true)
	if !errors.Is(err, apikey.ErrNotFound) {
		t.Fatalf("SetKeyDisabled error = %v, want ErrNotFound", err)
	}
}

func TestIndexAddRemoveScan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"k3", "k1", "k2"} {
		if err := s.AddKeyToIndex(ctx, "p1", id); err != nil {
			t.Fatalf("AddKeyToIndex(%s): %v", id, err)
		}
	}

	page, next, err := s.ScanIndex(ctx, "p1", 0, 10)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if next != nil {
		t.Fatalf("ScanIndex next = %v, want nil", *next)
	}
	want := []string{"k1", "k2", "k3"}
	if len(page) != len(want) {
		t.Fatalf("ScanIndex page = %v, want %v", page, want)
	}
	for i := range want {
		if page[i] != want[i] {
			t.Fatalf("ScanIndex page = %v, want %v", page, want)
		}
	}

	if err := s.RemoveKeyFromIndex(ctx, "p1", "k2"); err != nil {
		t.Fatalf("RemoveKeyFromIndex: %v", err)
	}
	page, _, err = s.ScanIndex(ctx, "p1", 0, 10)
	if err != nil {
		t.Fatalf("ScanIndex after remove: %v", err)
	}
	if len(page) != 2 || page[0] != "k1" || page[1] != "k3" {
		t.Fatalf("ScanIndex after remove = %v, want [k1 k3]", page)
	}
}

func TestScanIndexPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"k1", "k2", "k3", "k4", "k5"} {
		if err := s.AddKeyToIndex(ctx, "p1", id); err != nil {
			t.Fatalf("AddKeyToIndex(%s): %v", id, err)
		}
	}

	page, next, err := s.ScanIndex(ctx, "p1", 0, 2)
	if err != nil {
		t.Fatalf("ScanIndex: %v", err)
	}
	if len(page) != 2 || page[0] != "k1" || page[1] != "k2" {
		t.Fatalf("first page = %v", page)
	}
	if next == nil || *next != 2 {
		t.Fatalf("next = %v, want 2", next)
	}

	page, next, err = s.ScanIndex(ctx, "p1", *next, 2)
	if err != nil {
		t.Fatalf("ScanIndex page 2: %v", err)
	}
	if len(page) != 2 || page[0] != "k3" || page[1] != "k4" {
		t.Fatalf("second page = %v", page)
	}
	if next == nil || *next != 4 {
		t.Fatalf("next = %v, want 4", next)
	}

	page, next, err = s.ScanIndex(ctx, "p1", *next, 2)
	if err != nil {
		t.Fatalf("ScanIndex page 3: %v", err)
	}
	if len(page) != 1 || page[0] != "k5" {
		t.Fatalf("third page = %v", page)
	}
	if next != nil {
		t.Fatalf("next = %v, want nil on last page", *next)
	}
}

func TestProjectCreateOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := &apikey.ProjectDoc{ProjectID: "p1", Label: "Project One"}

	if err := s.PutProjectCreateOnly(ctx, doc); err != nil {
		t.Fatalf("PutProjectCreateOnly: %v", err)
	}
	err := s.PutProjectCreateOnly(ctx, doc)
	if !errors.Is(err, apikey.ErrAlreadyExists) {
		t.Fatalf("second PutProjectCreateOnly error = %v, want ErrAlreadyExists", err)
	}

	got, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if got.Label != "Project One" {
		t.Fatalf("GetProject.Label = %q, want %q", got.Label, "Project One")
	}
}

func TestIncrRatePerMinuteWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	minute := time.Now().Unix() / 60

	for i := int64(1); i <= 3; i++ {
		count, err := s.IncrRate(ctx, "p1", "k1", minute, 120)
		if err != nil {
			t.Fatalf("IncrRate: %v", err)
		}
		if count != i {
			t.Fatalf("IncrRate call %d = %d, want %d", i, count, i)
		}
	}

	count, err := s.IncrRate(ctx, "p1", "k1", minute+1, 120)
	if err != nil {
		t.Fatalf("IncrRate next minute: %v", err)
	}
	if count != 1 {
		t.Fatalf("IncrRate in new minute window = %d, want 1", count)
	}
}

func TestBumpUsageAndSetTimestamp(t *testing.T) {
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

	var doc docState
	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal state file: %v", err)
	}
	fields := doc.Usage[docKey("p1", "k1")]
	if fields[apikey.UsageValidationsOK] != 2 {
		t.Fatalf("validations_ok = %v, want 2", fields[apikey.UsageValidationsOK])
	}
	if fields[apikey.UsageLastSeenTS] != 1700000000 {
		t.Fatalf("last_seen_ts = %v, want 1700000000", fields[apikey.UsageLastSeenTS])
	}
}

func TestAppendAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := apikey.AuditRecord{TS: 1700000000, ProjectID: "p1", KeyID: "k1", Result: apikey.ResultOK, Client: apikey.ClientTag}
	if err := s.AppendAudit(ctx, rec); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
	if err := s.AppendAudit(ctx, rec); err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}

	var doc docState
	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal state file: %v", err)
	}
	if len(doc.Audit) != 2 {
		t.Fatalf("len(Audit) = %d, want 2", len(doc.Audit))
	}
}

func TestConcurrentIncrRateIsAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	minute := time.Now().Unix() / 60

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, err := s.IncrRate(ctx, "p1", "k1", minute, 120); err != nil {
				t.Errorf("IncrRate: %v", err)
			}
		}()
	}
	wg.Wait()

	var doc docState
	raw, readErr := os.ReadFile(s.path)
	if readErr != nil {
		t.Fatalf("read state file: %v", readErr)
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal state file: %v", err)
	}
	rk := rateCounterKey("p1", "k1", minute)
	if doc.RateCounters[rk].Count != n {
		t.Fatalf("final counter = %d, want %d", doc.RateCounters[rk].Count, n)
	}
}
