package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

// Store is a file-backed apikey.Store. All operations load the document,
// apply their mutation, and save atomically under an in-process mutex plus
// a cross-process flock, so a single Store value is safe to share across
// goroutines and a single file is safe to share across processes as long
// as every writer goes through this type.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ apikey.Store = (*Store)(nil)

// New creates a Store backed by the file at path. The file and its parent
// directory are created on first write if absent.
func New(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

func (s *Store) load() (*docState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return newDocState(), nil
		}
		return nil, fmt.Errorf("%w: read state file: %v", apikey.ErrTransient, err)
	}

	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			if mode := info.Mode().Perm(); mode&0077 != 0 {
				s.logger.Warn("state file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var doc docState
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse state file: %v", apikey.ErrPermanent, err)
	}
	return &doc, nil
}

// withState loads the document, runs mutate (which may return an error to
// abort without saving), and if mutate succeeds and wrote is true, saves
// the document back atomically under a held lock.
func (s *Store) withState(mutate func(*docState) (wrote bool, err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockPath := s.path + ".lock"
	if err := os.MkdirAll(dirOf(s.path), 0700); err != nil {
		return fmt.Errorf("%w: create state directory: %v", apikey.ErrTransient, err)
	}
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("%w: open lock file: %v", apikey.ErrTransient, err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("%w: acquire file lock: %v", apikey.ErrTransient, err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	doc, err := s.load()
	if err != nil {
		return err
	}

	wrote, err := mutate(doc)
	if err != nil {
		return err
	}
	if !wrote {
		return nil
	}

	doc.UpdatedAt = time.Now().UTC()
	return s.writeAtomic(doc)
}

func (s *Store) writeAtomic(doc *docState) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal state: %v", apikey.ErrPermanent, err)
	}
	data = append(data, '\n')

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", apikey.ErrTransient, err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: write temp file: %v", apikey.ErrTransient, err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: fsync temp file: %v", apikey.ErrTransient, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %v", apikey.ErrTransient, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp to state: %v", apikey.ErrTransient, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on state file", "error", err)
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func (s *Store) GetKey(ctx context.Context, projectID, keyID string) (*apikey.KeyDoc, error) {
	var out apikey.KeyDoc
	found := false
	err := s.withState(func(doc *docState) (bool, error) {
		k, ok := doc.Keys[docKey(projectID, keyID)]
		if ok {
			out = k
			found = true
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apikey.ErrNotFound
	}
	return &out, nil
}

func (s *Store) PutKeyCreateOnly(ctx context.Context, doc *apikey.KeyDoc) error {
	return s.withState(func(state *docState) (bool, error) {
		dk := docKey(doc.ProjectID, doc.KeyID)
		if _, exists := state.Keys[dk]; exists {
			return false, apikey.ErrAlreadyExists
		}
		state.Keys[dk] = *doc
		return true, nil
	})
}

func (s *Store) SetKeyDisabled(ctx context.Context, projectID, keyID string, disabled bool) error {
	return s.withState(func(state *docState) (bool, error) {
		dk := docKey(projectID, keyID)
		k, ok := state.Keys[dk]
		if !ok {
			return false, apikey.ErrNotFound
		}
		k.Disabled = disabled
		state.Keys[dk] = k
		return true, nil
	})
}

func (s *Store) AddKeyToIndex(ctx context.Context, projectID, keyID string) error {
	return s.withState(func(state *docState) (bool, error) {
		ids := state.Index[projectID]
		for _, id := range ids {
			if id == keyID {
				return false, nil
			}
		}
		ids = append(ids, keyID)
		sort.Strings(ids)
		state.Index[projectID] = ids
		return true, nil
	})
}

func (s *Store) RemoveKeyFromIndex(ctx context.Context, projectID, keyID string) error {
	return s.withState(func(state *docState) (bool, error) {
		ids := state.Index[projectID]
		out := ids[:0:0]
		removed := false
		for _, id := range ids {
			if id == keyID {
				removed = true
				continue
			}
			out = append(out, id)
		}
		if !removed {
			return false, nil
		}
		state.Index[projectID] = out
		return true, nil
	})
}

func (s *Store) ScanIndex(ctx context.Context, projectID string, offset, limit int) ([]string, *int, error) {
	var page []string
	var next *int
	err := s.withState(func(state *docState) (bool, error) {
		ids := state.Index[projectID]
		if offset < 0 {
			offset = 0
		}
		if offset >= len(ids) {
			page = []string{}
			return false, nil
		}
		end := offset + limit
		if end > len(ids) {
			end = len(ids)
		}
		page = append([]string{}, ids[offset:end]...)
		if end < len(ids) {
			n := end
			next = &n
		}
		return false, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return page, next, nil
}

func (s *Store) GetProject(ctx context.Context, projectID string) (*apikey.ProjectDoc, error) {
	var out apikey.ProjectDoc
	found := false
	err := s.withState(func(state *docState) (bool, error) {
		p, ok := state.Projects[projectID]
		if ok {
			out = p
			found = true
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apikey.ErrNotFound
	}
	return &out, nil
}

func (s *Store) PutProjectCreateOnly(ctx context.Context, doc *apikey.ProjectDoc) error {
	return s.withState(func(state *docState) (bool, error) {
		if _, exists := state.Projects[doc.ProjectID]; exists {
			return false, apikey.ErrAlreadyExists
		}
		state.Projects[doc.ProjectID] = *doc
		return true, nil
	})
}

func (s *Store) AppendAudit(ctx context.Context, record apikey.AuditRecord) error {
	return s.withState(func(state *docState) (bool, error) {
		state.Audit = append(state.Audit, record)
		return true, nil
	})
}

func (s *Store) IncrRate(ctx context.Context, projectID, keyID string, minute int64, ttlSeconds int) (int64, error) {
	var count int64
	err := s.withState(func(state *docState) (bool, error) {
		now := time.Now().UTC()
		for k, c := range state.RateCounters {
			if now.After(c.ExpiresAt) {
				delete(state.RateCounters, k)
			}
		}
		rk := rateCounterKey(projectID, keyID, minute)
		c := state.RateCounters[rk]
		c.Minute = minute
		c.Count++
		c.ExpiresAt = now.Add(time.Duration(ttlSeconds) * time.Second)
		state.RateCounters[rk] = c
		count = c.Count
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) BumpUsage(ctx context.Context, projectID, keyID, field string, delta int64) error {
	return s.withState(func(state *docState) (bool, error) {
		dk := docKey(projectID, keyID)
		fields, ok := state.Usage[dk]
		if !ok {
			fields = map[string]float64{}
			state.Usage[dk] = fields
		}
		fields[field] += float64(delta)
		return true, nil
	})
}

func (s *Store) SetUsageTimestamp(ctx context.Context, projectID, keyID, field string, ts float64) error {
	return s.withState(func(state *docState) (bool, error) {
		dk := docKey(projectID, keyID)
		fields, ok := state.Usage[dk]
		if !ok {
			fields = map[string]float64{}
			state.Usage[dk] = fields
		}
		fields[field] = ts
		return true, nil
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.withState(func(state *docState) (bool, error) {
		return false, nil
	})
}
