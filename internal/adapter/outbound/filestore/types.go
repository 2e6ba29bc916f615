// Package filestore provides a single-file, flock-protected implementation
// of the apikey.Store port, for local development and tests where running
// a Redis instance is impractical. It is not intended for production
// deployments under concurrent multi-process write load beyond what a
// single flock-serialized file can sustain.
package filestore

import (
	"fmt"
	"time"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

// docState is the entire persisted document, serialized as one JSON file.
type docState struct {
	Version string `json:"version"`

	// Projects is keyed by project_id.
	Projects map[string]apikey.ProjectDoc `json:"projects"`

	// Keys is keyed by docKey(project_id, key_id).
	Keys map[string]apikey.KeyDoc `json:"keys"`

	// Index maps project_id to its sorted set of key ids.
	Index map[string][]string `json:"index"`

	// Usage maps docKey(project_id, key_id) to its usage field values.
	Usage map[string]map[string]float64 `json:"usage"`

	// Audit is the append-only validation outcome log.
	Audit []apikey.AuditRecord `json:"audit"`

	// RateCounters is keyed by docKey(project_id, key_id) + the minute window.
	RateCounters map[string]rateCounterEntry `json:"rate_counters"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// rateCounterEntry is one fixed-window rate limit counter.
type rateCounterEntry struct {
	Minute    int64     `json:"minute"`
	Count     int64     `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newDocState() *docState {
	now := time.Now().UTC()
	return &docState{
		Version:      "1",
		Projects:     map[string]apikey.ProjectDoc{},
		Keys:         map[string]apikey.KeyDoc{},
		Index:        map[string][]string{},
		Usage:        map[string]map[string]float64{},
		Audit:        []apikey.AuditRecord{},
		RateCounters: map[string]rateCounterEntry{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func docKey(projectID, keyID string) string {
	return projectID + "/" + keyID
}

func rateCounterKey(projectID, keyID string, minute int64) string {
	return fmt.Sprintf("%s/%d", docKey(projectID, keyID), minute)
}
