package apikey

import "context"

// Store is the typed facade over the backing data service. It owns all
// key-name construction and serialization; no other component holds a
// long-lived reference to a document. Implementations translate every
// store-layer failure into ErrNotFound, ErrAlreadyExists, ErrTransient,
// or ErrPermanent — never a transport-native error type.
//
// Two Store instances are constructed per process, bound to the
// validator and manager principals respectively (see §5 of the spec);
// the Go type system does not distinguish them, but callers must never
// hand the validator-bound instance to admin operations or vice versa.
type Store interface {
	// GetKey retrieves a key document. Returns ErrNotFound if absent.
	GetKey(ctx context.Context, projectID, keyID string) (*KeyDoc, error)

	// PutKeyCreateOnly writes a key document, failing ErrAlreadyExists if
	// one already exists at (projectID, keyID).
	PutKeyCreateOnly(ctx context.Context, doc *KeyDoc) error

	// SetKeyDisabled flips the disabled flag on a single key document.
	// Returns ErrNotFound if the document does not exist.
	SetKeyDisabled(ctx context.Context, projectID, keyID string, disabled bool) error

	// AddKeyToIndex adds keyID to the project's key index set.
	AddKeyToIndex(ctx context.Context, projectID, keyID string) error

	// RemoveKeyFromIndex removes keyID from the project's key index set.
	RemoveKeyFromIndex(ctx context.Context, projectID, keyID string) error

	// ScanIndex returns a page of key IDs from the project's index,
	// ordered lexicographically, along with the next offset (nil if the
	// page was the last). Ordering is stable across calls within a
	// read-only window.
	ScanIndex(ctx context.Context, projectID string, offset, limit int) ([]string, *int, error)

	// GetProject retrieves a project document. Returns ErrNotFound if absent.
	GetProject(ctx context.Context, projectID string) (*ProjectDoc, error)

	// PutProjectCreateOnly writes a project document, failing
	// ErrAlreadyExists if one already exists.
	PutProjectCreateOnly(ctx context.Context, doc *ProjectDoc) error

	// AppendAudit appends a record to the audit stream. Best-effort: a
	// failure here must never convert a successful validation into a
	// failure, nor change the response returned to the caller.
	AppendAudit(ctx context.Context, record AuditRecord) error

	// IncrRate atomically increments the per-key per-minute rate counter
	// and returns the post-increment value. ttlSeconds bounds how long
	// the counter survives past the minute it covers.
	IncrRate(ctx context.Context, projectID, keyID string, minute int64, ttlSeconds int) (int64, error)

	// BumpUsage atomically increments a monotonic usage counter field by delta.
	BumpUsage(ctx context.Context, projectID, keyID, field string, delta int64) error

	// SetUsageTimestamp atomically sets a usage field to a timestamp value.
	SetUsageTimestamp(ctx context.Context, projectID, keyID, field string, ts float64) error

	// Ping reports whether the store is reachable, for health checks.
	Ping(ctx context.Context) error
}

// AuditRecord is one append-only validation outcome entry.
type AuditRecord struct {
	TS        float64 `json:"ts"`
	ProjectID string  `json:"project_id"`
	KeyID     string  `json:"key_id"`
	Result    string  `json:"result"`
	Client    string  `json:"client"`
}

// Audit result values.
const (
	ResultOK          = "ok"
	ResultDenied      = "denied"
	ResultRateLimited = "rate_limited"
)

// ClientTag identifies this service in every audit record it writes.
const ClientTag = "keyforge"
