// Package audit provides best-effort append-only event emission to the
// audit stream. A failure here is logged but never converts a
// successful validation into a failure, nor changes the response
// returned to a caller.
package audit

import (
	"context"
	"log/slog"

	"github.com/keyforge/keyforge/internal/domain/apikey"
)

// Clock returns the current time as seconds since epoch. Swappable in
// tests; production code uses time.Now().
type Clock func() float64

// Writer appends validation outcomes to the backing audit stream.
type Writer struct {
	store  apikey.Store
	logger *slog.Logger
	now    Clock
}

// New builds a Writer over the given store's AppendAudit operation.
func New(store apikey.Store, logger *slog.Logger, now Clock) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger, now: now}
}

// Record appends one outcome. keyID may be empty, for malformed-bearer
// denials that never resolved to a key. Errors are logged and swallowed.
func (w *Writer) Record(ctx context.Context, projectID, keyID, result string) {
	rec := apikey.AuditRecord{
		TS:        w.now(),
		ProjectID: projectID,
		KeyID:     keyID,
		Result:    result,
		Client:    apikey.ClientTag,
	}
	if err := w.store.AppendAudit(ctx, rec); err != nil {
		w.logger.Warn("audit append failed",
			"project_id", projectID, "key_id", keyID, "result", result, "error", err)
	}
}
