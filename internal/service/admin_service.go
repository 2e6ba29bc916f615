package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keyforge/keyforge/internal/apierr"
	"github.com/keyforge/keyforge/internal/domain/apikey"
	"github.com/keyforge/keyforge/internal/domain/credential"
	"github.com/keyforge/keyforge/internal/domain/verifier"
)

// maxMintCollisionAttempts bounds how many times Mint regenerates a
// key_id after an AlreadyExists collision before surfacing an error.
const maxMintCollisionAttempts = 5

const (
	listLimitDefault = 50
	listLimitMin     = 1
	listLimitMax     = 200
)

// Admin implements the Admin Operations component: project create/read
// and key mint/revoke/list. It is bound to the manager-principal store.
type Admin struct {
	store apikey.Store
	now   func() time.Time
}

// NewAdmin builds an Admin bound to the manager-principal store.
func NewAdmin(store apikey.Store, now func() time.Time) *Admin {
	if now == nil {
		now = time.Now
	}
	return &Admin{store: store, now: now}
}

// MintInput is the Mint request.
type MintInput struct {
	ProjectID string
	Owner     string
	Metadata  string
	ExpiresAt *float64
}

// MintResult carries the formatted bearer string. It is returned exactly
// once; the secret is not retrievable afterward.
type MintResult struct {
	APIKey string
}

// Mint generates a key_id and secret, derives a verifier, and writes the
// key document with create-only semantics, regenerating the key_id up to
// maxMintCollisionAttempts times on collision.
func (a *Admin) Mint(ctx context.Context, in MintInput) (*MintResult, error) {
	nowSeconds := float64(a.now().Unix())

	for attempt := 0; attempt <= maxMintCollisionAttempts; attempt++ {
		keyID, err := credential.NewKeyID()
		if err != nil {
			return nil, apierr.Wrap(apierr.KindPermanent, "generate key id", err)
		}
		secret, err := credential.NewSecret()
		if err != nil {
			return nil, apierr.Wrap(apierr.KindPermanent, "generate secret", err)
		}
		verifierHash, err := verifier.Derive(secret)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindPermanent, "derive verifier", err)
		}

		doc := &apikey.KeyDoc{
			KeyID:     keyID,
			ProjectID: in.ProjectID,
			Owner:     in.Owner,
			Metadata:  in.Metadata,
			Verifier:  verifierHash,
			CreatedAt: nowSeconds,
			ExpiresAt: in.ExpiresAt,
		}

		err = a.store.PutKeyCreateOnly(ctx, doc)
		if errors.Is(err, apikey.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, translateStoreErr(err, "write key document")
		}

		// Document is durably written. Index insertion and usage
		// initialization failures are logged but do not fail the mint;
		// a reconciliation pass is out of scope.
		if err := a.store.AddKeyToIndex(ctx, in.ProjectID, keyID); err != nil {
			slog.Default().Warn("index insertion failed after mint",
				"project_id", in.ProjectID, "key_id", keyID, "error", err)
		}
		if err := a.store.BumpUsage(ctx, in.ProjectID, keyID, apikey.UsageValidationsOK, 0); err != nil {
			slog.Default().Warn("usage initialization failed after mint",
				"project_id", in.ProjectID, "key_id", keyID, "error", err)
		}
		if err := a.store.BumpUsage(ctx, in.ProjectID, keyID, apikey.UsageValidationsDenied, 0); err != nil {
			slog.Default().Warn("usage initialization failed after mint",
				"project_id", in.ProjectID, "key_id", keyID, "error", err)
		}

		return &MintResult{APIKey: credential.Format(in.ProjectID, keyID, secret)}, nil
	}

	return nil, apierr.New(apierr.KindPermanent, "key id collision retries exhausted")
}

// RevokeResult is the Revoke response.
type RevokeResult struct {
	Revoked bool
}

// Revoke sets disabled=true on a key document. It does not remove the
// document or the index entry, and is idempotent: revoking an
// already-disabled key still returns Revoked: true.
func (a *Admin) Revoke(ctx context.Context, projectID, keyID string) (*RevokeResult, error) {
	err := a.store.SetKeyDisabled(ctx, projectID, keyID, true)
	if errors.Is(err, apikey.ErrNotFound) {
		return nil, apierr.New(apierr.KindNotFound, "key not found")
	}
	if err != nil {
		return nil, translateStoreErr(err, "revoke key")
	}
	return &RevokeResult{Revoked: true}, nil
}

// KeyListItem is one entry in a List response. The verifier is omitted.
type KeyListItem struct {
	KeyID     string
	Owner     string
	Metadata  string
	CreatedAt float64
	Disabled  bool
	ExpiresAt *float64
}

// ListResult is the List response.
type ListResult struct {
	Items []KeyListItem
	Next  *int
}

// List returns a page of a project's keys ordered by key_id ascending.
// limit is clamped to [1, 200], defaulting to 50; offset is clamped to
// be non-negative.
func (a *Admin) List(ctx context.Context, projectID string, offset, limit int) (*ListResult, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = listLimitDefault
	}
	if limit > listLimitMax {
		limit = listLimitMax
	}
	if limit < listLimitMin {
		limit = listLimitMin
	}

	ids, next, err := a.store.ScanIndex(ctx, projectID, offset, limit)
	if err != nil {
		return nil, translateStoreErr(err, "scan key index")
	}

	items := make([]KeyListItem, 0, len(ids))
	for _, id := range ids {
		doc, err := a.store.GetKey(ctx, projectID, id)
		if err != nil {
			if errors.Is(err, apikey.ErrNotFound) {
				slog.Default().Warn("index references missing key document",
					"project_id", projectID, "key_id", id)
				continue
			}
			return nil, translateStoreErr(err, "read key document")
		}
		items = append(items, KeyListItem{
			KeyID:     doc.KeyID,
			Owner:     doc.Owner,
			Metadata:  doc.Metadata,
			CreatedAt: doc.CreatedAt,
			Disabled:  doc.Disabled,
			ExpiresAt: doc.ExpiresAt,
		})
	}

	return &ListResult{Items: items, Next: next}, nil
}

// CreateProject writes a project document with create-only semantics.
func (a *Admin) CreateProject(ctx context.Context, projectID, label, owner string) (*apikey.ProjectDoc, error) {
	doc := &apikey.ProjectDoc{
		ProjectID: projectID,
		Label:     label,
		Owner:     owner,
		CreatedAt: float64(a.now().Unix()),
	}
	err := a.store.PutProjectCreateOnly(ctx, doc)
	if errors.Is(err, apikey.ErrAlreadyExists) {
		return nil, apierr.New(apierr.KindAlreadyExists, "project already exists")
	}
	if err != nil {
		return nil, translateStoreErr(err, "write project document")
	}
	return doc, nil
}

// GetProject returns the stored project document.
func (a *Admin) GetProject(ctx context.Context, projectID string) (*apikey.ProjectDoc, error) {
	doc, err := a.store.GetProject(ctx, projectID)
	if errors.Is(err, apikey.ErrNotFound) {
		return nil, apierr.New(apierr.KindNotFound, "project not found")
	}
	if err != nil {
		return nil, translateStoreErr(err, "read project document")
	}
	return doc, nil
}

func translateStoreErr(err error, message string) error {
	if errors.Is(err, apikey.ErrTransient) {
		return apierr.Wrap(apierr.KindTransient, message, err)
	}
	return apierr.Wrap(apierr.KindPermanent, message, err)
}
