// Package service implements the Validator and Admin Operations
// components: the orchestration layer between the domain ports
// (credential, verifier, apikey.Store, ratelimit) and the inbound
// adapters.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/keyforge/keyforge/internal/apierr"
	"github.com/keyforge/keyforge/internal/domain/apikey"
	"github.com/keyforge/keyforge/internal/domain/audit"
	"github.com/keyforge/keyforge/internal/domain/credential"
	"github.com/keyforge/keyforge/internal/domain/ratelimit"
	"github.com/keyforge/keyforge/internal/domain/verifier"
)

// ValidateResult is returned to a caller on successful validation. It
// never carries the verifier or any timestamp field.
type ValidateResult struct {
	ProjectID string
	KeyID     string
	Owner     string
	Metadata  string
}

// Validator orchestrates the fixed validation pipeline: parse →
// existence → disabled → expired → secret → rate. The order is not
// configurable; changing it is a protocol change.
type Validator struct {
	store   apikey.Store
	limiter *ratelimit.Limiter
	auditW  *audit.Writer
	now     func() time.Time
}

// NewValidator builds a Validator bound to the validator-principal store.
func NewValidator(store apikey.Store, limiter *ratelimit.Limiter, auditW *audit.Writer, now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{store: store, limiter: limiter, auditW: auditW, now: now}
}

// Validate runs the pipeline for a single bearer string.
func (v *Validator) Validate(ctx context.Context, bearer string) (*ValidateResult, error) {
	cred, err := credential.Parse(bearer)
	if err != nil {
		v.auditW.Record(ctx, "", "", apikey.ResultDenied)
		return nil, apierr.Wrap(apierr.KindMalformedCredential, "credential did not parse", err)
	}

	doc, err := v.store.GetKey(ctx, cred.ProjectID, cred.KeyID)
	if err != nil {
		if errors.Is(err, apikey.ErrNotFound) {
			v.auditW.Record(ctx, cred.ProjectID, cred.KeyID, apikey.ResultDenied)
			return nil, apierr.New(apierr.KindUnauthorized, "key not found")
		}
		if errors.Is(err, apikey.ErrTransient) {
			return nil, apierr.Wrap(apierr.KindTransient, "store unavailable", err)
		}
		return nil, apierr.Wrap(apierr.KindPermanent, "store read failed", err)
	}

	if doc.Disabled {
		v.auditW.Record(ctx, cred.ProjectID, cred.KeyID, apikey.ResultDenied)
		return nil, apierr.New(apierr.KindUnauthorized, "key disabled")
	}

	now := v.now()
	nowSeconds := float64(now.Unix())
	if doc.IsExpired(nowSeconds) {
		v.auditW.Record(ctx, cred.ProjectID, cred.KeyID, apikey.ResultDenied)
		return nil, apierr.New(apierr.KindUnauthorized, "key expired")
	}

	match, err := verifier.Check(cred.Secret, doc.Verifier)
	if err != nil {
		v.auditW.Record(ctx, cred.ProjectID, cred.KeyID, apikey.ResultDenied)
		return nil, apierr.Wrap(apierr.KindPermanent, "verifier unreadable", err)
	}
	if !match {
		v.auditW.Record(ctx, cred.ProjectID, cred.KeyID, apikey.ResultDenied)
		return nil, apierr.New(apierr.KindUnauthorized, "secret mismatch")
	}

	rateRes, err := v.limiter.Allow(ctx, cred.ProjectID, cred.KeyID, now)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "rate limiter unavailable", err)
	}
	if !rateRes.Allowed {
		v.auditW.Record(ctx, cred.ProjectID, cred.KeyID, apikey.ResultRateLimited)
		return nil, apierr.New(apierr.KindRateLimited, "rate limit exceeded")
	}

	v.auditW.Record(ctx, cred.ProjectID, cred.KeyID, apikey.ResultOK)
	v.bumpSuccessUsage(ctx, cred.ProjectID, cred.KeyID, nowSeconds)

	return &ValidateResult{
		ProjectID: cred.ProjectID,
		KeyID:     cred.KeyID,
		Owner:     doc.Owner,
		Metadata:  doc.Metadata,
	}, nil
}

// bumpSuccessUsage updates the monotonic usage counters. Like the audit
// write, a failure here is logged and swallowed: it never turns a
// successful validation into a failure response.
func (v *Validator) bumpSuccessUsage(ctx context.Context, projectID, keyID string, nowSeconds float64) {
	if err := v.store.BumpUsage(ctx, projectID, keyID, apikey.UsageValidationsOK, 1); err != nil {
		slog.Default().Warn("usage bump failed", "project_id", projectID, "key_id", keyID, "error", err)
	}
	if err := v.store.SetUsageTimestamp(ctx, projectID, keyID, apikey.UsageLastSeenTS, nowSeconds); err != nil {
		slog.Default().Warn("usage timestamp failed", "project_id", projectID, "key_id", keyID, "error", err)
	}
}
