package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/keyforge/keyforge/internal/apierr"
	"github.com/keyforge/keyforge/internal/domain/credential"
)

func TestMintFormatsRoundTrippableBearer(t *testing.T) {
	fixedNow := time.Unix(1_700_000_000, 0)
	_, _, a := newFixture(t, 100, func() time.Time { return fixedNow })
	ctx := context.Background()

	res, err := a.Mint(ctx, MintInput{ProjectID: "merlin", Owner: "Mario", Metadata: "research-west"})
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	cred, err := credential.Parse(res.APIKey)
	if err != nil {
		t.Fatalf("Parse(minted bearer): %v", err)
	}
	if cred.ProjectID != "merlin" {
		t.Fatalf("cred.ProjectID = %q, want merlin", cred.ProjectID)
	}
}

func TestRevokeNonexistentKeyNotFound(t *testing.T) {
	_, _, a := newFixture(t, 100, func() time.Time { return time.Unix(1_700_000_000, 0) })
	_, err := a.Revoke(context.Background(), "merlin", "k_doesnotexist")
	kind, ok := apierr.As(err)
	if !ok || kind != apierr.KindNotFound {
		t.Fatalf("Revoke(nonexistent) kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestListPaginatesInKeyIDOrder(t *testing.T) {
	fixedNow := time.Unix(1_700_000_000, 0)
	_, _, a := newFixture(t, 100, func() time.Time { return fixedNow })
	ctx := context.Background()

	for i := 0; i < 75; i++ {
		_, err := a.Mint(ctx, MintInput{ProjectID: "p", Owner: fmt.Sprintf("owner-%d", i)})
		if err != nil {
			t.Fatalf("Mint %d: %v", i, err)
		}
	}

	first, err := a.List(ctx, "p", 0, 50)
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	if len(first.Items) != 50 {
		t.Fatalf("len(first.Items) = %d, want 50", len(first.Items))
	}
	if first.Next == nil || *first.Next != 50 {
		t.Fatalf("first.Next = %v, want 50", first.Next)
	}
	for i := 1; i < len(first.Items); i++ {
		if first.Items[i-1].KeyID >= first.Items[i].KeyID {
			t.Fatalf("items not ascending at index %d: %q >= %q", i, first.Items[i-1].KeyID, first.Items[i].KeyID)
		}
	}
	for _, item := range first.Items {
		if item.Owner == "" {
			t.Fatalf("item missing owner: %+v", item)
		}
	}

	second, err := a.List(ctx, "p", *first.Next, 50)
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(second.Items) != 25 {
		t.Fatalf("len(second.Items) = %d, want 25", len(second.Items))
	}
	if second.Next != nil {
		t.Fatalf("second.Next = %v, want nil", *second.Next)
	}
}

func TestListClampsLimit(t *testing.T) {
	_, _, a := newFixture(t, 100, func() time.Time { return time.Unix(1_700_000_000, 0) })
	ctx := context.Background()

	if _, err := a.Mint(ctx, MintInput{ProjectID: "p", Owner: "o"}); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	res, err := a.List(ctx, "p", 0, 10000)
	if err != nil {
		t.Fatalf("List with oversized limit: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("len(res.Items) = %d, want 1", len(res.Items))
	}

	res, err = a.List(ctx, "p", -5, 0)
	if err != nil {
		t.Fatalf("List with negative offset and zero limit: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("len(res.Items) with clamped defaults = %d, want 1", len(res.Items))
	}
}

func TestCreateProjectConflict(t *testing.T) {
	_, _, a := newFixture(t, 100, func() time.Time { return time.Unix(1_700_000_000, 0) })
	ctx := context.Background()

	if _, err := a.CreateProject(ctx, "p1", "Project One", "alice"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	_, err := a.CreateProject(ctx, "p1", "Project One Again", "alice")
	kind, ok := apierr.As(err)
	if !ok || kind != apierr.KindAlreadyExists {
		t.Fatalf("CreateProject(duplicate) kind = %v, ok=%v, want AlreadyExists", kind, ok)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	_, _, a := newFixture(t, 100, func() time.Time { return time.Unix(1_700_000_000, 0) })
	_, err := a.GetProject(context.Background(), "missing")
	kind, ok := apierr.As(err)
	if !ok || kind != apierr.KindNotFound {
		t.Fatalf("GetProject(missing) kind = %v, ok=%v, want NotFound", kind, ok)
	}
}

func TestGetProjectRoundTrip(t *testing.T) {
	_, _, a := newFixture(t, 100, func() time.Time { return time.Unix(1_700_000_000, 0) })
	ctx := context.Background()
	if _, err := a.CreateProject(ctx, "p1", "Project One", "alice"); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	doc, err := a.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if doc.Label != "Project One" || doc.Owner != "alice" {
		t.Fatalf("GetProject = %+v", doc)
	}
}
