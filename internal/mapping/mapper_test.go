package mapping

import (
	"errors"
	"testing"

	"github.com/stalvia/pricewatch/internal/apperr"
	"github.com/stalvia/pricewatch/internal/store"
	"github.com/stalvia/pricewatch/internal/testutil"
)

func testMapper(t *testing.T) *Mapper {
	t.Helper()
	return New(testutil.TestStore(t, 0), testutil.TestTaxonomy(t))
}

func TestResolve_CreatesPending(t *testing.T) {
	m := testMapper(t)

	got, err := m.Resolve("dia", "112", "Aceites", "Despensa")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.Status != store.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.TaxonomyNodeID != "" {
		t.Errorf("new mapping should carry no node, got %q", got.TaxonomyNodeID)
	}
	if got.ExternalName != "Aceites" || got.ExternalParent != "Despensa" {
		t.Errorf("metadata not stored: %+v", got)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	m := testMapper(t)
	if _, err := m.Resolve("dia", "112", "Aceites", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Confirm("dia", "112", "aceites", ""); err != nil {
		t.Fatal(err)
	}

	// Re-resolving the same category must not downgrade the status.
	got, err := m.Resolve("dia", "112", "Aceites renamed", "")
	if err != nil {
		t.Fatalf("Resolve (repeat): %v", err)
	}
	if got.Status != store.StatusConfirmed || got.TaxonomyNodeID != "aceites" {
		t.Errorf("repeat resolve changed row: %+v", got)
	}
}

func TestResolve_RequiresKey(t *testing.T) {
	m := testMapper(t)
	if _, err := m.Resolve("", "112", "", ""); err == nil {
		t.Error("empty source should fail")
	}
	if _, err := m.Resolve("dia", "", "", ""); err == nil {
		t.Error("empty external id should fail")
	}
}

func TestApplyAutomaticMatch(t *testing.T) {
	m := testMapper(t)
	_, _ = m.Resolve("dia", "112", "Aceites", "")

	got, err := m.ApplyAutomaticMatch("dia", "112", "aceites", 85)
	if err != nil {
		t.Fatalf("ApplyAutomaticMatch: %v", err)
	}
	if got.Status != store.StatusAutomatic || got.TaxonomyNodeID != "aceites" {
		t.Errorf("row = %+v, want automatic/aceites", got)
	}
	if got.Confidence == nil || *got.Confidence != 85 {
		t.Errorf("confidence = %v, want 85", got.Confidence)
	}
}

func TestApplyAutomaticMatch_ConflictAfterReview(t *testing.T) {
	m := testMapper(t)
	_, _ = m.Resolve("dia", "112", "Aceites", "")
	if _, err := m.Confirm("dia", "112", "aceites", ""); err != nil {
		t.Fatal(err)
	}

	_, err := m.ApplyAutomaticMatch("dia", "112", "conservas", 99)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	// The human decision must be intact.
	got, _ := m.Get("dia", "112")
	if got.Status != store.StatusConfirmed || got.TaxonomyNodeID != "aceites" {
		t.Errorf("review clobbered: %+v", got)
	}
}

func TestApplyAutomaticMatch_ConflictOnRepeat(t *testing.T) {
	m := testMapper(t)
	_, _ = m.Resolve("dia", "112", "Aceites", "")
	if _, err := m.ApplyAutomaticMatch("dia", "112", "aceites", 70); err != nil {
		t.Fatal(err)
	}

	if _, err := m.ApplyAutomaticMatch("dia", "112", "conservas", 90); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestApplyAutomaticMatch_Validation(t *testing.T) {
	m := testMapper(t)
	_, _ = m.Resolve("dia", "112", "Aceites", "")

	if _, err := m.ApplyAutomaticMatch("dia", "112", "no-such-node", 50); !errors.Is(err, apperr.ErrInvalidTaxonomyRef) {
		t.Errorf("unknown node: err = %v, want ErrInvalidTaxonomyRef", err)
	}
	if _, err := m.ApplyAutomaticMatch("dia", "112", "aceites", 101); err == nil {
		t.Error("confidence above 100 should fail")
	}
	if _, err := m.ApplyAutomaticMatch("dia", "112", "aceites", -1); err == nil {
		t.Error("negative confidence should fail")
	}
	if _, err := m.ApplyAutomaticMatch("dia", "nope", "aceites", 50); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing row: err = %v, want ErrNotFound", err)
	}
}

func TestConfirm_OverridesAutomatic(t *testing.T) {
	m := testMapper(t)
	_, _ = m.Resolve("dia", "112", "Aceites", "")
	_, _ = m.ApplyAutomaticMatch("dia", "112", "aceites", 70)

	got, err := m.Confirm("dia", "112", "conservas", "matcher was wrong")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Status != store.StatusConfirmed || got.TaxonomyNodeID != "conservas" {
		t.Errorf("row = %+v, want confirmed/conservas", got)
	}
	if got.LastReviewed == nil {
		t.Error("last_reviewed should be set")
	}
}

func TestConfirm_UnknownNode(t *testing.T) {
	m := testMapper(t)
	_, _ = m.Resolve("dia", "112", "Aceites", "")

	if _, err := m.Confirm("dia", "112", "no-such-node", ""); !errors.Is(err, apperr.ErrInvalidTaxonomyRef) {
		t.Fatalf("err = %v, want ErrInvalidTaxonomyRef", err)
	}
}

func TestReject_ClearsNode(t *testing.T) {
	m := testMapper(t)
	_, _ = m.Resolve("dia", "112", "Aceites", "")
	_, _ = m.ApplyAutomaticMatch("dia", "112", "aceites", 70)

	got, err := m.Reject("dia", "112", "no counterpart")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if got.Status != store.StatusRejected || got.TaxonomyNodeID != "" {
		t.Errorf("row = %+v, want rejected with no node", got)
	}
}

func TestReview_MissingMapping(t *testing.T) {
	m := testMapper(t)
	if _, err := m.Confirm("dia", "nope", "aceites", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("confirm: err = %v, want ErrNotFound", err)
	}
	if _, err := m.Reject("dia", "nope", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("reject: err = %v, want ErrNotFound", err)
	}
}

func TestListByStatus_UnknownStatus(t *testing.T) {
	m := testMapper(t)
	if _, err := m.ListByStatus("dia", "archived"); err == nil {
		t.Fatal("unknown status should fail")
	}
}
