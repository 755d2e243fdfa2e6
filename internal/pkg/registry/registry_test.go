package registry

import (
	"testing"
	"time"

	"github.com/imageopt/optimizer/internal/pkg/ttlstore"
)

func newTestRegistry() *Registry {
	return New(ttlstore.New(), time.Hour)
}

func TestSetControllerParamsDefaultsClientIDToID(t *testing.T) {
	r := newTestRegistry()
	params := r.SetControllerParams("opt-1", ControllerParams{NewFilePath: "optimized/foo.jpg"})

	if params.ClientID != "opt-1" {
		t.Fatalf("expected clientId to default to id, got %q", params.ClientID)
	}
	if params.CreatedAt.IsZero() || params.UpdatedAt.IsZero() {
		t.Fatalf("expected CreatedAt/UpdatedAt to be set")
	}
}

func TestSetControllerParamsMergesOnWrite(t *testing.T) {
	r := newTestRegistry()
	first := r.SetControllerParams("opt-1", ControllerParams{
		Options:     OptimizationOptions{Width: 800, Quality: 80, Format: "jpeg"},
		NewFilePath: "optimized/a.jpg",
	})

	second := r.SetControllerParams("opt-1", ControllerParams{
		Callbacks: []CallbackSink{{URL: "https://example.com/hook"}},
	})

	if second.NewFilePath != "optimized/a.jpg" {
		t.Fatalf("expected prior NewFilePath to survive merge, got %q", second.NewFilePath)
	}
	if second.Options.Width != 800 {
		t.Fatalf("expected prior Options to survive merge, got %+v", second.Options)
	}
	if len(second.Callbacks) != 1 {
		t.Fatalf("expected new Callbacks to be applied, got %v", second.Callbacks)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected CreatedAt to be preserved across merge")
	}
	if !second.UpdatedAt.After(first.UpdatedAt) && !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to be refreshed")
	}
}

func TestGetControllerParamsMissing(t *testing.T) {
	r := newTestRegistry()
	if _, ok := r.GetControllerParams("nope"); ok {
		t.Fatalf("expected missing id to report false")
	}
}

func TestIDsOfAndCountOf(t *testing.T) {
	r := newTestRegistry()
	r.SetControllerParams("opt-1", ControllerParams{})
	r.SetControllerParams("opt-2", ControllerParams{})

	if r.CountOf(KindControllerParams) != 2 {
		t.Fatalf("expected count 2, got %d", r.CountOf(KindControllerParams))
	}
	ids := r.IDsOf(KindControllerParams)
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}

func TestDeleteAndHas(t *testing.T) {
	r := newTestRegistry()
	r.SetControllerParams("opt-1", ControllerParams{})

	if !r.Has(KindControllerParams, "opt-1") {
		t.Fatalf("expected opt-1 to be present")
	}
	if !r.Delete(KindControllerParams, "opt-1") {
		t.Fatalf("expected Delete to report true")
	}
	if r.Has(KindControllerParams, "opt-1") {
		t.Fatalf("expected opt-1 to be absent after delete")
	}
}

func TestExpiredContextsWithFilesReturnsPathsAndDropsContext(t *testing.T) {
	r := newTestRegistry()
	r.SetControllerParams("opt-1", ControllerParams{
		File:      &FileRef{Path: "/tmp/opt-1.jpg"},
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	r.SetControllerParams("opt-2", ControllerParams{
		File: &FileRef{Path: "/tmp/opt-2.jpg"},
	})

	paths := r.ExpiredContextsWithFiles(time.Now())
	if len(paths) != 1 || paths[0] != "/tmp/opt-1.jpg" {
		t.Fatalf("expected only opt-1's file path, got %v", paths)
	}
	if r.Has(KindControllerParams, "opt-1") {
		t.Fatalf("expected expired context to be removed")
	}
	if !r.Has(KindControllerParams, "opt-2") {
		t.Fatalf("expected unexpired context to remain")
	}
}
