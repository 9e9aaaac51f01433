package tree

import (
	"errors"
	"testing"
	"time"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/history"
)

func newTestMutator(t *testing.T) (*Mutator, *blockstore.Store) {
	t.Helper()
	store := blockstore.New("")
	return NewMutator(store, history.NewStore(time.Hour)), store
}

func mustCreate(t *testing.T, m *Mutator, projectID, parentID string, typ block.Type, name string, opts CreateOpts) block.Block {
	t.Helper()
	b, err := m.Create(projectID, parentID, typ, name, opts)
	if err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	return b
}

func TestCreateAppendsAtEnd(t *testing.T) {
	m, _ := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})

	a := mustCreate(t, m, "p1", ph.ID, block.TypeField, "A", CreateOpts{})
	b := mustCreate(t, m, "p1", ph.ID, block.TypeField, "B", CreateOpts{})

	if a.OrderIndex != 0 || b.OrderIndex != 1 {
		t.Fatalf("expected dense append order, got %d and %d", a.OrderIndex, b.OrderIndex)
	}
	if a.Status != block.StatusPending {
		t.Fatalf("new blocks start pending, got %s", a.Status)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	m, _ := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	leaf := mustCreate(t, m, "p1", ph.ID, block.TypeField, "Leaf", CreateOpts{})

	if _, err := m.Create("p1", ph.ID, block.TypeField, "   ", CreateOpts{}); !errors.Is(err, block.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := m.Create("p1", ph.ID, block.Type("widget"), "X", CreateOpts{}); !errors.Is(err, block.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
	if _, err := m.Create("p1", "missing", block.TypeField, "X", CreateOpts{}); !errors.Is(err, block.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing parent, got %v", err)
	}
	if _, err := m.Create("p1", leaf.ID, block.TypeField, "X", CreateOpts{}); !errors.Is(err, block.ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent under a field, got %v", err)
	}
}

func TestCreateDedupesDependencies(t *testing.T) {
	m, _ := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	a := mustCreate(t, m, "p1", ph.ID, block.TypeField, "A", CreateOpts{})

	b := mustCreate(t, m, "p1", ph.ID, block.TypeField, "B", CreateOpts{
		DependsOn: []string{a.ID, a.ID, " ", a.ID},
	})
	if len(b.DependsOn) != 1 || b.DependsOn[0] != a.ID {
		t.Fatalf("expected deduped deps, got %v", b.DependsOn)
	}
}

func TestUpdatePartialPatch(t *testing.T) {
	m, _ := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	a := mustCreate(t, m, "p1", ph.ID, block.TypeField, "A", CreateOpts{AIPrompt: "original"})

	name := "Renamed"
	review := true
	got, err := m.Update(a.ID, Patch{Name: &name, NeedReview: &review})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != "Renamed" || !got.NeedReview {
		t.Fatalf("patched fields not applied: %+v", got)
	}
	if got.AIPrompt != "original" {
		t.Fatalf("untouched field changed: %q", got.AIPrompt)
	}
}

func TestUpdateRejectsCycleAndKeepsGraph(t *testing.T) {
	m, store := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	a := mustCreate(t, m, "p1", ph.ID, block.TypeField, "A", CreateOpts{})
	b := mustCreate(t, m, "p1", ph.ID, block.TypeField, "B", CreateOpts{DependsOn: []string{a.ID}})

	deps := []string{b.ID}
	if _, err := m.Update(a.ID, Patch{DependsOn: &deps}); !errors.Is(err, block.ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	cur, _ := store.Get(a.ID)
	if len(cur.DependsOn) != 0 {
		t.Fatalf("rejected edit modified the graph: %v", cur.DependsOn)
	}
}

func TestRename(t *testing.T) {
	m, _ := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})

	got, err := m.Rename(ph.ID, "Better Name")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if got.Name != "Better Name" {
		t.Fatalf("rename not applied: %q", got.Name)
	}
	if _, err := m.Rename(ph.ID, "  "); !errors.Is(err, block.ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := m.Rename("missing", "X"); !errors.Is(err, block.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
