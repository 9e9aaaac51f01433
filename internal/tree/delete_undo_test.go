package tree

import (
	"errors"
	"testing"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
)

func TestDeleteRemovesSubtreeAndRepacks(t *testing.T) {
	m, store := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	grp := mustCreate(t, m, "p1", ph.ID, block.TypeGroup, "Group", CreateOpts{})
	inner := mustCreate(t, m, "p1", grp.ID, block.TypeField, "Inner", CreateOpts{})
	tail := mustCreate(t, m, "p1", ph.ID, block.TypeField, "Tail", CreateOpts{})

	historyID, err := m.Delete(grp.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if historyID == "" {
		t.Fatalf("expected a history id")
	}
	if _, ok := store.Get(grp.ID); ok {
		t.Fatalf("deleted root still live")
	}
	if _, ok := store.Get(inner.ID); ok {
		t.Fatalf("descendant survived subtree delete")
	}
	moved, _ := store.Get(tail.ID)
	if moved.OrderIndex != 0 {
		t.Fatalf("remaining sibling not repacked: %d", moved.OrderIndex)
	}
}

func TestDeleteMissingBlock(t *testing.T) {
	m, _ := newTestMutator(t)
	if _, err := m.Delete("missing"); !errors.Is(err, block.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUndoRestoresExactState(t *testing.T) {
	m, store := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	grp := mustCreate(t, m, "p1", ph.ID, block.TypeGroup, "Group", CreateOpts{})
	inner := mustCreate(t, m, "p1", grp.ID, block.TypeField, "Inner", CreateOpts{AIPrompt: "draft it"})
	mustCreate(t, m, "p1", ph.ID, block.TypeField, "Tail", CreateOpts{})

	historyID, err := m.Delete(grp.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	res, err := m.Undo(historyID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if res.Degraded {
		t.Fatalf("slot intact, undo must not degrade")
	}
	if res.Root.ID != grp.ID || res.Root.ParentID != ph.ID || res.Root.OrderIndex != 0 {
		t.Fatalf("root restored to wrong slot: %+v", res.Root)
	}
	got, ok := store.Get(inner.ID)
	if !ok {
		t.Fatalf("descendant not restored")
	}
	if got.AIPrompt != "draft it" || got.ParentID != grp.ID {
		t.Fatalf("descendant fields lost: %+v", got)
	}
}

func TestUndoConsumesSnapshotOnce(t *testing.T) {
	m, _ := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	f := mustCreate(t, m, "p1", ph.ID, block.TypeField, "F", CreateOpts{})

	historyID, err := m.Delete(f.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Undo(historyID); err != nil {
		t.Fatalf("first undo: %v", err)
	}
	if _, err := m.Undo(historyID); !errors.Is(err, block.ErrAlreadyConsumed) {
		t.Fatalf("expected ErrAlreadyConsumed, got %v", err)
	}
}

func TestUndoCollisionKeepsSnapshot(t *testing.T) {
	m, store := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	f := mustCreate(t, m, "p1", ph.ID, block.TypeField, "F", CreateOpts{})

	historyID, err := m.Delete(f.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Recreate a block under the same id so the restore collides.
	err = store.Update("p1", func(tx *blockstore.Txn) error {
		tx.Put(block.Block{
			ID: f.ID, ParentID: ph.ID, Type: block.TypeField,
			Name: "Recreated", Status: block.StatusPending,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}

	if _, err := m.Undo(historyID); err == nil {
		t.Fatalf("expected collision to fail the restore")
	}

	// The failed restore must not consume the snapshot: clearing the
	// collision lets the same history id succeed.
	err = store.Update("p1", func(tx *blockstore.Txn) error {
		tx.Delete(f.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("clear collision: %v", err)
	}
	if _, err := m.Undo(historyID); err != nil {
		t.Fatalf("undo after clearing collision: %v", err)
	}
}

func TestUndoDegradedParentGone(t *testing.T) {
	m, store := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	grp := mustCreate(t, m, "p1", ph.ID, block.TypeGroup, "Group", CreateOpts{})

	grpHistory, err := m.Delete(grp.ID)
	if err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, err := m.Delete(ph.ID); err != nil {
		t.Fatalf("delete phase: %v", err)
	}

	res, err := m.Undo(grpHistory)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !res.Degraded {
		t.Fatalf("expected degraded placement")
	}
	if res.Root.ParentID != "" || res.Root.Type != block.TypePhase {
		t.Fatalf("expected resurface as top-level phase: %+v", res.Root)
	}
	if _, ok := store.Get(grp.ID); !ok {
		t.Fatalf("degraded undo lost the block")
	}
}

func TestUndoDegradedIndexClamped(t *testing.T) {
	m, _ := newTestMutator(t)
	ph := mustCreate(t, m, "p1", "", block.TypePhase, "Phase", CreateOpts{})
	a := mustCreate(t, m, "p1", ph.ID, block.TypeField, "A", CreateOpts{})
	b := mustCreate(t, m, "p1", ph.ID, block.TypeField, "B", CreateOpts{})

	historyID, err := m.Delete(b.ID)
	if err != nil {
		t.Fatalf("delete B: %v", err)
	}
	// Remove the other sibling too; the snapshot's index 1 now exceeds the
	// sibling list.
	if _, err := m.Delete(a.ID); err != nil {
		t.Fatalf("delete A: %v", err)
	}

	res, err := m.Undo(historyID)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if !res.Degraded {
		t.Fatalf("expected degraded placement after index clamp")
	}
	if res.Root.OrderIndex != 0 {
		t.Fatalf("expected clamp to index 0, got %d", res.Root.OrderIndex)
	}
}
