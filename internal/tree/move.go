package tree

import (
	"strings"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
)

// Move re-parents and/or reorders a block. The vacated sibling list is
// re-packed, target siblings at or after the requested position shift up
// by one, and dependency edges are left untouched (tree position and
// generation order are independent). Moving a block under its own
// descendant is rejected with ErrCycleDetected.
func (m *Mutator) Move(id, newParentID string, newIndex int) (block.Block, error) {
	cur, ok := m.store.Get(id)
	if !ok {
		return block.Block{}, block.ErrNotFound
	}
	newParentID = strings.TrimSpace(newParentID)

	var moved block.Block
	err := m.store.Update(cur.ProjectID, func(t *blockstore.Txn) error {
		b, ok := t.Get(id)
		if !ok {
			return block.ErrNotFound
		}
		if newParentID != "" {
			parent, ok := t.Get(newParentID)
			if !ok {
				return block.ErrNotFound
			}
			if !parent.Type.IsContainer() {
				return block.ErrInvalidParent
			}
			// Walking up from the target parent must never reach the moved
			// block, or the forest would gain a cycle.
			for cursor := parent; ; {
				if cursor.ID == id {
					return block.ErrCycleDetected
				}
				if cursor.ParentID == "" {
					break
				}
				next, ok := t.Get(cursor.ParentID)
				if !ok {
					break
				}
				cursor = next
			}
		}

		// Vacate the old slot.
		oldSiblings := without(t.Children(b.ParentID), id)
		repack(t, oldSiblings)

		// Insert into the target list.
		target := without(t.Children(newParentID), id)
		if newIndex < 0 {
			newIndex = 0
		}
		if newIndex > len(target) {
			newIndex = len(target)
		}
		for i := range target {
			idx := target[i].OrderIndex
			if idx >= newIndex {
				target[i].OrderIndex = idx + 1
				t.Put(target[i])
			}
		}
		b.ParentID = newParentID
		b.OrderIndex = newIndex
		t.Put(b)
		moved = b
		return nil
	})
	if err != nil {
		return block.Block{}, err
	}
	return moved, nil
}

func without(siblings []block.Block, id string) []block.Block {
	out := siblings[:0]
	for _, s := range siblings {
		if s.ID != id {
			out = append(out, s)
		}
	}
	return out
}
