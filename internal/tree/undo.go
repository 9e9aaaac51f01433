package tree

import (
	"blockflow/internal/block"
	"blockflow/internal/blockstore"
)

// UndoResult reports where the subtree landed. Degraded is true when the
// original slot was gone and the subtree was reattached elsewhere, so
// callers can explain the placement instead of silently surprising the
// user.
type UndoResult struct {
	Root     block.Block `json:"root"`
	Degraded bool        `json:"degraded,omitempty"`
}

// Undo restores a previously deleted subtree. The snapshot is consumed
// exactly once; a second call fails with AlreadyConsumed and an aged-out
// entry with Expired. When the original parent slot no longer exists the
// subtree degrades to the end of the parent's children, or to a new
// top-level phase when the parent itself is gone.
func (m *Mutator) Undo(historyID string) (UndoResult, error) {
	snap, err := m.history.Consume(historyID)
	if err != nil {
		return UndoResult{}, err
	}
	if len(snap.Blocks) == 0 {
		return UndoResult{}, block.Invalid("history_id", "snapshot is empty")
	}

	var res UndoResult
	err = m.store.Update(snap.ProjectID, func(t *blockstore.Txn) error {
		for _, b := range snap.Blocks {
			if _, exists := t.Get(b.ID); exists {
				return block.Invalid("history_id", "a block from the snapshot was recreated; cannot restore")
			}
		}

		root := snap.Blocks[0].Clone()
		parentID := snap.ParentID
		orderIndex := snap.OrderIndex

		if parentID != "" {
			parent, ok := t.Get(parentID)
			switch {
			case !ok:
				// Original parent vanished: resurface as a top-level phase.
				parentID = ""
				root.Type = block.TypePhase
				orderIndex = len(t.Children(""))
				res.Degraded = true
			case !parent.Type.IsContainer():
				return block.ErrInvalidParent
			default:
				if siblings := t.Children(parentID); orderIndex > len(siblings) {
					orderIndex = len(siblings)
					res.Degraded = true
				}
			}
		} else if siblings := t.Children(""); orderIndex > len(siblings) {
			orderIndex = len(siblings)
			res.Degraded = true
		}

		// Shift siblings at or after the restore position.
		for _, sib := range t.Children(parentID) {
			if sib.OrderIndex >= orderIndex {
				sib.OrderIndex++
				t.Put(sib)
			}
		}

		root.ParentID = parentID
		root.OrderIndex = orderIndex
		t.Put(root)
		for _, b := range snap.Blocks[1:] {
			t.Put(b.Clone())
		}
		res.Root = root
		return nil
	})
	if err != nil {
		m.history.Unconsume(historyID)
		return UndoResult{}, err
	}
	return res, nil
}
