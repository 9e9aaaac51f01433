package tree

import (
	"time"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/history"
	"blockflow/internal/utils"
)

// Delete soft-deletes the subtree rooted at id: the nodes leave the live
// tree, the vacated sibling list is re-packed, and a full snapshot is
// retained under a fresh history id for undo. Dependency edges pointing at
// deleted blocks are not rewritten; they dangle until the deletion is
// undone or the referencing block is edited.
func (m *Mutator) Delete(id string) (string, error) {
	root, ok := m.store.Get(id)
	if !ok {
		return "", block.ErrNotFound
	}

	historyID := utils.HistoryID()
	var snapshot history.Snapshot
	err := m.store.Update(root.ProjectID, func(t *blockstore.Txn) error {
		b, ok := t.Get(id)
		if !ok {
			return block.ErrNotFound
		}

		subtree := collectSubtree(t, id)
		snapshot = history.Snapshot{
			ID:         historyID,
			ProjectID:  root.ProjectID,
			RootID:     id,
			ParentID:   b.ParentID,
			OrderIndex: b.OrderIndex,
			Blocks:     subtree,
			TakenAt:    time.Now(),
		}

		for _, node := range subtree {
			t.Delete(node.ID)
		}
		repack(t, t.Children(b.ParentID))
		return nil
	})
	if err != nil {
		return "", err
	}
	m.history.Put(snapshot)
	return historyID, nil
}

// collectSubtree returns the block rooted at id and all of its
// descendants, breadth first.
func collectSubtree(t *blockstore.Txn, id string) []block.Block {
	children := make(map[string][]block.Block)
	for _, b := range t.Blocks() {
		if b.ParentID != "" {
			children[b.ParentID] = append(children[b.ParentID], b)
		}
	}
	root, ok := t.Get(id)
	if !ok {
		return nil
	}
	out := []block.Block{root}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			out = append(out, child)
			queue = append(queue, child.ID)
		}
	}
	return out
}
