package blockstore

import (
	"sort"
	"strings"

	"blockflow/internal/block"
)

// Txn stages mutations for a single project. All reads see staged state;
// nothing is visible outside the transaction until commit.
type Txn struct {
	projectID string
	store     *Store
	staged    map[string]block.Block
	deleted   map[string]struct{}
}

func (s *Store) newTxn(projectID string) *Txn {
	return &Txn{
		projectID: projectID,
		store:     s,
		staged:    make(map[string]block.Block),
		deleted:   make(map[string]struct{}),
	}
}

// Get returns the staged view of a block, falling back to committed state.
func (t *Txn) Get(id string) (block.Block, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return block.Block{}, false
	}
	if _, gone := t.deleted[id]; gone {
		return block.Block{}, false
	}
	if b, ok := t.staged[id]; ok {
		return b.Clone(), true
	}
	t.store.mu.RLock()
	b, ok := t.store.byID[id]
	t.store.mu.RUnlock()
	if !ok || b.ProjectID != t.projectID {
		return block.Block{}, false
	}
	return b.Clone(), true
}

// Blocks returns every live block of the project as staged.
func (t *Txn) Blocks() []block.Block {
	seen := make(map[string]struct{}, len(t.staged))
	var out []block.Block
	for id, b := range t.staged {
		seen[id] = struct{}{}
		out = append(out, b.Clone())
	}
	t.store.mu.RLock()
	for id, b := range t.store.byID {
		if b.ProjectID != t.projectID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		if _, gone := t.deleted[id]; gone {
			continue
		}
		out = append(out, b.Clone())
	}
	t.store.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

// Children returns the staged children of parentID ordered by index.
// An empty parentID selects the top-level phases.
func (t *Txn) Children(parentID string) []block.Block {
	var out []block.Block
	for _, b := range t.Blocks() {
		if b.ParentID == parentID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// Put stages a create or replace.
func (t *Txn) Put(b block.Block) {
	b.ProjectID = t.projectID
	delete(t.deleted, b.ID)
	t.staged[b.ID] = b.Clone()
}

// Delete stages the removal of a single block. Callers detach whole
// subtrees by deleting every node in them.
func (t *Txn) Delete(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	delete(t.staged, id)
	t.deleted[id] = struct{}{}
}
