// Package tree applies structural edits to the block forest: create,
// rename, move, soft-delete and undo. Every destructive edit leaves a
// snapshot behind for single-level undo.
package tree

import (
	"sort"
	"strings"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/history"
	"blockflow/internal/utils"
)

type Mutator struct {
	store   *blockstore.Store
	history *history.Store
}

func NewMutator(store *blockstore.Store, hist *history.Store) *Mutator {
	return &Mutator{store: store, history: hist}
}

// CreateOpts carries the optional fields of a new block.
type CreateOpts struct {
	AIPrompt       string
	DependsOn      []string
	Constraints    block.Constraints
	NeedReview     bool
	SpecialHandler string
	PreQuestions   []string
}

// Create appends a new block as the last sibling under parentID (or as a
// top-level phase when parentID is empty).
func (m *Mutator) Create(projectID, parentID string, typ block.Type, name string, opts CreateOpts) (block.Block, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return block.Block{}, block.ErrEmptyName
	}
	if _, ok := block.ParseType(string(typ)); !ok {
		return block.Block{}, block.ErrInvalidType
	}
	parentID = strings.TrimSpace(parentID)

	var created block.Block
	err := m.store.Update(projectID, func(t *blockstore.Txn) error {
		if parentID != "" {
			parent, ok := t.Get(parentID)
			if !ok {
				return block.ErrNotFound
			}
			if !parent.Type.IsContainer() {
				return block.ErrInvalidParent
			}
		}
		created = block.Block{
			ID:             utils.BlockID(name),
			ProjectID:      projectID,
			ParentID:       parentID,
			Type:           typ,
			SpecialHandler: strings.TrimSpace(opts.SpecialHandler),
			Name:           name,
			OrderIndex:     len(t.Children(parentID)),
			AIPrompt:       opts.AIPrompt,
			DependsOn:      dedupe(opts.DependsOn),
			PreQuestions:   append([]string(nil), opts.PreQuestions...),
			Constraints:    opts.Constraints,
			NeedReview:     opts.NeedReview,
			Status:         block.StatusPending,
		}
		t.Put(created)
		return nil
	})
	if err != nil {
		return block.Block{}, err
	}
	return created, nil
}

// Rename changes the display label.
func (m *Mutator) Rename(id, newName string) (block.Block, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return block.Block{}, block.ErrEmptyName
	}
	return m.patch(id, func(b *block.Block) error {
		b.Name = newName
		return nil
	})
}

// Patch is a partial field update; nil pointers leave fields untouched.
type Patch struct {
	Name           *string
	AIPrompt       *string
	Content        *string
	DependsOn      *[]string
	PreQuestions   *[]string
	PreAnswers     *map[string]string
	Constraints    *block.Constraints
	NeedReview     *bool
	IsCollapsed    *bool
	SpecialHandler *string
}

// Update applies a partial update. Edits to depends_on are validated for
// cycles before commit; an invalid edit leaves the graph unchanged.
func (m *Mutator) Update(id string, p Patch) (block.Block, error) {
	return m.patch(id, func(b *block.Block) error {
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return block.ErrEmptyName
			}
			b.Name = name
		}
		if p.AIPrompt != nil {
			b.AIPrompt = *p.AIPrompt
		}
		if p.Content != nil {
			b.Content = *p.Content
		}
		if p.DependsOn != nil {
			b.DependsOn = dedupe(*p.DependsOn)
		}
		if p.PreQuestions != nil {
			b.PreQuestions = append([]string(nil), (*p.PreQuestions)...)
		}
		if p.PreAnswers != nil {
			b.PreAnswers = make(map[string]string, len(*p.PreAnswers))
			for k, v := range *p.PreAnswers {
				b.PreAnswers[k] = v
			}
		}
		if p.Constraints != nil {
			b.Constraints = *p.Constraints
		}
		if p.NeedReview != nil {
			b.NeedReview = *p.NeedReview
		}
		if p.IsCollapsed != nil {
			b.IsCollapsed = *p.IsCollapsed
		}
		if p.SpecialHandler != nil {
			b.SpecialHandler = strings.TrimSpace(*p.SpecialHandler)
		}
		return nil
	})
}

func (m *Mutator) patch(id string, fn func(*block.Block) error) (block.Block, error) {
	cur, ok := m.store.Get(id)
	if !ok {
		return block.Block{}, block.ErrNotFound
	}
	var out block.Block
	err := m.store.Update(cur.ProjectID, func(t *blockstore.Txn) error {
		b, ok := t.Get(id)
		if !ok {
			return block.ErrNotFound
		}
		if err := fn(&b); err != nil {
			return err
		}
		t.Put(b)
		out = b
		return nil
	})
	if err != nil {
		return block.Block{}, err
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// repack reassigns dense zero-based order indexes to the given siblings,
// preserving their relative order.
func repack(t *blockstore.Txn, siblings []block.Block) {
	sort.Slice(siblings, func(i, j int) bool { return siblings[i].OrderIndex < siblings[j].OrderIndex })
	for i := range siblings {
		if siblings[i].OrderIndex != i {
			siblings[i].OrderIndex = i
			t.Put(siblings[i])
		}
	}
}
