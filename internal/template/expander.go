package template

import (
	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/utils"
)

// Expander instantiates templates into a project. The whole expansion is
// one transaction: either every block of the template lands or none do.
type Expander struct {
	store *blockstore.Store
	reg   *Registry
}

func NewExpander(store *blockstore.Store, reg *Registry) *Expander {
	return &Expander{store: store, reg: reg}
}

// Apply expands the template under parentID ("" for the project root)
// and returns the created blocks in creation order. Specs are processed
// in declared order and dependency names resolve only against specs
// already materialized earlier in the same pass; a forward reference is
// an external name, bound to an existing project block if one matches,
// otherwise kept verbatim as a permanently unmet dependency.
func (e *Expander) Apply(projectID, parentID, templateID string) ([]block.Block, error) {
	tmpl, err := e.reg.Get(templateID)
	if err != nil {
		return nil, err
	}

	var created []block.Block
	err = e.store.Update(projectID, func(t *blockstore.Txn) error {
		if parentID != "" {
			parent, ok := t.Get(parentID)
			if !ok {
				return block.ErrNotFound
			}
			if !parent.Type.IsContainer() {
				return block.ErrInvalidParent
			}
		}

		// Filled as blocks materialize, so a spec can only reference
		// specs declared before it.
		nameToID := make(map[string]string)

		existing := make(map[string]string)
		for _, b := range t.Blocks() {
			if _, taken := existing[b.Name]; !taken {
				existing[b.Name] = b.ID
			}
		}

		base := len(t.Children(parentID))
		created = instantiate(t, projectID, parentID, base, tmpl.Blocks, nameToID, existing)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func instantiate(t *blockstore.Txn, projectID, parentID string, base int, specs []BlockSpec, nameToID, existing map[string]string) []block.Block {
	var out []block.Block
	for i, sp := range specs {
		b := block.Block{
			ID:             utils.BlockID(sp.Name),
			ProjectID:      projectID,
			ParentID:       parentID,
			Type:           sp.specType(),
			SpecialHandler: sp.SpecialHandler,
			Name:           sp.Name,
			OrderIndex:     base + i,
			AIPrompt:       sp.AIPrompt,
			DependsOn:      resolveDeps(sp.DependsOn, nameToID, existing),
			PreQuestions:   append([]string(nil), sp.PreQuestions...),
			Constraints:    sp.Constraints.toBlock(),
			NeedReview:     sp.NeedReview,
			Status:         block.StatusPending,
		}
		if _, dup := nameToID[sp.Name]; !dup {
			nameToID[sp.Name] = b.ID
		}
		t.Put(b)
		out = append(out, b)
		out = append(out, instantiate(t, projectID, b.ID, 0, sp.Children, nameToID, existing)...)
	}
	return out
}

func resolveDeps(names []string, nameToID, existing map[string]string) []string {
	if len(names) == 0 {
		return nil
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		switch {
		case nameToID[name] != "":
			out = append(out, nameToID[name])
		case existing[name] != "":
			out = append(out, existing[name])
		default:
			out = append(out, name)
		}
	}
	return out
}
