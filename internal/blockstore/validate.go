package blockstore

import (
	"fmt"
	"strings"

	"blockflow/internal/block"
)

// validate checks every structural invariant over the staged project state. A
// failed check aborts the transaction with nothing applied.
func (t *Txn) validate() error {
	blocks := t.Blocks()
	byID := make(map[string]block.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}

	for _, b := range blocks {
		if strings.TrimSpace(b.ID) == "" {
			return block.Invalid("id", "must not be empty")
		}
		if strings.TrimSpace(b.Name) == "" {
			return block.ErrEmptyName
		}
		if _, ok := block.ParseType(string(b.Type)); !ok {
			return block.ErrInvalidType
		}
		if _, ok := block.ParseStatus(string(b.Status)); !ok {
			return block.Invalid("status", fmt.Sprintf("unknown status %q", b.Status))
		}
		if b.ParentID != "" {
			parent, ok := byID[b.ParentID]
			if !ok {
				return block.Invalid("parent_id", fmt.Sprintf("unknown parent %q", b.ParentID))
			}
			if !parent.Type.IsContainer() {
				return block.ErrInvalidParent
			}
		} else if b.Type != block.TypePhase {
			return block.Invalid("block_type", "top-level blocks must be phases")
		}
		// Handler schemas gate accepted content only; while streaming, a
		// structured payload is allowed to be a malformed prefix.
		if b.Status == block.StatusCompleted {
			if err := block.ValidateContent(b.SpecialHandler, b.Content); err != nil {
				return err
			}
		}
	}

	if err := checkForest(byID); err != nil {
		return err
	}
	if err := checkSiblingOrder(blocks); err != nil {
		return err
	}
	if err := checkDependencies(byID); err != nil {
		return err
	}
	return nil
}

// checkForest walks parent chains and rejects any parent/child cycle.
func checkForest(byID map[string]block.Block) error {
	for id := range byID {
		seen := map[string]struct{}{id: {}}
		cur := byID[id]
		for cur.ParentID != "" {
			if _, revisit := seen[cur.ParentID]; revisit {
				return block.Invalid("parent_id", "parent chain forms a cycle")
			}
			seen[cur.ParentID] = struct{}{}
			next, ok := byID[cur.ParentID]
			if !ok {
				break
			}
			cur = next
		}
	}
	return nil
}

// checkSiblingOrder enforces dense zero-based order indexes per sibling
// group.
func checkSiblingOrder(blocks []block.Block) error {
	groups := make(map[string][]int)
	for _, b := range blocks {
		groups[b.ParentID] = append(groups[b.ParentID], b.OrderIndex)
	}
	for parent, idxs := range groups {
		seen := make(map[int]struct{}, len(idxs))
		for _, i := range idxs {
			if i < 0 || i >= len(idxs) {
				return block.Invalid("order_index", fmt.Sprintf("index %d out of range under %q", i, parent))
			}
			if _, dup := seen[i]; dup {
				return block.Invalid("order_index", fmt.Sprintf("duplicate index %d under %q", i, parent))
			}
			seen[i] = struct{}{}
		}
	}
	return nil
}

// checkDependencies rejects depends_on cycles and edges onto the block
// itself or a node inside its own subtree. Dangling targets are legal and
// simply never become ready.
func checkDependencies(byID map[string]block.Block) error {
	for id, b := range byID {
		for _, dep := range b.DependsOn {
			if dep == id {
				return block.Invalid("depends_on", "block cannot depend on itself")
			}
			target, ok := byID[dep]
			if !ok {
				continue
			}
			// Walk the target's parent chain; hitting this block means the
			// dependency points into its own subtree.
			cur := target
			for cur.ParentID != "" {
				if cur.ParentID == id {
					return block.Invalid("depends_on", "block cannot depend on its own descendant")
				}
				next, found := byID[cur.ParentID]
				if !found {
					break
				}
				cur = next
			}
		}
	}
	if cycle := findDependencyCycle(byID); cycle != nil {
		return &block.CycleError{Cycle: cycle}
	}
	return nil
}

// findDependencyCycle runs an iterative three-color DFS over the
// depends_on edge set and returns one cycle if present.
func findDependencyCycle(byID map[string]block.Block) []string {
	const (
		white = 0
		gray  = 1
		done  = 2
	)
	color := make(map[string]int, len(byID))
	parent := make(map[string]string, len(byID))

	var cycleAt func(root string) []string
	cycleAt = func(root string) []string {
		stack := []string{root}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			if color[id] == white {
				color[id] = gray
				for _, dep := range byID[id].DependsOn {
					if _, ok := byID[dep]; !ok {
						continue // dangling
					}
					switch color[dep] {
					case white:
						parent[dep] = id
						stack = append(stack, dep)
					case gray:
						// Unwind the parent chain back to dep.
						cycle := []string{dep}
						for cur := id; cur != dep; cur = parent[cur] {
							cycle = append(cycle, cur)
						}
						return cycle
					}
				}
				continue
			}
			color[id] = done
			stack = stack[:len(stack)-1]
		}
		return nil
	}

	for id := range byID {
		if color[id] == white {
			if cycle := cycleAt(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
