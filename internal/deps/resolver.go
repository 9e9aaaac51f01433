// Package deps computes dependency readiness over the current block store
// snapshot. All functions are read-only; they never mutate graph state.
package deps

import (
	"strings"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
)

type Resolver struct {
	store *blockstore.Store
}

func NewResolver(store *blockstore.Store) *Resolver {
	return &Resolver{store: store}
}

// IsReady reports whether every depends_on target exists and has
// committed non-empty content. Dangling references count as unmet.
func (r *Resolver) IsReady(b block.Block) bool {
	return len(r.UnmetDependencies(b)) == 0
}

// UnmetDependencies returns the subset of depends_on failing the
// readiness check, with names for diagnostic display where the target
// still exists.
func (r *Resolver) UnmetDependencies(b block.Block) []block.Ref {
	var unmet []block.Ref
	for _, dep := range b.DependsOn {
		target, ok := r.store.Get(dep)
		if !ok {
			unmet = append(unmet, block.Ref{ID: dep})
			continue
		}
		if !target.HasContent() {
			unmet = append(unmet, block.Ref{ID: dep, Name: target.Name})
		}
	}
	return unmet
}

// MissingAnswers returns the pre-questions that have no answer yet.
// Generation requires an answer for every configured question.
func MissingAnswers(b block.Block) []string {
	var missing []string
	for _, q := range b.PreQuestions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if strings.TrimSpace(b.PreAnswers[q]) == "" {
			missing = append(missing, q)
		}
	}
	return missing
}

// ReadyErr returns nil when generation may start, otherwise a
// NotReadyError naming every gap.
func (r *Resolver) ReadyErr(b block.Block) error {
	unmet := r.UnmetDependencies(b)
	missing := MissingAnswers(b)
	if len(unmet) == 0 && len(missing) == 0 {
		return nil
	}
	return &block.NotReadyError{Unmet: unmet, MissingAnswers: missing}
}

// DetectCycle scans a project's depends_on graph and returns the ids of
// one cycle, or nil. The parent/child forest is not considered; the two
// edge sets are independent.
func (r *Resolver) DetectCycle(projectID string) []string {
	blocks := r.store.ProjectBlocks(projectID)
	byID := make(map[string][]string, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b.DependsOn
	}
	return findCycle(byID)
}

func findCycle(adj map[string][]string) []string {
	const (
		white = 0
		gray  = 1
		done  = 2
	)
	color := make(map[string]int, len(adj))
	parent := make(map[string]string, len(adj))

	for root := range adj {
		if color[root] != white {
			continue
		}
		stack := []string{root}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			if color[id] == white {
				color[id] = gray
				for _, dep := range adj[id] {
					if _, ok := adj[dep]; !ok {
						continue
					}
					switch color[dep] {
					case white:
						parent[dep] = id
						stack = append(stack, dep)
					case gray:
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
	}
	return nil
}
