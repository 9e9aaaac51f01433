package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
)

func newTestExpander(t *testing.T, yamlBody string) (*Expander, *blockstore.Store) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "t.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	reg, err := NewRegistry(dir)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := blockstore.New("")
	return NewExpander(store, reg), store
}

func TestApplyCreatesSubtreeWithRemappedDeps(t *testing.T) {
	exp, _ := newTestExpander(t, validTemplateYAML)

	created, err := exp.Apply("p1", "", "discovery")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(created))
	}

	root := created[0]
	if root.Type != block.TypePhase || root.ParentID != "" {
		t.Fatalf("unexpected root: %+v", root)
	}

	var intent, research block.Block
	for _, b := range created[1:] {
		switch b.Name {
		case "Intent":
			intent = b
		case "Research":
			research = b
		}
	}
	if intent.ParentID != root.ID || research.ParentID != root.ID {
		t.Fatalf("children not attached to the template root")
	}
	if len(research.DependsOn) != 1 || research.DependsOn[0] != intent.ID {
		t.Fatalf("dependency name not remapped to the new id: %v", research.DependsOn)
	}
	if intent.ID == "Intent" {
		t.Fatalf("expansion must mint fresh ids")
	}
	if !intent.NeedReview {
		t.Fatalf("need_review flag lost in expansion")
	}
}

func TestApplyTwiceMintsDistinctIDs(t *testing.T) {
	exp, _ := newTestExpander(t, validTemplateYAML)

	first, err := exp.Apply("p1", "", "discovery")
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	second, err := exp.Apply("p1", "", "discovery")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if first[0].ID == second[0].ID {
		t.Fatalf("re-applying a template must not reuse ids")
	}
	if second[0].OrderIndex != 1 {
		t.Fatalf("second root should append after the first, got index %d", second[0].OrderIndex)
	}
}

func TestApplyResolvesExistingProjectBlocksByName(t *testing.T) {
	const body = `
id: followup
name: Follow Up
blocks:
  - name: Follow Up
    type: phase
    children:
      - name: Summary
        depends_on:
          - Earlier Work
          - Unknown Thing
`
	exp, store := newTestExpander(t, body)
	err := store.Update("p1", func(tx *blockstore.Txn) error {
		tx.Put(block.Block{
			ID: "earlier-1", Type: block.TypePhase, Name: "Earlier Phase",
			Status: block.StatusPending,
		})
		tx.Put(block.Block{
			ID: "earlier-2", ParentID: "earlier-1", Type: block.TypeField,
			Name: "Earlier Work", Status: block.StatusPending,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, err := exp.Apply("p1", "", "followup")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	var summary block.Block
	for _, b := range created {
		if b.Name == "Summary" {
			summary = b
		}
	}
	if len(summary.DependsOn) != 2 {
		t.Fatalf("unexpected deps: %v", summary.DependsOn)
	}
	if summary.DependsOn[0] != "earlier-2" {
		t.Fatalf("existing block not resolved by name: %v", summary.DependsOn)
	}
	// Unresolvable names pass through verbatim and stay permanently unmet.
	if summary.DependsOn[1] != "Unknown Thing" {
		t.Fatalf("unresolved name rewritten: %v", summary.DependsOn)
	}
}

func TestApplyForwardReferenceIsExternal(t *testing.T) {
	const body = `
id: fwd
name: Forward
blocks:
  - name: Forward
    type: phase
    children:
      - name: Second
        depends_on:
          - First
          - Later
      - name: First
      - name: Later
`
	exp, store := newTestExpander(t, body)
	err := store.Update("p1", func(tx *blockstore.Txn) error {
		tx.Put(block.Block{
			ID: "prior", Type: block.TypePhase, Name: "Prior",
			Status: block.StatusPending,
		})
		tx.Put(block.Block{
			ID: "first-0", ParentID: "prior", Type: block.TypeField,
			Name: "First", Status: block.StatusCompleted,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, err := exp.Apply("p1", "", "fwd")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	byName := make(map[string]block.Block)
	for _, b := range created {
		byName[b.Name] = b
	}
	second := byName["Second"]
	if len(second.DependsOn) != 2 {
		t.Fatalf("unexpected deps: %v", second.DependsOn)
	}
	// "First" is declared after "Second", so it must bind to the
	// pre-existing project block, not the freshly minted one.
	if second.DependsOn[0] != "first-0" {
		t.Fatalf("forward reference not bound to existing block: %v", second.DependsOn)
	}
	if byName["First"].ID == "first-0" {
		t.Fatalf("template spec reused an existing id")
	}
	// No existing block named "Later": the name passes through verbatim.
	if second.DependsOn[1] != "Later" {
		t.Fatalf("unresolvable forward reference rewritten: %v", second.DependsOn)
	}
}

func TestApplyBackwardReferenceRemapsWithinTemplate(t *testing.T) {
	const body = `
id: back
name: Backward
blocks:
  - name: Backward
    type: phase
    children:
      - name: Source
      - name: Sink
        depends_on:
          - Source
`
	exp, store := newTestExpander(t, body)
	err := store.Update("p1", func(tx *blockstore.Txn) error {
		tx.Put(block.Block{
			ID: "prior", Type: block.TypePhase, Name: "Prior",
			Status: block.StatusPending,
		})
		tx.Put(block.Block{
			ID: "src-0", ParentID: "prior", Type: block.TypeField,
			Name: "Source", Status: block.StatusCompleted,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, err := exp.Apply("p1", "", "back")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var source, sink block.Block
	for _, b := range created {
		switch b.Name {
		case "Source":
			source = b
		case "Sink":
			sink = b
		}
	}
	// A name materialized earlier in the same pass shadows any existing
	// project block of that name.
	if len(sink.DependsOn) != 1 || sink.DependsOn[0] != source.ID {
		t.Fatalf("backward reference not remapped to the new id: %v", sink.DependsOn)
	}
}

func TestApplyUnderParent(t *testing.T) {
	exp, store := newTestExpander(t, validTemplateYAML)
	err := store.Update("p1", func(tx *blockstore.Txn) error {
		tx.Put(block.Block{
			ID: "home", Type: block.TypePhase, Name: "Home",
			Status: block.StatusPending,
		})
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, err := exp.Apply("p1", "home", "discovery")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if created[0].ParentID != "home" {
		t.Fatalf("root not attached: %+v", created[0])
	}

	if _, err := exp.Apply("p1", "missing", "discovery"); !errors.Is(err, block.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing parent, got %v", err)
	}
}

func TestApplyUnknownTemplate(t *testing.T) {
	exp, _ := newTestExpander(t, validTemplateYAML)
	if _, err := exp.Apply("p1", "", "nope"); !errors.Is(err, block.ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}
