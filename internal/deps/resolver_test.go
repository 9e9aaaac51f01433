package deps

import (
	"errors"
	"testing"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
)

func seedProject(t *testing.T, s *blockstore.Store, blocks ...block.Block) {
	t.Helper()
	err := s.Update("p1", func(tx *blockstore.Txn) error {
		for _, b := range blocks {
			tx.Put(b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func pendingField(id, parentID, name string, idx int, deps ...string) block.Block {
	return block.Block{
		ID: id, ParentID: parentID, Type: block.TypeField, Name: name,
		OrderIndex: idx, DependsOn: deps, Status: block.StatusPending,
	}
}

func TestReadinessTracksDependencyContent(t *testing.T) {
	s := blockstore.New("")
	seedProject(t, s,
		block.Block{ID: "ph", Type: block.TypePhase, Name: "Phase", Status: block.StatusPending},
		pendingField("a", "ph", "A", 0),
		pendingField("b", "ph", "B", 1, "a"),
	)
	r := NewResolver(s)

	b, _ := s.Get("b")
	if r.IsReady(b) {
		t.Fatalf("b must not be ready while a is empty")
	}
	unmet := r.UnmetDependencies(b)
	if len(unmet) != 1 || unmet[0].ID != "a" || unmet[0].Name != "A" {
		t.Fatalf("unexpected unmet set: %+v", unmet)
	}

	// Give a content; b becomes ready.
	err := s.Update("p1", func(tx *blockstore.Txn) error {
		a, _ := tx.Get("a")
		a.Content = "done"
		tx.Put(a)
		return nil
	})
	if err != nil {
		t.Fatalf("fill content: %v", err)
	}
	b, _ = s.Get("b")
	if !r.IsReady(b) {
		t.Fatalf("b should be ready once a has content")
	}
}

func TestDanglingDependencyNeverReady(t *testing.T) {
	s := blockstore.New("")
	seedProject(t, s,
		block.Block{ID: "ph", Type: block.TypePhase, Name: "Phase", Status: block.StatusPending},
		pendingField("a", "ph", "A", 0, "ghost"),
	)
	r := NewResolver(s)

	a, _ := s.Get("a")
	unmet := r.UnmetDependencies(a)
	if len(unmet) != 1 || unmet[0].ID != "ghost" || unmet[0].Name != "" {
		t.Fatalf("dangling ref should surface without a name: %+v", unmet)
	}
}

func TestMissingAnswersGateGeneration(t *testing.T) {
	b := block.Block{
		PreQuestions: []string{"Audience?", "Tone?"},
		PreAnswers:   map[string]string{"Audience?": "developers", "Tone?": "  "},
	}
	missing := MissingAnswers(b)
	if len(missing) != 1 || missing[0] != "Tone?" {
		t.Fatalf("unexpected missing answers: %v", missing)
	}
}

func TestReadyErrNamesEveryGap(t *testing.T) {
	s := blockstore.New("")
	seedProject(t, s,
		block.Block{ID: "ph", Type: block.TypePhase, Name: "Phase", Status: block.StatusPending},
		pendingField("a", "ph", "A", 0),
	)
	r := NewResolver(s)

	b := block.Block{
		ID: "x", DependsOn: []string{"a"},
		PreQuestions: []string{"Audience?"},
	}
	err := r.ReadyErr(b)
	var nre *block.NotReadyError
	if !errors.As(err, &nre) {
		t.Fatalf("expected NotReadyError, got %v", err)
	}
	if len(nre.Unmet) != 1 || len(nre.MissingAnswers) != 1 {
		t.Fatalf("gaps not fully reported: %+v", nre)
	}
}

func TestDetectCycleIgnoresTreeEdges(t *testing.T) {
	s := blockstore.New("")
	seedProject(t, s,
		block.Block{ID: "ph", Type: block.TypePhase, Name: "Phase", Status: block.StatusPending},
		pendingField("a", "ph", "A", 0),
		pendingField("b", "ph", "B", 1, "a"),
	)
	r := NewResolver(s)
	if cycle := r.DetectCycle("p1"); cycle != nil {
		t.Fatalf("acyclic graph reported a cycle: %v", cycle)
	}
}
