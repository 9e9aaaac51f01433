package autotrigger

import (
	"context"
	"testing"
	"time"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/deps"
	"blockflow/internal/engine"
	"blockflow/internal/llm"
)

type fixture struct {
	store *blockstore.Store
	eng   *engine.Engine
	gen   *llm.FakeGenerator
	chain *Chain
}

func newFixture(t *testing.T, autonomyDefault bool) *fixture {
	t.Helper()
	store := blockstore.New("")
	gen := llm.NewFakeGenerator()
	resolver := deps.NewResolver(store)
	eng := engine.New(store, resolver, gen, engine.NewBroker())
	chain := NewChain(store, resolver, NewSettings(autonomyDefault), eng)
	eng.SetOnSettled(chain.OnBlockSettled)
	return &fixture{store: store, eng: eng, gen: gen, chain: chain}
}

func (f *fixture) seed(t *testing.T, blocks ...block.Block) {
	t.Helper()
	err := f.store.Update("p1", func(tx *blockstore.Txn) error {
		for _, b := range blocks {
			tx.Put(b)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) waitStatus(t *testing.T, id string, want block.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b, _ := f.store.Get(id)
		if b.Status == want && !f.eng.InFlight(id) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	b, _ := f.store.Get(id)
	t.Fatalf("block %s never reached %s (now %s)", id, want, b.Status)
}

func chainBlocks() []block.Block {
	return []block.Block{
		{ID: "ph", Type: block.TypePhase, Name: "Phase", Status: block.StatusPending},
		{ID: "a", ParentID: "ph", Type: block.TypeField, Name: "A",
			OrderIndex: 0, AIPrompt: "write a", Status: block.StatusPending},
		{ID: "b", ParentID: "ph", Type: block.TypeField, Name: "B",
			OrderIndex: 1, AIPrompt: "write b", DependsOn: []string{"a"},
			Status: block.StatusPending},
		{ID: "c", ParentID: "ph", Type: block.TypeField, Name: "C",
			OrderIndex: 2, AIPrompt: "write c", DependsOn: []string{"b"},
			Status: block.StatusPending},
	}
}

func TestCascadeFollowsDependencyChain(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, chainBlocks()...)

	if _, err := f.eng.Generate(context.Background(), "a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}

	// a completing triggers b, and b completing triggers c.
	f.waitStatus(t, "a", block.StatusCompleted)
	f.waitStatus(t, "b", block.StatusCompleted)
	f.waitStatus(t, "c", block.StatusCompleted)
}

func TestCascadeIncludesContainerDependents(t *testing.T) {
	f := newFixture(t, true)
	blocks := chainBlocks()
	// A prompted group cascades like any other dependent; only blocks
	// without a prompt are skipped.
	blocks = append(blocks,
		block.Block{ID: "grp", ParentID: "ph", Type: block.TypeGroup, Name: "Digest",
			OrderIndex: 3, AIPrompt: "summarize a", DependsOn: []string{"a"},
			Status: block.StatusPending},
		block.Block{ID: "bare", ParentID: "ph", Type: block.TypeField, Name: "Bare",
			OrderIndex: 4, DependsOn: []string{"a"}, Status: block.StatusPending},
	)
	f.seed(t, blocks...)

	if _, err := f.eng.Generate(context.Background(), "a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	f.waitStatus(t, "a", block.StatusCompleted)
	f.waitStatus(t, "grp", block.StatusCompleted)

	time.Sleep(50 * time.Millisecond)
	bare, _ := f.store.Get("bare")
	if bare.Status != block.StatusPending || f.eng.InFlight("bare") {
		t.Fatalf("promptless block must not auto-generate: %s", bare.Status)
	}
}

func TestCascadeStopsAtFailure(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, chainBlocks()...)
	f.gen.Script("B", "will stream this")
	f.gen.Fail("B", context.DeadlineExceeded)

	if _, err := f.eng.Generate(context.Background(), "a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	f.waitStatus(t, "a", block.StatusCompleted)
	f.waitStatus(t, "b", block.StatusFailed)

	// Give the chain a moment; c must stay untouched because b never
	// settled.
	time.Sleep(50 * time.Millisecond)
	c, _ := f.store.Get("c")
	if c.Status != block.StatusPending || f.eng.InFlight("c") {
		t.Fatalf("cascade crossed a failed block: %s", c.Status)
	}
}

func TestCascadeHoldsAtNeedReview(t *testing.T) {
	f := newFixture(t, true)
	blocks := chainBlocks()
	blocks[2].NeedReview = true // b
	f.seed(t, blocks...)

	if _, err := f.eng.Generate(context.Background(), "a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	f.waitStatus(t, "a", block.StatusCompleted)
	f.waitStatus(t, "b", block.StatusInProgress)

	time.Sleep(50 * time.Millisecond)
	c, _ := f.store.Get("c")
	if c.Status != block.StatusPending {
		t.Fatalf("cascade must pause until review, c is %s", c.Status)
	}

	// Confirming b resumes the cascade into c.
	if _, err := f.eng.Confirm("b"); err != nil {
		t.Fatalf("confirm b: %v", err)
	}
	f.waitStatus(t, "c", block.StatusCompleted)
}

func TestAutonomyOffSkipsPhase(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, chainBlocks()...)
	f.chain.Settings().SetPhase("ph", false)

	if _, err := f.eng.Generate(context.Background(), "a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	f.waitStatus(t, "a", block.StatusCompleted)

	time.Sleep(50 * time.Millisecond)
	b, _ := f.store.Get("b")
	if b.Status != block.StatusPending {
		t.Fatalf("autonomy off, b must stay pending: %s", b.Status)
	}

	// Re-enabling and sweeping picks the ready block up.
	f.chain.Settings().SetPhase("ph", true)
	if started := f.chain.Run("p1"); started != 1 {
		t.Fatalf("expected one start from sweep, got %d", started)
	}
	f.waitStatus(t, "b", block.StatusCompleted)
	f.waitStatus(t, "c", block.StatusCompleted)
}

func TestRunIsIdempotentOnSettledProject(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t, chainBlocks()...)

	if _, err := f.eng.Generate(context.Background(), "a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	f.waitStatus(t, "c", block.StatusCompleted)

	if started := f.chain.Run("p1"); started != 0 {
		t.Fatalf("sweep over settled project started %d generations", started)
	}
}

func TestDefaultAutonomyOff(t *testing.T) {
	f := newFixture(t, false)
	f.seed(t, chainBlocks()...)

	if _, err := f.eng.Generate(context.Background(), "a"); err != nil {
		t.Fatalf("generate a: %v", err)
	}
	f.waitStatus(t, "a", block.StatusCompleted)

	time.Sleep(50 * time.Millisecond)
	b, _ := f.store.Get("b")
	if b.Status != block.StatusPending {
		t.Fatalf("default-off autonomy must not cascade: %s", b.Status)
	}
}

func TestOwningPhaseResolution(t *testing.T) {
	f := newFixture(t, true)
	f.seed(t,
		block.Block{ID: "ph", Type: block.TypePhase, Name: "Phase", Status: block.StatusPending},
		block.Block{ID: "grp", ParentID: "ph", Type: block.TypeGroup, Name: "Group",
			Status: block.StatusPending},
		block.Block{ID: "deep", ParentID: "grp", Type: block.TypeField, Name: "Deep",
			Status: block.StatusPending},
	)

	deep, _ := f.store.Get("deep")
	if got := f.chain.owningPhase(deep); got != "ph" {
		t.Fatalf("nested field should resolve to its phase, got %q", got)
	}
	ph, _ := f.store.Get("ph")
	if got := f.chain.owningPhase(ph); got != "ph" {
		t.Fatalf("a phase owns itself, got %q", got)
	}
}
