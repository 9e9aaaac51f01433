// Package engine drives the per-block generation state machine:
// dependency-gated start, streamed content, cancellation, and the
// need-review confirmation gate.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/deps"
	"blockflow/internal/llm"
	"blockflow/internal/utils"
)

type Engine struct {
	store    *blockstore.Store
	resolver *deps.Resolver
	gen      llm.Generator
	events   *Broker

	mu     sync.Mutex
	leases map[string]*lease

	// onSettled fires after a block's content is fully accepted
	// (completed directly, or confirmed after review); the auto-trigger
	// chain hangs off it.
	onSettled func(blockID string)
}

// lease is the exclusive right to generate one block. At most one exists
// per block id at any time.
type lease struct {
	runID     string
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
}

func New(store *blockstore.Store, resolver *deps.Resolver, gen llm.Generator, events *Broker) *Engine {
	return &Engine{
		store:    store,
		resolver: resolver,
		gen:      gen,
		events:   events,
		leases:   make(map[string]*lease),
	}
}

// SetOnSettled wires the completion callback. Must be called before the
// first Generate.
func (e *Engine) SetOnSettled(fn func(blockID string)) { e.onSettled = fn }

// Events exposes the broker for observers.
func (e *Engine) Events() *Broker { return e.events }

// InFlight reports whether a generation lease is held for the block.
func (e *Engine) InFlight(blockID string) bool {
	e.mu.Lock()
	_, ok := e.leases[blockID]
	e.mu.Unlock()
	return ok
}

// Generate starts one generation for the block and returns its run id.
// It fails with NotReadyError when dependencies or answers are missing
// and with ErrAlreadyInProgress when a lease is already held. Entering
// in_progress clears previous content; the stream then appends.
func (e *Engine) Generate(ctx context.Context, blockID string) (string, error) {
	b, ok := e.store.Get(blockID)
	if !ok {
		return "", block.ErrNotFound
	}
	if err := e.resolver.ReadyErr(b); err != nil {
		return "", err
	}

	e.mu.Lock()
	if _, busy := e.leases[blockID]; busy {
		e.mu.Unlock()
		return "", block.ErrAlreadyInProgress
	}
	genCtx, cancel := context.WithCancel(context.Background())
	l := &lease{
		runID:  utils.RunID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.leases[blockID] = l
	e.mu.Unlock()

	if err := e.transition(blockID, func(b *block.Block) {
		b.Status = block.StatusInProgress
		b.Content = ""
	}); err != nil {
		e.release(blockID, l)
		cancel()
		return "", err
	}
	e.publishStatus(b.ProjectID, blockID, l.runID, block.StatusInProgress, "")

	go e.run(genCtx, b.ProjectID, blockID, l)
	return l.runID, nil
}

// Cancel requests best-effort cancellation of the in-flight generation.
// The block settles back to pending; partial content, if any, is kept.
func (e *Engine) Cancel(blockID string) error {
	e.mu.Lock()
	l, ok := e.leases[blockID]
	e.mu.Unlock()
	if !ok {
		return block.ErrNotGenerating
	}
	l.cancelled.Store(true)
	l.cancel()
	return nil
}

// Confirm accepts a reviewed block: legal only while the block sits in
// in_progress with content and need_review set and no generation is in
// flight. The transition to completed is what lets the auto-trigger
// chain cascade past the block.
func (e *Engine) Confirm(blockID string) (block.Block, error) {
	if e.InFlight(blockID) {
		return block.Block{}, block.ErrNotAwaitingConfirmation
	}
	b, ok := e.store.Get(blockID)
	if !ok {
		return block.Block{}, block.ErrNotFound
	}
	if b.Status != block.StatusInProgress || !b.HasContent() || !b.NeedReview {
		return block.Block{}, block.ErrNotAwaitingConfirmation
	}
	if err := e.transition(blockID, func(b *block.Block) {
		b.Status = block.StatusCompleted
	}); err != nil {
		return block.Block{}, err
	}
	out, _ := e.store.Get(blockID)
	e.publishStatus(b.ProjectID, blockID, "", block.StatusCompleted, "")
	e.settle(blockID)
	return out, nil
}

// AwaitingConfirmation reports whether the block finished generating and
// now waits for a human decision.
func (e *Engine) AwaitingConfirmation(b block.Block) bool {
	return b.Status == block.StatusInProgress && b.NeedReview && b.HasContent() && !e.InFlight(b.ID)
}

// Wait blocks until the in-flight generation (if any) settles. Intended
// for tests and shutdown paths.
func (e *Engine) Wait(blockID string) {
	e.mu.Lock()
	l, ok := e.leases[blockID]
	e.mu.Unlock()
	if ok {
		<-l.done
	}
}

func (e *Engine) run(ctx context.Context, projectID, blockID string, l *lease) {
	defer close(l.done)

	b, ok := e.store.Get(blockID)
	if !ok {
		e.release(blockID, l)
		return
	}

	req := llm.Request{
		BlockName:   b.Name,
		Handler:     b.SpecialHandler,
		Prompt:      b.AIPrompt,
		Answers:     b.PreAnswers,
		Constraints: b.Constraints,
	}
	for _, depID := range b.DependsOn {
		if dep, ok := e.store.Get(depID); ok && dep.HasContent() {
			req.Context = append(req.Context, llm.Dependency{Name: dep.Name, Content: dep.Content})
		}
	}

	onChunk := func(chunk string) error {
		if err := e.transition(blockID, func(b *block.Block) {
			b.Content += chunk
		}); err != nil {
			return err
		}
		e.events.Publish(Event{
			Type: EventChunk, ProjectID: projectID, BlockID: blockID,
			RunID: l.runID, Chunk: chunk,
		})
		return nil
	}

	final, err := e.gen.Generate(ctx, req, onChunk)

	switch {
	case err != nil && (l.cancelled.Load() || errors.Is(err, context.Canceled)):
		// Cancelled: keep whatever streamed, back to pending.
		_ = e.transition(blockID, func(b *block.Block) {
			b.Status = block.StatusPending
		})
		e.release(blockID, l)
		e.publishStatus(projectID, blockID, l.runID, block.StatusPending, "")

	case err != nil:
		log.Printf("generation %s for block %s failed: %v", l.runID, blockID, err)
		_ = e.transition(blockID, func(b *block.Block) {
			b.Status = block.StatusFailed
		})
		e.release(blockID, l)
		e.publishStatus(projectID, blockID, l.runID, block.StatusFailed, err.Error())

	default:
		if verr := block.ValidateContent(b.SpecialHandler, final); verr != nil {
			log.Printf("generation %s for block %s produced invalid %s payload: %v",
				l.runID, blockID, b.SpecialHandler, verr)
			_ = e.transition(blockID, func(b *block.Block) {
				b.Status = block.StatusFailed
			})
			e.release(blockID, l)
			e.publishStatus(projectID, blockID, l.runID, block.StatusFailed, verr.Error())
			return
		}
		needReview := false
		_ = e.transition(blockID, func(b *block.Block) {
			b.Content = final
			needReview = b.NeedReview
			if !needReview {
				b.Status = block.StatusCompleted
			}
		})
		e.release(blockID, l)
		if needReview {
			e.events.Publish(Event{
				Type: EventAwaitReview, ProjectID: projectID, BlockID: blockID, RunID: l.runID,
				Status: block.StatusInProgress,
			})
			return
		}
		e.publishStatus(projectID, blockID, l.runID, block.StatusCompleted, "")
		e.settle(blockID)
	}
}

// transition mutates a single block under the project lock. A block
// deleted mid-generation makes the transition a no-op error.
func (e *Engine) transition(blockID string, fn func(*block.Block)) error {
	cur, ok := e.store.Get(blockID)
	if !ok {
		return block.ErrNotFound
	}
	return e.store.Update(cur.ProjectID, func(t *blockstore.Txn) error {
		b, ok := t.Get(blockID)
		if !ok {
			return block.ErrNotFound
		}
		fn(&b)
		t.Put(b)
		return nil
	})
}

func (e *Engine) release(blockID string, l *lease) {
	e.mu.Lock()
	if cur, ok := e.leases[blockID]; ok && cur == l {
		delete(e.leases, blockID)
	}
	e.mu.Unlock()
	l.cancel()
}

func (e *Engine) settle(blockID string) {
	if e.onSettled != nil {
		e.onSettled(blockID)
	}
}

func (e *Engine) publishStatus(projectID, blockID, runID string, status block.Status, errMsg string) {
	e.events.Publish(Event{
		Type: EventStatus, ProjectID: projectID, BlockID: blockID, RunID: runID,
		Status: status, Error: errMsg,
	})
}
