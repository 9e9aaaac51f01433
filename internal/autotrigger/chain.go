// Package autotrigger cascades generation along the dependency graph:
// when a block's content is accepted, pending dependents whose inputs
// are now satisfied are started automatically, subject to per-phase
// autonomy settings.
package autotrigger

import (
	"context"
	"errors"
	"log"

	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/deps"
)

// Starter is the slice of the generation engine the chain needs.
type Starter interface {
	Generate(ctx context.Context, blockID string) (string, error)
	InFlight(blockID string) bool
}

type Chain struct {
	store    *blockstore.Store
	resolver *deps.Resolver
	settings *Settings
	starter  Starter
}

func NewChain(store *blockstore.Store, resolver *deps.Resolver, settings *Settings, starter Starter) *Chain {
	return &Chain{store: store, resolver: resolver, settings: settings, starter: starter}
}

// Settings exposes the autonomy switches for the settings endpoint.
func (c *Chain) Settings() *Settings { return c.settings }

// OnBlockSettled examines the direct dependents of a block whose content
// was just accepted and starts every one that became ready. Deeper levels
// cascade on their own as those generations settle in turn; a dependent
// that fails or awaits review stops its branch of the cascade.
func (c *Chain) OnBlockSettled(blockID string) {
	for _, depID := range c.store.Dependents(blockID) {
		c.maybeStart(depID)
	}
}

// Run is an idempotent full sweep of a project: every pending block whose
// dependencies are already satisfied is started. It returns the number of
// generations kicked off. Useful after imports, undo, or toggling
// autonomy back on.
func (c *Chain) Run(projectID string) int {
	started := 0
	for _, b := range c.store.ProjectBlocks(projectID) {
		if c.maybeStart(b.ID) {
			started++
		}
	}
	return started
}

func (c *Chain) maybeStart(blockID string) bool {
	b, ok := c.store.Get(blockID)
	if !ok {
		return false
	}
	// Any pending dependent with a prompt is eligible, containers
	// included; blocks without a prompt have nothing to generate.
	if b.Status != block.StatusPending || b.AIPrompt == "" {
		return false
	}
	if c.starter.InFlight(b.ID) {
		return false
	}
	if !c.settings.PhaseEnabled(c.owningPhase(b)) {
		return false
	}
	if !c.resolver.IsReady(b) {
		return false
	}
	if _, err := c.starter.Generate(context.Background(), b.ID); err != nil {
		// Lost races (another caller grabbed the lease, or readiness
		// changed under us) are expected; anything else is worth a line.
		if !errors.Is(err, block.ErrAlreadyInProgress) {
			log.Printf("auto-trigger: start %s: %v", b.ID, err)
		}
		return false
	}
	return true
}

// owningPhase walks the parent chain to the enclosing phase block.
// Returns "" for blocks outside any phase.
func (c *Chain) owningPhase(b block.Block) string {
	cur := b
	for cur.ParentID != "" {
		parent, ok := c.store.Get(cur.ParentID)
		if !ok {
			return ""
		}
		if parent.Type == block.TypePhase {
			return parent.ID
		}
		cur = parent
	}
	if cur.Type == block.TypePhase {
		return cur.ID
	}
	return ""
}
