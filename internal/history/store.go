// Package history keeps soft-delete snapshots for single-level undo.
// Each snapshot is consumable exactly once and expires after a TTL.
package history

import (
	"context"
	"log"
	"sync"
	"time"

	"blockflow/internal/block"
)

// Snapshot captures a detached subtree with enough state to restore it at
// its original position: nodes, dependency edges (inline in the blocks),
// and the root's previous parent/order slot.
type Snapshot struct {
	ID         string        `json:"id"`
	ProjectID  string        `json:"project_id"`
	RootID     string        `json:"root_id"`
	ParentID   string        `json:"parent_id,omitempty"`
	OrderIndex int           `json:"order_index"`
	Blocks     []block.Block `json:"blocks"`
	TakenAt    time.Time     `json:"taken_at"`
}

type entry struct {
	snap     Snapshot
	consumed bool
}

// Store holds snapshots in memory, with an optional write-through archive
// for durability across restarts. Memory is authoritative for the
// consume-once semantics of live entries; the archive is consulted only
// when an id is unknown (e.g. after a restart).
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	archive *Archive
}

const DefaultTTL = 24 * time.Hour

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// WithArchive attaches an S3 archive; snapshots are mirrored there on Put.
func (s *Store) WithArchive(a *Archive) *Store {
	s.archive = a
	return s
}

// Put records a snapshot under its id.
func (s *Store) Put(snap Snapshot) {
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}
	s.mu.Lock()
	s.entries[snap.ID] = &entry{snap: snap}
	s.mu.Unlock()

	if s.archive != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.archive.Put(ctx, snap); err != nil {
				log.Printf("history: archive of %s failed: %v", snap.ID, err)
			}
		}()
	}
}

// Consume marks the entry consumed and returns its snapshot. A second
// call for the same id fails with ErrAlreadyConsumed; entries older than
// the TTL fail with ErrExpired.
func (s *Store) Consume(historyID string) (Snapshot, error) {
	s.mu.Lock()
	e, ok := s.entries[historyID]
	if !ok {
		s.mu.Unlock()
		return s.consumeArchived(historyID)
	}
	if e.consumed {
		s.mu.Unlock()
		return Snapshot{}, block.ErrAlreadyConsumed
	}
	if time.Since(e.snap.TakenAt) > s.ttl {
		delete(s.entries, historyID)
		s.mu.Unlock()
		return Snapshot{}, block.ErrExpired
	}
	e.consumed = true
	snap := e.snap
	s.mu.Unlock()
	return snap, nil
}

// Unconsume reverts a Consume after a failed restore so the entry stays
// usable.
func (s *Store) Unconsume(historyID string) {
	s.mu.Lock()
	if e, ok := s.entries[historyID]; ok {
		e.consumed = false
	}
	s.mu.Unlock()
}

func (s *Store) consumeArchived(historyID string) (Snapshot, error) {
	if s.archive == nil {
		return Snapshot{}, block.ErrExpired
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	consumed, err := s.archive.IsConsumed(ctx, historyID)
	if err != nil {
		return Snapshot{}, block.ErrExpired
	}
	if consumed {
		return Snapshot{}, block.ErrAlreadyConsumed
	}
	snap, err := s.archive.Get(ctx, historyID)
	if err != nil {
		return Snapshot{}, block.ErrExpired
	}
	if time.Since(snap.TakenAt) > s.ttl {
		return Snapshot{}, block.ErrExpired
	}
	if err := s.archive.MarkConsumed(ctx, historyID); err != nil {
		log.Printf("history: consume marker for %s failed: %v", historyID, err)
	}
	// Track locally too so repeat calls short-circuit.
	s.mu.Lock()
	s.entries[historyID] = &entry{snap: snap, consumed: true}
	s.mu.Unlock()
	return snap, nil
}
