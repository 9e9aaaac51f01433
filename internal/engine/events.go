package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"blockflow/internal/block"
)

// Event types published while a block generates.
const (
	EventStatus      = "status"
	EventChunk       = "chunk"
	EventAwaitReview = "awaiting_confirmation"
)

type Event struct {
	Type      string       `json:"type"`
	ProjectID string       `json:"project_id"`
	BlockID   string       `json:"block_id"`
	RunID     string       `json:"run_id,omitempty"`
	Status    block.Status `json:"status,omitempty"`
	Chunk     string       `json:"chunk,omitempty"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

// Broker fans generation events out to per-project subscribers. Sends
// never block: a subscriber that stops draining loses events, which is
// acceptable because the store remains the authoritative source and can
// always be re-fetched.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe delivers a project's events until ctx is done.
func (b *Broker) Subscribe(ctx context.Context, projectID string) <-chan Event {
	projectID = strings.TrimSpace(projectID)
	ch := make(chan Event, 64)

	b.mu.Lock()
	set, ok := b.subs[projectID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[projectID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if set, ok := b.subs[projectID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, projectID)
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	for ch := range b.subs[ev.ProjectID] {
		select {
		case ch <- ev:
		default:
			// slow subscriber; drop
		}
	}
	b.mu.Unlock()
}
