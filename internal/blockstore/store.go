package blockstore

import (
	"database/sql"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"blockflow/internal/block"
)

// Store owns the canonical block forest for every project. The in-memory
// map is authoritative for reads and invariant checks; an optional file or
// postgres backend persists committed state (write-through).
//
// Structural mutations go through Update, which serializes per project and
// validates every invariant before commit.
type Store struct {
	path string
	db   *sql.DB

	loadOnce sync.Once
	mu       sync.RWMutex
	byID     map[string]block.Block
	// dependents is the reverse depends_on index: target id -> dependent ids.
	dependents map[string]map[string]struct{}

	projMu sync.Mutex
	locks  map[string]*sync.Mutex

	schemaOnce sync.Once
	schemaErr  error

	forestCache *lru.Cache[string, []*block.Node]
}

// New returns a file-backed store. An empty path keeps the store purely
// in memory.
func New(path string) *Store {
	s := &Store{
		path:       path,
		byID:       make(map[string]block.Block),
		dependents: make(map[string]map[string]struct{}),
		locks:      make(map[string]*sync.Mutex),
	}
	s.forestCache, _ = lru.New[string, []*block.Node](256)
	return s
}

// NewPostgres returns a store that loads from and writes through to
// postgres.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := New("")
	s.db = db
	return s, nil
}

// NewFromEnv picks postgres when BLOCK_STORE_PG_DSN is set and reachable,
// otherwise falls back to the file path.
func NewFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("BLOCK_STORE_PG_DSN"))
	if dsn == "" {
		return New(path)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		log.Printf("block store: postgres unavailable (%v), using file store", err)
		return New(path)
	}
	return s
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureLoaded() {
	s.loadOnce.Do(func() {
		if s.db != nil {
			if err := s.ensureSchema(); err != nil {
				log.Printf("block store: schema init failed: %v", err)
				return
			}
			s.loadDB()
			return
		}
		s.loadFile()
	})
}

// Get returns the latest committed snapshot of one block.
func (s *Store) Get(id string) (block.Block, bool) {
	if s == nil {
		return block.Block{}, false
	}
	s.ensureLoaded()
	id = strings.TrimSpace(id)
	if id == "" {
		return block.Block{}, false
	}
	s.mu.RLock()
	b, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return block.Block{}, false
	}
	return b.Clone(), true
}

// ProjectBlocks returns every live block of a project, ordered parent
// before child, siblings by order index.
func (s *Store) ProjectBlocks(projectID string) []block.Block {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectBlocksLocked(projectID)
}

func (s *Store) projectBlocksLocked(projectID string) []block.Block {
	var out []block.Block
	for _, b := range s.byID {
		if b.ProjectID == projectID {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ParentID != out[j].ParentID {
			return out[i].ParentID < out[j].ParentID
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

// Forest returns the materialized ordered forest for a project. Results
// are cached per project and invalidated on every committed mutation.
func (s *Store) Forest(projectID string) []*block.Node {
	s.ensureLoaded()
	projectID = strings.TrimSpace(projectID)
	if cached, ok := s.forestCache.Get(projectID); ok {
		return cached
	}
	blocks := s.ProjectBlocks(projectID)
	forest := buildForest(blocks)
	s.forestCache.Add(projectID, forest)
	return forest
}

func buildForest(blocks []block.Block) []*block.Node {
	nodes := make(map[string]*block.Node, len(blocks))
	for _, b := range blocks {
		nodes[b.ID] = &block.Node{Block: b}
	}
	var roots []*block.Node
	for _, b := range blocks {
		n := nodes[b.ID]
		if b.ParentID == "" {
			roots = append(roots, n)
			continue
		}
		if p, ok := nodes[b.ParentID]; ok {
			p.Children = append(p.Children, n)
		}
	}
	var sortNodes func([]*block.Node)
	sortNodes = func(ns []*block.Node) {
		sort.Slice(ns, func(i, j int) bool { return ns[i].OrderIndex < ns[j].OrderIndex })
		for _, n := range ns {
			sortNodes(n.Children)
		}
	}
	sortNodes(roots)
	return roots
}

// Dependents returns the ids of live blocks whose depends_on includes id.
// Backed by the reverse index so auto-trigger re-scans stay proportional
// to the fan-out, not the project size.
func (s *Store) Dependents(id string) []string {
	s.ensureLoaded()
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.dependents[strings.TrimSpace(id)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for dep := range set {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// projectLock returns the mutex serializing structural mutations for one
// project.
func (s *Store) projectLock(projectID string) *sync.Mutex {
	s.projMu.Lock()
	defer s.projMu.Unlock()
	mu, ok := s.locks[projectID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[projectID] = mu
	}
	return mu
}

// Update applies one mutation to a project's forest as a transaction:
// fn stages changes on a private copy, the staged state is validated
// against every structural invariant, and only then is it committed and
// persisted.
// Any error leaves the store untouched.
func (s *Store) Update(projectID string, fn func(*Txn) error) error {
	if s == nil {
		return block.ErrNotFound
	}
	s.ensureLoaded()
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return block.Invalid("project_id", "must not be empty")
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	txn := s.newTxn(projectID)
	if err := fn(txn); err != nil {
		return err
	}
	if err := txn.validate(); err != nil {
		return err
	}
	s.commit(txn)
	return nil
}

func (s *Store) commit(t *Txn) {
	s.mu.Lock()
	for id := range t.deleted {
		s.removeDependentEdgesLocked(id)
		delete(s.byID, id)
	}
	for id, b := range t.staged {
		if prev, ok := s.byID[id]; ok {
			s.removeDependentEdgesOfLocked(id, prev.DependsOn)
		}
		s.byID[id] = b.Clone()
		s.addDependentEdgesLocked(id, b.DependsOn)
	}
	s.mu.Unlock()

	s.forestCache.Remove(t.projectID)

	if s.db != nil {
		s.commitDB(t)
		return
	}
	if s.path != "" {
		s.saveFile()
	}
}

func (s *Store) addDependentEdgesLocked(id string, deps []string) {
	for _, dep := range deps {
		set, ok := s.dependents[dep]
		if !ok {
			set = make(map[string]struct{})
			s.dependents[dep] = set
		}
		set[id] = struct{}{}
	}
}

func (s *Store) removeDependentEdgesOfLocked(id string, deps []string) {
	for _, dep := range deps {
		if set, ok := s.dependents[dep]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.dependents, dep)
			}
		}
	}
}

// removeDependentEdgesLocked drops the edges a deleted block contributed
// as a dependent. Edges pointing AT the deleted block are kept dangling on
// purpose: the resolver reports them as permanently unmet.
func (s *Store) removeDependentEdgesLocked(id string) {
	if b, ok := s.byID[id]; ok {
		s.removeDependentEdgesOfLocked(id, b.DependsOn)
	}
}
