package template

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yamlv3 "gopkg.in/yaml.v3"

	"blockflow/internal/block"
)

// Registry holds the templates loaded from a directory of YAML files,
// one template per file. Reload swaps the whole set atomically.
type Registry struct {
	dir string

	mu   sync.RWMutex
	byID map[string]Template
}

func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir, byID: make(map[string]Template)}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every *.yaml file under the directory. A file that
// fails to parse or validate is skipped with a log line so one bad
// template cannot take down the rest.
func (r *Registry) Reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}

	next := make(map[string]Template)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(r.dir, name)
		tmpl, err := loadFile(path)
		if err != nil {
			log.Printf("template: skipping %s: %v", name, err)
			continue
		}
		if prev, dup := next[tmpl.ID]; dup {
			log.Printf("template: duplicate id %q in %s (already loaded as %q)", tmpl.ID, name, prev.Name)
			continue
		}
		next[tmpl.ID] = tmpl
	}

	r.mu.Lock()
	r.byID = next
	r.mu.Unlock()
	return nil
}

func loadFile(path string) (Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	var tmpl Template
	if err := yamlv3.Unmarshal(raw, &tmpl); err != nil {
		return Template{}, fmt.Errorf("yaml: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return Template{}, err
	}
	return tmpl, nil
}

// Get returns the template with the given id.
func (r *Registry) Get(id string) (Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.byID[id]
	if !ok {
		return Template{}, block.ErrTemplateNotFound
	}
	return tmpl, nil
}

// List returns all templates sorted by name.
func (r *Registry) List() []Template {
	r.mu.RLock()
	out := make([]Template, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Save writes a template to <dir>/<id>.yaml via a temp file and rename,
// then folds it into the live set.
func (r *Registry) Save(tmpl Template) error {
	if err := tmpl.Validate(); err != nil {
		return err
	}
	raw, err := yamlv3.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	path := filepath.Join(r.dir, tmpl.ID+".yaml")
	if err := atomicWrite(path, raw); err != nil {
		return err
	}
	r.mu.Lock()
	r.byID[tmpl.ID] = tmpl
	r.mu.Unlock()
	return nil
}

func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".blockflow-tmp-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}
