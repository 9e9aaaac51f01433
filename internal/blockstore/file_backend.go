package blockstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"blockflow/internal/block"
)

func (s *Store) loadFile() {
	if s.path == "" {
		return
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var rows []block.Block
	if err := json.Unmarshal(b, &rows); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			continue
		}
		s.byID[id] = row.Clone()
		s.addDependentEdgesLocked(id, row.DependsOn)
	}
}

func (s *Store) saveFile() {
	s.mu.RLock()
	rows := make([]block.Block, 0, len(s.byID))
	for _, b := range s.byID {
		rows = append(rows, b.Clone())
	}
	s.mu.RUnlock()

	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
	_ = os.WriteFile(s.path, b, 0o644)
}
