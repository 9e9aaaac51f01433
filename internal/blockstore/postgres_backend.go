package blockstore

import (
	"encoding/json"
	"log"
	"strings"

	"blockflow/internal/block"
)

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS blocks (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  parent_id TEXT NOT NULL DEFAULT '',
  block_type TEXT NOT NULL,
  special_handler TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  order_index INT NOT NULL DEFAULT 0,
  content TEXT NOT NULL DEFAULT '',
  ai_prompt TEXT NOT NULL DEFAULT '',
  depends_on JSONB NOT NULL DEFAULT '[]',
  pre_questions JSONB NOT NULL DEFAULT '[]',
  pre_answers JSONB NOT NULL DEFAULT '{}',
  constraints JSONB NOT NULL DEFAULT '{}',
  need_review BOOLEAN NOT NULL DEFAULT FALSE,
  status TEXT NOT NULL DEFAULT 'pending',
  is_collapsed BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_blocks_project ON blocks (project_id);
CREATE INDEX IF NOT EXISTS idx_blocks_parent ON blocks (project_id, parent_id);

CREATE TABLE IF NOT EXISTS block_dependents (
  block_id TEXT NOT NULL,
  depends_on_id TEXT NOT NULL,
  PRIMARY KEY (block_id, depends_on_id)
);
CREATE INDEX IF NOT EXISTS idx_block_dependents_target ON block_dependents (depends_on_id);
`)
	})
	return s.schemaErr
}

func (s *Store) loadDB() {
	rows, err := s.db.Query(`SELECT id, project_id, parent_id, block_type, special_handler,
name, order_index, content, ai_prompt, depends_on, pre_questions, pre_answers,
constraints, need_review, status, is_collapsed FROM blocks`)
	if err != nil {
		log.Printf("block store: load failed: %v", err)
		return
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var b block.Block
		var dependsOn, preQuestions, preAnswers, constraints []byte
		err := rows.Scan(&b.ID, &b.ProjectID, &b.ParentID, &b.Type, &b.SpecialHandler,
			&b.Name, &b.OrderIndex, &b.Content, &b.AIPrompt, &dependsOn, &preQuestions,
			&preAnswers, &constraints, &b.NeedReview, &b.Status, &b.IsCollapsed)
		if err != nil {
			log.Printf("block store: scan failed: %v", err)
			continue
		}
		_ = json.Unmarshal(dependsOn, &b.DependsOn)
		_ = json.Unmarshal(preQuestions, &b.PreQuestions)
		_ = json.Unmarshal(preAnswers, &b.PreAnswers)
		_ = json.Unmarshal(constraints, &b.Constraints)
		if strings.TrimSpace(b.ID) == "" {
			continue
		}
		s.byID[b.ID] = b
		s.addDependentEdgesLocked(b.ID, b.DependsOn)
	}
}

// commitDB writes one transaction's staged rows through to postgres.
// Persistence errors are logged, not surfaced: the in-memory commit has
// already happened and re-fetch must keep returning the committed state.
func (s *Store) commitDB(t *Txn) {
	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("block store: begin failed: %v", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	for id := range t.deleted {
		if _, err := tx.Exec(`DELETE FROM blocks WHERE id = $1`, id); err != nil {
			log.Printf("block store: delete %s failed: %v", id, err)
			return
		}
		if _, err := tx.Exec(`DELETE FROM block_dependents WHERE block_id = $1`, id); err != nil {
			log.Printf("block store: delete edges %s failed: %v", id, err)
			return
		}
	}

	for id, b := range t.staged {
		dependsOn, _ := json.Marshal(emptySlice(b.DependsOn))
		preQuestions, _ := json.Marshal(emptySlice(b.PreQuestions))
		preAnswers, _ := json.Marshal(emptyMap(b.PreAnswers))
		constraints, _ := json.Marshal(b.Constraints)
		_, err := tx.Exec(`
INSERT INTO blocks (
  id, project_id, parent_id, block_type, special_handler, name, order_index,
  content, ai_prompt, depends_on, pre_questions, pre_answers, constraints,
  need_review, status, is_collapsed
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id)
DO UPDATE SET project_id=EXCLUDED.project_id,
  parent_id=EXCLUDED.parent_id,
  block_type=EXCLUDED.block_type,
  special_handler=EXCLUDED.special_handler,
  name=EXCLUDED.name,
  order_index=EXCLUDED.order_index,
  content=EXCLUDED.content,
  ai_prompt=EXCLUDED.ai_prompt,
  depends_on=EXCLUDED.depends_on,
  pre_questions=EXCLUDED.pre_questions,
  pre_answers=EXCLUDED.pre_answers,
  constraints=EXCLUDED.constraints,
  need_review=EXCLUDED.need_review,
  status=EXCLUDED.status,
  is_collapsed=EXCLUDED.is_collapsed`,
			b.ID, b.ProjectID, b.ParentID, string(b.Type), b.SpecialHandler, b.Name,
			b.OrderIndex, b.Content, b.AIPrompt, dependsOn, preQuestions, preAnswers,
			constraints, b.NeedReview, string(b.Status), b.IsCollapsed)
		if err != nil {
			log.Printf("block store: upsert %s failed: %v", id, err)
			return
		}
		if _, err := tx.Exec(`DELETE FROM block_dependents WHERE block_id = $1`, id); err != nil {
			log.Printf("block store: reset edges %s failed: %v", id, err)
			return
		}
		for _, dep := range b.DependsOn {
			if _, err := tx.Exec(`INSERT INTO block_dependents (block_id, depends_on_id)
VALUES ($1,$2) ON CONFLICT DO NOTHING`, id, dep); err != nil {
				log.Printf("block store: edge %s->%s failed: %v", id, dep, err)
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("block store: commit failed: %v", err)
	}
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
