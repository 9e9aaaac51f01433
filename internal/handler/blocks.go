package handler

import (
	"net/http"
	"strings"

	"blockflow/internal/block"
	"blockflow/internal/tree"
)

type createBlockRequest struct {
	ProjectID      string            `json:"project_id"`
	ParentID       string            `json:"parent_id"`
	Type           string            `json:"block_type"`
	Name           string            `json:"name"`
	AIPrompt       string            `json:"ai_prompt"`
	SpecialHandler string            `json:"special_handler"`
	DependsOn      []string          `json:"depends_on"`
	PreQuestions   []string          `json:"pre_questions"`
	Constraints    block.Constraints `json:"constraints"`
	NeedReview     bool              `json:"need_review"`
}

func (h *Handler) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	var in createBlockRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		writeError(w, block.Invalid("project_id", "must not be empty"))
		return
	}
	typ, ok := block.ParseType(in.Type)
	if !ok {
		writeError(w, block.ErrInvalidType)
		return
	}
	b, err := h.mutator.Create(in.ProjectID, in.ParentID, typ, in.Name, tree.CreateOpts{
		AIPrompt:       in.AIPrompt,
		SpecialHandler: in.SpecialHandler,
		DependsOn:      in.DependsOn,
		PreQuestions:   in.PreQuestions,
		Constraints:    in.Constraints,
		NeedReview:     in.NeedReview,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	b, ok := h.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, block.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type updateBlockRequest struct {
	Name           *string            `json:"name"`
	AIPrompt       *string            `json:"ai_prompt"`
	Content        *string            `json:"content"`
	DependsOn      *[]string          `json:"depends_on"`
	PreQuestions   *[]string          `json:"pre_questions"`
	PreAnswers     *map[string]string `json:"pre_answers"`
	Constraints    *block.Constraints `json:"constraints"`
	NeedReview     *bool              `json:"need_review"`
	IsCollapsed    *bool              `json:"is_collapsed"`
	SpecialHandler *string            `json:"special_handler"`
}

func (h *Handler) handleUpdateBlock(w http.ResponseWriter, r *http.Request) {
	var in updateBlockRequest
	if !decodeBody(w, r, &in) {
		return
	}
	b, err := h.mutator.Update(r.PathValue("id"), tree.Patch{
		Name:           in.Name,
		AIPrompt:       in.AIPrompt,
		Content:        in.Content,
		DependsOn:      in.DependsOn,
		PreQuestions:   in.PreQuestions,
		PreAnswers:     in.PreAnswers,
		Constraints:    in.Constraints,
		NeedReview:     in.NeedReview,
		IsCollapsed:    in.IsCollapsed,
		SpecialHandler: in.SpecialHandler,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type moveBlockRequest struct {
	NewParentID string `json:"new_parent_id"`
	NewIndex    int    `json:"new_index"`
}

func (h *Handler) handleMoveBlock(w http.ResponseWriter, r *http.Request) {
	var in moveBlockRequest
	if !decodeBody(w, r, &in) {
		return
	}
	b, err := h.mutator.Move(r.PathValue("id"), in.NewParentID, in.NewIndex)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	historyID, err := h.mutator.Delete(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"history_id": historyID})
}

type undoRequest struct {
	HistoryID string `json:"history_id"`
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	var in undoRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.HistoryID) == "" {
		writeError(w, block.Invalid("history_id", "must not be empty"))
		return
	}
	res, err := h.mutator.Undo(in.HistoryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleProjectBlocks(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("projectID")
	if r.URL.Query().Get("view") == "flat" {
		writeJSON(w, http.StatusOK, map[string]any{
			"blocks": h.store.ProjectBlocks(projectID),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roots": h.store.Forest(projectID),
	})
}
