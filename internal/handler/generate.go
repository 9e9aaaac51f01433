package handler

import (
	"net/http"

	"blockflow/internal/block"
	"blockflow/internal/template"
)

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	runID, err := h.engine.Generate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Cancel(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Confirm(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type applyTemplateRequest struct {
	TemplateID string `json:"template_id"`
	ParentID   string `json:"parent_id"`
}

func (h *Handler) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	var in applyTemplateRequest
	if !decodeBody(w, r, &in) {
		return
	}
	created, err := h.expander.Apply(r.PathValue("projectID"), in.ParentID, in.TemplateID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"blocks": created})
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"templates": h.registry.List()})
}

func (h *Handler) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var in template.Template
	if !decodeBody(w, r, &in) {
		return
	}
	if err := h.registry.Save(in); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (h *Handler) handleAutoTriggerRun(w http.ResponseWriter, r *http.Request) {
	started := h.chain.Run(r.PathValue("projectID"))
	writeJSON(w, http.StatusOK, map[string]int{"started": started})
}

type autonomyRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *Handler) handleSetAutonomy(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := h.store.Get(id)
	if !ok {
		writeError(w, block.ErrNotFound)
		return
	}
	if b.Type != block.TypePhase {
		writeError(w, block.Invalid("id", "autonomy applies to phase blocks"))
		return
	}
	var in autonomyRequest
	if !decodeBody(w, r, &in) {
		return
	}
	h.chain.Settings().SetPhase(id, in.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"phase_id": id, "enabled": in.Enabled})
}
