// Package handler exposes the block orchestration API over JSON HTTP
// plus a websocket feed for generation events.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"blockflow/internal/autotrigger"
	"blockflow/internal/block"
	"blockflow/internal/blockstore"
	"blockflow/internal/engine"
	"blockflow/internal/template"
	"blockflow/internal/tree"
)

type Handler struct {
	store    *blockstore.Store
	mutator  *tree.Mutator
	engine   *engine.Engine
	chain    *autotrigger.Chain
	expander *template.Expander
	registry *template.Registry
}

func New(store *blockstore.Store, mut *tree.Mutator, eng *engine.Engine, chain *autotrigger.Chain, exp *template.Expander, reg *template.Registry) *Handler {
	return &Handler{
		store:    store,
		mutator:  mut,
		engine:   eng,
		chain:    chain,
		expander: exp,
		registry: reg,
	}
}

// Register mounts every route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/blocks", h.handleCreateBlock)
	mux.HandleFunc("GET /v1/blocks/{id}", h.handleGetBlock)
	mux.HandleFunc("PATCH /v1/blocks/{id}", h.handleUpdateBlock)
	mux.HandleFunc("DELETE /v1/blocks/{id}", h.handleDeleteBlock)
	mux.HandleFunc("POST /v1/blocks/{id}/move", h.handleMoveBlock)
	mux.HandleFunc("POST /v1/blocks/{id}/generate", h.handleGenerate)
	mux.HandleFunc("POST /v1/blocks/{id}/cancel", h.handleCancel)
	mux.HandleFunc("POST /v1/blocks/{id}/confirm", h.handleConfirm)

	mux.HandleFunc("GET /v1/projects/{projectID}/blocks", h.handleProjectBlocks)
	mux.HandleFunc("POST /v1/projects/{projectID}/undo", h.handleUndo)
	mux.HandleFunc("POST /v1/projects/{projectID}/apply-template", h.handleApplyTemplate)
	mux.HandleFunc("POST /v1/projects/{projectID}/auto-trigger", h.handleAutoTriggerRun)
	mux.HandleFunc("GET /v1/projects/{projectID}/watch", h.handleWatch)

	mux.HandleFunc("GET /v1/templates", h.handleListTemplates)
	mux.HandleFunc("PUT /v1/templates", h.handleSaveTemplate)

	mux.HandleFunc("PUT /v1/phases/{id}/autonomy", h.handleSetAutonomy)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	body := errorBody{Code: code, Message: err.Error()}
	var nre *block.NotReadyError
	if errors.As(err, &nre) {
		body.Details = nre
	}
	var cyc *block.CycleError
	if errors.As(err, &cyc) {
		body.Details = map[string]any{"cycle": cyc.Cycle}
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func classify(err error) (int, string) {
	var verr *block.ValidationError
	var nre *block.NotReadyError
	switch {
	case errors.Is(err, block.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, block.ErrTemplateNotFound):
		return http.StatusNotFound, "template_not_found"
	case errors.Is(err, block.ErrInvalidParent):
		return http.StatusBadRequest, "invalid_parent"
	case errors.Is(err, block.ErrInvalidType):
		return http.StatusBadRequest, "invalid_type"
	case errors.Is(err, block.ErrEmptyName):
		return http.StatusBadRequest, "empty_name"
	case errors.As(err, &verr):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, block.ErrCycleDetected):
		return http.StatusConflict, "cycle_detected"
	case errors.As(err, &nre):
		return http.StatusConflict, "not_ready"
	case errors.Is(err, block.ErrAlreadyInProgress):
		return http.StatusConflict, "already_in_progress"
	case errors.Is(err, block.ErrNotGenerating):
		return http.StatusConflict, "not_generating"
	case errors.Is(err, block.ErrNotAwaitingConfirmation):
		return http.StatusConflict, "not_awaiting_confirmation"
	case errors.Is(err, block.ErrAlreadyConsumed):
		return http.StatusGone, "already_consumed"
	case errors.Is(err, block.ErrExpired):
		return http.StatusGone, "expired"
	}
	return http.StatusInternalServerError, "internal"
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{"error": {
			Code: "invalid_body", Message: "invalid json body",
		}})
		return false
	}
	return true
}
