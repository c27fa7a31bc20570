package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/introdesk/internal/draft"
	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/internal/workflow"
	"github.com/garnizeh/introdesk/pkg/repository"
)

// ConnectionsHandler serves the client-facing side of the introduction
// workflow. The admin side lives in AdminHandler; both share the same
// workflow service so the guards live in exactly one place.
type ConnectionsHandler struct {
	svc         *workflow.Service
	coordinator *draft.Coordinator
}

func NewConnectionsHandler(svc *workflow.Service, coordinator *draft.Coordinator) *ConnectionsHandler {
	return &ConnectionsHandler{svc: svc, coordinator: coordinator}
}

type requestConnectionRequest struct {
	DealID   *string `json:"deal_id,omitempty"`
	ToUserID *string `json:"to_user_id,omitempty"`
}

func (h *ConnectionsHandler) RequestConnection(w http.ResponseWriter, r *http.Request) {
	var req requestConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	conn, err := h.svc.Request(r.Context(), callerClientID(r), req.DealID, req.ToUserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusCreated)
}

// requireOwnership rejects a client acting on someone else's connection.
// Admins pass through.
func (h *ConnectionsHandler) requireOwnership(r *http.Request, id string) error {
	if callerRole(r) == RoleAdmin {
		return nil
	}
	conn, err := h.svc.Get(r.Context(), id)
	if err != nil {
		return err
	}
	if conn.FromUserID != callerClientID(r) {
		return fmt.Errorf("%w: connection %s", repository.ErrNotFound, id)
	}
	return nil
}

func (h *ConnectionsHandler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.requireOwnership(r, id); err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.coordinator.Generate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusOK)
}

type editDraftRequest struct {
	DraftMessage string `json:"draft_message"`
	RowVersion   int64  `json:"row_version,omitempty"`
}

func (h *ConnectionsHandler) EditDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.requireOwnership(r, id); err != nil {
		writeError(w, err)
		return
	}

	var req editDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	conn, err := h.svc.EditDraft(r.Context(), id, req.DraftMessage, req.RowVersion)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusOK)
}

func (h *ConnectionsHandler) ApproveDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conn, err := h.svc.ApproveDraft(r.Context(), id, callerClientID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusOK)
}

func (h *ConnectionsHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	conn, err := h.svc.Send(r.Context(), id, callerClientID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusOK)
}

func (h *ConnectionsHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	f := repository.ConnectionFilter{
		Status:   models.Status(r.URL.Query().Get("status")),
		ClientID: callerClientID(r),
	}

	conns, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if conns == nil {
		conns = []models.Connection{}
	}

	writeJSON(w, map[string]any{"total": len(conns), "items": conns}, http.StatusOK)
}
