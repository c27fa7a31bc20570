package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/garnizeh/introdesk/internal/draft"
	"github.com/garnizeh/introdesk/internal/models"
	"github.com/garnizeh/introdesk/internal/workflow"
	"github.com/garnizeh/introdesk/pkg/repository"
)

// deleteTimeout bounds deal deletion; past it the outcome is unknown and the
// dashboard must re-fetch to confirm.
const deleteTimeout = 30 * time.Second

// AdminHandler serves the admin dashboard's side of the workflow plus deal
// pipeline management.
type AdminHandler struct {
	svc         *workflow.Service
	coordinator *draft.Coordinator
	deals       repository.DealRepo
	signals     repository.SignalRepo
}

func NewAdminHandler(svc *workflow.Service, coordinator *draft.Coordinator, deals repository.DealRepo, signals repository.SignalRepo) *AdminHandler {
	return &AdminHandler{svc: svc, coordinator: coordinator, deals: deals, signals: signals}
}

func (h *AdminHandler) ApproveConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.svc.Approve(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusOK)
}

func (h *AdminHandler) GenerateDraft(w http.ResponseWriter, r *http.Request) {
	conn, err := h.coordinator.Generate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusOK)
}

func (h *AdminHandler) FinalApprove(w http.ResponseWriter, r *http.Request) {
	conn, err := h.svc.FinalApprove(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, conn, http.StatusOK)
}

func (h *AdminHandler) ListConnections(w http.ResponseWriter, r *http.Request) {
	f := repository.ConnectionFilter{Status: models.Status(r.URL.Query().Get("status"))}

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

type createDealRequest struct {
	ClientID       string                 `json:"client_id"`
	Company        string                 `json:"company"`
	Stage          string                 `json:"stage,omitempty"`
	TargetDealSize int64                  `json:"target_deal_size,omitempty"`
	SignalID       string                 `json:"signal_id,omitempty"`
	PrimaryDM      models.DecisionMaker   `json:"primary_decision_maker"`
	DecisionMakers []models.DecisionMaker `json:"decision_makers,omitempty"`
}

// CreateDeal opens a pipeline opportunity, optionally seeding it from a
// signal (estimated value and headline carry over when the request leaves
// them blank).
func (h *AdminHandler) CreateDeal(w http.ResponseWriter, r *http.Request) {
	var req createDealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		http.Error(w, "client_id is required", http.StatusBadRequest)
		return
	}

	if req.SignalID != "" {
		sig, err := h.signals.GetSignal(r.Context(), req.SignalID)
		if err != nil {
			writeError(w, err)
			return
		}
		if req.TargetDealSize == 0 {
			req.TargetDealSize = sig.EstimatedDealValue
		}
		if req.Company == "" {
			req.Company = sig.Headline
		}
	}
	if req.Company == "" {
		http.Error(w, "company is required", http.StatusBadRequest)
		return
	}
	if req.Stage == "" {
		req.Stage = models.DealStages[0]
	}
	if !models.ValidDealStage(req.Stage) {
		http.Error(w, "unknown stage", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	deal := models.Deal{
		ID:             uuid.NewString(),
		ClientID:       req.ClientID,
		Company:        req.Company,
		Stage:          req.Stage,
		TargetDealSize: req.TargetDealSize,
		PrimaryDM:      req.PrimaryDM,
		DecisionMakers: req.DecisionMakers,
		Created:        now,
		Updated:        now,
		RowVersion:     1,
	}
	if err := h.deals.CreateDeal(r.Context(), &deal); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, deal, http.StatusCreated)
}

type updateStageRequest struct {
	Stage string `json:"stage"`
}

func (h *AdminHandler) UpdateDealStage(w http.ResponseWriter, r *http.Request) {
	var req updateStageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	id := mux.Vars(r)["id"]
	if err := h.deals.UpdateDealStage(r.Context(), id, req.Stage); err != nil {
		writeError(w, err)
		return
	}

	deal, err := h.deals.GetDeal(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, deal, http.StatusOK)
}

// DeleteDeal removes a deal, bounded by deleteTimeout. On timeout the
// operation may still have completed server-side; the response says so
// explicitly instead of guessing an outcome.
func (h *AdminHandler) DeleteDeal(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), deleteTimeout)
	defer cancel()

	err := h.deals.DeleteDeal(ctx, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, repository.ErrTimeout) {
			writeJSON(w, map[string]any{
				"error":   "delete timed out; the deal may or may not have been removed",
				"confirm": "re-fetch the deal list to confirm the actual state",
			}, http.StatusGatewayTimeout)
			return
		}
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
