package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/middleware"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/service"

	"github.com/gorilla/mux"
)

type AlertHandler struct {
	alertService *service.AlertService
	log          *logger.Logger
}

func NewAlertHandler(alertService *service.AlertService, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		log:          log,
	}
}

func (h *AlertHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/alerts/active", h.GetActiveAlerts).Methods("GET")
	r.HandleFunc("/alerts/history", h.GetAlertHistory).Methods("GET")
	r.HandleFunc("/alerts/{id}/acknowledge", h.Acknowledge).Methods("PUT")
	r.HandleFunc("/alerts/{id}/resolve", h.Resolve).Methods("PUT")
	r.HandleFunc("/alerts/{id}/deliveries", h.GetDeliveries).Methods("GET")
}

func (h *AlertHandler) GetActiveAlerts(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	alerts, err := h.alertService.GetActive(r.Context(), organizationID)
	if err != nil {
		h.log.Error("Failed to get active alerts: %v", err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, alerts)
}

func (h *AlertHandler) GetAlertHistory(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil {
			offset = parsed
		}
	}

	alerts, err := h.alertService.GetHistory(r.Context(), organizationID, limit, offset)
	if err != nil {
		h.log.Error("Failed to get alert history: %v", err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, alerts)
}

func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	alertID := mux.Vars(r)["id"]

	var req models.AcknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}

	alert, err := h.alertService.Acknowledge(r.Context(), organizationID, alertID, req.ActorID)
	if err != nil {
		h.log.Error("Failed to acknowledge alert %s: %v", alertID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	alertID := mux.Vars(r)["id"]

	var req models.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}

	alert, err := h.alertService.Resolve(r.Context(), organizationID, alertID, req.ActorID, req.CorrectiveAction)
	if err != nil {
		h.log.Error("Failed to resolve alert %s: %v", alertID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

func (h *AlertHandler) GetDeliveries(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	alertID := mux.Vars(r)["id"]

	deliveries, err := h.alertService.GetDeliveries(r.Context(), organizationID, alertID)
	if err != nil {
		h.log.Error("Failed to get deliveries for alert %s: %v", alertID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, deliveries)
}
