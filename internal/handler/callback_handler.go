package handler

import (
	"encoding/json"
	"net/http"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/service"

	"github.com/gorilla/mux"
)

// CallbackHandler receives asynchronous delivery receipts from SMS and push
// gateways.
type CallbackHandler struct {
	notifyService *service.NotifyService
	log           *logger.Logger
}

func NewCallbackHandler(notifyService *service.NotifyService, log *logger.Logger) *CallbackHandler {
	return &CallbackHandler{
		notifyService: notifyService,
		log:           log,
	}
}

func (h *CallbackHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/notifications/callback", h.DeliveryCallback).Methods("POST")
}

func (h *CallbackHandler) DeliveryCallback(w http.ResponseWriter, r *http.Request) {
	var req models.DeliveryCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}

	if req.ProviderMessageID == "" {
		respondError(w, http.StatusBadRequest, "validation", "provider_message_id is required")
		return
	}

	if err := h.notifyService.HandleCallback(r.Context(), req.ProviderMessageID, req.Status); err != nil {
		h.log.Warn("Delivery callback rejected for %s: %v", req.ProviderMessageID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
