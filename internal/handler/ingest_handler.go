package handler

import (
	"encoding/json"
	"net/http"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/middleware"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/service"

	"github.com/gorilla/mux"
)

type IngestHandler struct {
	ingestService *service.IngestService
	log           *logger.Logger
}

func NewIngestHandler(ingestService *service.IngestService, log *logger.Logger) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		log:           log,
	}
}

func (h *IngestHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/readings/bulk", h.IngestBulk).Methods("POST")
}

func (h *IngestHandler) IngestBulk(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req models.BulkIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "malformed request body")
		return
	}

	resp, err := h.ingestService.IngestBatch(r.Context(), organizationID, &req)
	if err != nil {
		h.log.Error("Bulk ingest failed for organization %s: %v", organizationID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
