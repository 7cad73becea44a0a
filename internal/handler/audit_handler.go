package handler

import (
	"net/http"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/middleware"
	"ColdChainAPI/internal/repository"
	"ColdChainAPI/internal/service"

	"github.com/gorilla/mux"
)

type AuditHandler struct {
	auditService *service.AuditService
	auditRepo    *repository.AuditRepository
	log          *logger.Logger
}

func NewAuditHandler(auditService *service.AuditService, auditRepo *repository.AuditRepository, log *logger.Logger) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		auditRepo:    auditRepo,
		log:          log,
	}
}

func (h *AuditHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/audit/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/audit/verify", h.VerifyChain).Methods("GET")
}

func (h *AuditHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	events, err := h.auditRepo.ListByOrganization(r.Context(), organizationID)
	if err != nil {
		h.log.Error("Failed to list audit events: %v", err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *AuditHandler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	report, err := h.auditService.VerifyChain(r.Context(), organizationID)
	if err != nil {
		h.log.Error("Audit chain verification errored for %s: %v", organizationID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
