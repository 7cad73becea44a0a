package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/middleware"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"
	"ColdChainAPI/internal/service"

	"github.com/gorilla/mux"
)

// UnitHandler serves the dashboard read path: live state and recent history
// for one unit.
type UnitHandler struct {
	unitRepo    *repository.UnitRepository
	readingRepo *repository.ReadingRepository
	tracker     *service.StateTracker
	log         *logger.Logger
}

func NewUnitHandler(unitRepo *repository.UnitRepository, readingRepo *repository.ReadingRepository, tracker *service.StateTracker, log *logger.Logger) *UnitHandler {
	return &UnitHandler{
		unitRepo:    unitRepo,
		readingRepo: readingRepo,
		tracker:     tracker,
		log:         log,
	}
}

func (h *UnitHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/units/{id}/state", h.GetState).Methods("GET")
	r.HandleFunc("/units/{id}/readings", h.GetReadings).Methods("GET")
}

func (h *UnitHandler) GetState(w http.ResponseWriter, r *http.Request) {
	unitID, err := h.ownedUnit(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	state, err := h.tracker.GetState(r.Context(), unitID)
	if err != nil {
		h.log.Error("Failed to get state for unit %s: %v", unitID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (h *UnitHandler) GetReadings(w http.ResponseWriter, r *http.Request) {
	unitID, err := h.ownedUnit(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	readings, err := h.readingRepo.GetLatest(r.Context(), unitID, limit)
	if err != nil {
		h.log.Error("Failed to get readings for unit %s: %v", unitID, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, readings)
}

func (h *UnitHandler) ownedUnit(r *http.Request) (string, error) {
	organizationID, ok := middleware.OrganizationFrom(r.Context())
	if !ok {
		return "", fmt.Errorf("%w: authentication required", models.ErrUnauthorized)
	}

	unitID := mux.Vars(r)["id"]
	unit, err := h.unitRepo.GetByID(r.Context(), unitID)
	if err != nil {
		return "", err
	}

	if unit.OrganizationID != organizationID {
		return "", fmt.Errorf("%w: unit %s belongs to another organization", models.ErrForbidden, unitID)
	}

	return unitID, nil
}
