package handler

import (
	"io"
	"net/http"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/service"
	"ColdChainAPI/internal/uplink"

	"github.com/gorilla/mux"
)

// maxUplinkBody bounds webhook payloads; network-server envelopes are small.
const maxUplinkBody = 64 * 1024

type UplinkHandler struct {
	ingestService *service.IngestService
	log           *logger.Logger
}

func NewUplinkHandler(ingestService *service.IngestService, log *logger.Logger) *UplinkHandler {
	return &UplinkHandler{
		ingestService: ingestService,
		log:           log,
	}
}

func (h *UplinkHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/uplinks/lorawan", h.IngestLoRaWAN).Methods("POST")
}

func (h *UplinkHandler) IngestLoRaWAN(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUplinkBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "failed to read request body")
		return
	}

	normalized, err := uplink.NormalizeLoRaWAN(body)
	if err != nil {
		h.log.Warn("Rejected uplink payload: %v", err)
		respondServiceError(w, err)
		return
	}

	resp, err := h.ingestService.IngestUplink(r.Context(), normalized)
	if err != nil {
		h.log.Error("Uplink ingest failed for device %s: %v", normalized.DeviceKey, err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}
