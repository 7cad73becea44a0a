package handler

import (
	"net/http"
	"time"

	"ColdChainAPI/internal/database"
	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	redisx "ColdChainAPI/internal/redis"

	"github.com/gorilla/mux"
)

type HealthHandler struct {
	db            *database.Database
	cache         *redisx.Client
	mqttConnected func() bool
	log           *logger.Logger
}

// NewHealthHandler takes mqttConnected as a closure so health checks work the
// same whether the MQTT bridge is enabled or not.
func NewHealthHandler(db *database.Database, cache *redisx.Client, mqttConnected func() bool, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:            db,
		cache:         cache,
		mqttConnected: mqttConnected,
		log:           log,
	}
}

func (h *HealthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	}

	resp.Services.Database = h.db.Health(r.Context()) == nil
	resp.Services.Redis = redisx.Ping(r.Context(), h.cache) == nil
	resp.Services.MQTT = h.mqttConnected == nil || h.mqttConnected()

	status := http.StatusOK
	if !resp.Services.Database || !resp.Services.Redis {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, resp)
}
