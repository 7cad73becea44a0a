package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	redisx "ColdChainAPI/internal/redis"
	"ColdChainAPI/internal/repository"
	"ColdChainAPI/internal/uplink"

	"github.com/google/uuid"
)

// IngestService is the single entry point for readings from every source:
// the bulk HTTP endpoint, the network-server webhook and the MQTT bridge.
// All three converge on the same normalize, dedup, store, evaluate pipeline.
type IngestService struct {
	cache       *redisx.Client
	readingRepo *repository.ReadingRepository
	unitRepo    *repository.UnitRepository
	tracker     *StateTracker
	hub         Broadcaster
	dedupTTL    time.Duration
	log         *logger.Logger
}

func NewIngestService(
	cache *redisx.Client,
	readingRepo *repository.ReadingRepository,
	unitRepo *repository.UnitRepository,
	tracker *StateTracker,
	hub Broadcaster,
	dedupTTL time.Duration,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		cache:       cache,
		readingRepo: readingRepo,
		unitRepo:    unitRepo,
		tracker:     tracker,
		hub:         hub,
		dedupTTL:    dedupTTL,
		log:         log,
	}
}

// IngestBatch validates, stores and evaluates a tenant's batch of readings.
// Validation is all-or-nothing: one malformed reading or one unit outside the
// tenant rejects the whole batch before anything is written. Redelivered
// duplicates are silently dropped and excluded from the inserted count.
func (s *IngestService) IngestBatch(ctx context.Context, organizationID string, req *models.BulkIngestRequest) (*models.BulkIngestResponse, error) {
	if req == nil || len(req.Readings) == 0 {
		return nil, fmt.Errorf("%w: readings batch is empty", models.ErrValidation)
	}

	readings := make([]models.Reading, 0, len(req.Readings))
	unitIDs := make([]string, 0, len(req.Readings))
	for i, raw := range req.Readings {
		reading, err := uplink.NormalizeAPIReading(raw)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
		reading.ID = uuid.New().String()
		readings = append(readings, *reading)
		unitIDs = append(unitIDs, reading.UnitID)
	}

	if err := s.unitRepo.VerifyOwnership(ctx, organizationID, unitIDs); err != nil {
		return nil, err
	}

	fresh := s.filterDuplicates(ctx, readings)

	ids, inserted, err := s.readingRepo.InsertBatch(ctx, fresh)
	if err != nil {
		return nil, err
	}

	stored := make(map[string]bool, len(ids))
	for _, id := range ids {
		stored[id] = true
	}

	alertsTriggered := 0
	for i := range fresh {
		if !stored[fresh[i].ID] {
			continue
		}
		if s.applyReading(ctx, organizationID, &fresh[i]) {
			alertsTriggered++
		}
	}

	return &models.BulkIngestResponse{
		Success:         true,
		InsertedCount:   inserted,
		ReadingIDs:      ids,
		AlertsTriggered: alertsTriggered,
	}, nil
}

// IngestUplink stores one normalized network uplink. The device key is
// resolved to a unit here, not at the edge, so gateway payloads never need to
// know unit identifiers.
func (s *IngestService) IngestUplink(ctx context.Context, nu *uplink.NormalizedUplink) (*models.UplinkResponse, error) {
	unit, err := s.unitRepo.GetByDeviceKey(ctx, nu.DeviceKey)
	if err != nil {
		return nil, err
	}

	reading := nu.Reading
	reading.ID = uuid.New().String()
	reading.UnitID = unit.UnitID

	fresh := s.filterDuplicates(ctx, []models.Reading{reading})
	if len(fresh) == 0 {
		return &models.UplinkResponse{Success: true}, nil
	}

	ids, _, err := s.readingRepo.InsertBatch(ctx, fresh)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &models.UplinkResponse{Success: true}, nil
	}

	resp := &models.UplinkResponse{Success: true, ReadingID: ids[0]}
	if s.applyReading(ctx, unit.OrganizationID, &fresh[0]) {
		resp.AlertsTriggered = 1
	}

	return resp, nil
}

// applyReading feeds one stored reading through the state tracker and pushes
// the realtime event. Evaluation failures never fail ingestion: the reading
// is already durable and history must not depend on alerting health.
func (s *IngestService) applyReading(ctx context.Context, organizationID string, reading *models.Reading) bool {
	unit, err := s.unitRepo.GetByID(ctx, reading.UnitID)
	if err != nil {
		s.log.Error("Failed to load unit %s after insert: %v", reading.UnitID, err)
		return false
	}

	result, err := s.tracker.ApplyReading(ctx, unit, reading.TemperatureTenths, reading.RecordedAt)
	if err != nil {
		if errors.Is(err, models.ErrNoRule) {
			s.log.Debug("No alert rule covers unit %s, stored without evaluation", reading.UnitID)
		} else {
			s.log.Error("Evaluation failed for unit %s: %v", reading.UnitID, err)
		}
		result = &models.EvalResult{}
	}

	s.hub.Publish(organizationID, models.WSEvent{
		Type:      models.EventReading,
		UnitID:    reading.UnitID,
		Timestamp: time.Now(),
		Payload:   reading,
	})

	return result.AlertCreated != nil
}

// filterDuplicates drops readings whose (unit, source, recorded_at) triple was
// seen within the dedup window. Redis being down fails open: everything passes
// and the storage unique index catches redeliveries instead.
func (s *IngestService) filterDuplicates(ctx context.Context, readings []models.Reading) []models.Reading {
	fresh := make([]models.Reading, 0, len(readings))
	for _, reading := range readings {
		key := dedupKey(&reading)
		ok, err := s.cache.SetNX(ctx, key, 1, s.dedupTTL).Result()
		if err != nil {
			s.log.Warn("Dedup check unavailable for %s: %v", key, err)
			fresh = append(fresh, reading)
			continue
		}
		if !ok {
			s.log.Debug("Dropping duplicate reading %s", key)
			continue
		}
		fresh = append(fresh, reading)
	}
	return fresh
}

func dedupKey(reading *models.Reading) string {
	return fmt.Sprintf("coldchain:dedup:%s:%s:%d",
		reading.UnitID, reading.Source, reading.RecordedAt.UTC().UnixNano())
}
