package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"
)

// AlertService is the human-facing side of the alert lifecycle: acknowledge,
// resolve, and the tenant-scoped read endpoints. Automatic transitions live
// in the evaluator and escalation poller.
type AlertService struct {
	db           *sql.DB
	alertRepo    *repository.AlertRepository
	unitRepo     *repository.UnitRepository
	deliveryRepo *repository.DeliveryRepository
	audit        *AuditService
	tracker      *StateTracker
	hub          Broadcaster
	log          *logger.Logger
}

func NewAlertService(
	db *sql.DB,
	alertRepo *repository.AlertRepository,
	unitRepo *repository.UnitRepository,
	deliveryRepo *repository.DeliveryRepository,
	audit *AuditService,
	tracker *StateTracker,
	hub Broadcaster,
	log *logger.Logger,
) *AlertService {
	return &AlertService{
		db:           db,
		alertRepo:    alertRepo,
		unitRepo:     unitRepo,
		deliveryRepo: deliveryRepo,
		audit:        audit,
		tracker:      tracker,
		hub:          hub,
		log:          log,
	}
}

// Acknowledge marks an alert as seen and cancels its escalation timer.
// Acknowledging twice is a no-op; acknowledging a resolved alert is an error.
func (s *AlertService) Acknowledge(ctx context.Context, organizationID, alertID, actorID string) (*models.Alert, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor_id is required", models.ErrValidation)
	}

	unit, err := s.ownedUnit(ctx, organizationID, alertID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin acknowledge transaction: %w", err)
	}
	defer tx.Rollback()

	alert, err := s.alertRepo.GetByID(ctx, tx, alertID, true)
	if err != nil {
		return nil, err
	}

	switch alert.Status {
	case models.StatusAcknowledged:
		return alert, tx.Commit()
	case models.StatusResolved:
		return nil, fmt.Errorf("%w: alert %s is already resolved", models.ErrUnprocessable, alertID)
	}

	now := time.Now()
	if err := s.alertRepo.Acknowledge(ctx, tx, alertID, actorID, now); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"unit_id":         unit.UnitID,
		"acknowledged_at": now.UTC().Format(time.RFC3339),
	}
	if err := s.audit.Append(ctx, tx, unit.OrganizationID, "alert", alertID, "alert.acknowledged", &actorID, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acknowledge transaction: %w", err)
	}

	alert.Status = models.StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = &actorID
	alert.NextCheckAt = nil

	s.hub.Publish(unit.OrganizationID, models.WSEvent{
		Type:      models.EventAlertAcknowledged,
		UnitID:    unit.UnitID,
		Timestamp: now,
		Payload:   alert,
	})

	return alert, nil
}

// Resolve closes an alert on operator action. Delegated to the state tracker,
// which owns the unit_state row the resolution must clear.
func (s *AlertService) Resolve(ctx context.Context, organizationID, alertID, actorID string, correctiveAction string) (*models.Alert, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor_id is required", models.ErrValidation)
	}

	unit, err := s.ownedUnit(ctx, organizationID, alertID)
	if err != nil {
		return nil, err
	}

	var note *string
	if correctiveAction != "" {
		note = &correctiveAction
	}

	return s.tracker.ResolveManually(ctx, unit, alertID, actorID, note)
}

func (s *AlertService) GetActive(ctx context.Context, organizationID string) ([]models.Alert, error) {
	return s.alertRepo.GetActiveByOrganization(ctx, organizationID)
}

func (s *AlertService) GetHistory(ctx context.Context, organizationID string, limit, offset int) ([]models.Alert, error) {
	return s.alertRepo.GetHistory(ctx, organizationID, limit, offset)
}

func (s *AlertService) GetDeliveries(ctx context.Context, organizationID, alertID string) ([]models.NotificationDelivery, error) {
	if _, err := s.ownedUnit(ctx, organizationID, alertID); err != nil {
		return nil, err
	}
	return s.deliveryRepo.GetByAlert(ctx, alertID)
}

// ownedUnit loads the alert's unit and enforces tenant scoping: an alert on
// another organization's unit is forbidden, not merely absent.
func (s *AlertService) ownedUnit(ctx context.Context, organizationID, alertID string) (*models.StorageUnit, error) {
	alert, err := s.alertRepo.GetByID(ctx, s.db, alertID, false)
	if err != nil {
		return nil, err
	}

	unit, err := s.unitRepo.GetByID(ctx, alert.UnitID)
	if err != nil {
		return nil, err
	}

	if unit.OrganizationID != organizationID {
		return nil, fmt.Errorf("%w: alert %s belongs to another organization", models.ErrForbidden, alertID)
	}

	return unit, nil
}
