package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"

	"github.com/go-redis/redis/v8"
)

// Broadcaster pushes events to live clients. Best-effort: implementations
// must never block or fail the caller.
type Broadcaster interface {
	Publish(organizationID string, event models.WSEvent)
}

// Notifier queues alert notifications for delivery.
type Notifier interface {
	EnqueueAlert(ctx context.Context, unit *models.StorageUnit, alert *models.Alert, tier int) error
}

// StateTracker is the single source of truth for unit state. It is the only
// code path that writes unit_state rows and the only caller of the evaluator.
// Per-unit evaluations are serialized with a keyed mutex; different units
// proceed fully in parallel.
type StateTracker struct {
	db        *sql.DB
	unitRepo  *repository.UnitRepository
	alertRepo *repository.AlertRepository
	evaluator *AlertEvaluator
	audit     *AuditService
	cache     *redis.Client
	hub       Broadcaster
	notifier  Notifier
	log       *logger.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStateTracker(
	db *sql.DB,
	unitRepo *repository.UnitRepository,
	alertRepo *repository.AlertRepository,
	evaluator *AlertEvaluator,
	audit *AuditService,
	cache *redis.Client,
	hub Broadcaster,
	log *logger.Logger,
) *StateTracker {
	return &StateTracker{
		db:        db,
		unitRepo:  unitRepo,
		alertRepo: alertRepo,
		evaluator: evaluator,
		audit:     audit,
		cache:     cache,
		hub:       hub,
		log:       log,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetNotifier wires the delivery pipeline in after construction; the
// notifier also depends on repositories built alongside the tracker.
func (t *StateTracker) SetNotifier(n Notifier) {
	t.notifier = n
}

func (t *StateTracker) lockFor(unitID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, exists := t.locks[unitID]
	if !exists {
		lock = &sync.Mutex{}
		t.locks[unitID] = lock
	}
	return lock
}

// ApplyReading folds one stored reading into the unit's live state and runs
// the evaluator. Monotonic by recordedAt: a reading older than the current
// last_reading_at stays in history but does not move state or retrigger
// evaluation.
func (t *StateTracker) ApplyReading(ctx context.Context, unit *models.StorageUnit, tempTenths int, recordedAt time.Time) (*models.EvalResult, error) {
	lock := t.lockFor(unit.UnitID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin state transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := t.unitRepo.GetState(ctx, tx, unit.UnitID, true)
	if err != nil {
		return nil, err
	}

	if state.LastReadingAt != nil && recordedAt.Before(*state.LastReadingAt) {
		t.log.Debug("Out-of-order reading for unit %s (%s < %s), history only",
			unit.UnitID, recordedAt.Format(time.RFC3339), state.LastReadingAt.Format(time.RFC3339))
		return &models.EvalResult{}, nil
	}

	state.LastTempTenths = &tempTenths
	state.LastReadingAt = &recordedAt

	result, err := t.evaluator.Evaluate(ctx, tx, unit, state, tempTenths, recordedAt)
	if err != nil {
		return nil, err
	}

	if err := t.unitRepo.UpsertState(ctx, tx, state); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit state transaction: %w", err)
	}

	t.cacheState(ctx, state)
	t.publishResult(unit, result)

	return result, nil
}

// ResolveManually closes an alert on explicit human action. It lives on the
// tracker because clearing current_alert_id is a unit_state write, and that
// is this component's exclusive right.
func (t *StateTracker) ResolveManually(ctx context.Context, unit *models.StorageUnit, alertID, actorID string, note *string) (*models.Alert, error) {
	lock := t.lockFor(unit.UnitID)
	lock.Lock()
	defer lock.Unlock()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin resolve transaction: %w", err)
	}
	defer tx.Rollback()

	alert, err := t.alertRepo.GetByID(ctx, tx, alertID, true)
	if err != nil {
		return nil, err
	}

	if alert.Status == models.StatusResolved {
		// Terminal state; resolving twice is a no-op.
		return alert, tx.Commit()
	}

	now := time.Now()
	if err := t.alertRepo.Resolve(ctx, tx, alert.ID, &actorID, note, now); err != nil {
		return nil, err
	}

	state, err := t.unitRepo.GetState(ctx, tx, unit.UnitID, true)
	if err != nil {
		return nil, err
	}

	if state.CurrentAlertID != nil && *state.CurrentAlertID == alert.ID {
		state.CurrentAlertID = nil
		state.BreachSince = nil
		state.BreachBound = nil
		if err := t.unitRepo.UpsertState(ctx, tx, state); err != nil {
			return nil, err
		}
	}

	payload := map[string]interface{}{
		"unit_id":     unit.UnitID,
		"resolved_at": now.UTC().Format(time.RFC3339),
	}
	if note != nil {
		payload["corrective_action"] = *note
	}
	if err := t.audit.Append(ctx, tx, unit.OrganizationID, "alert", alert.ID, "alert.resolved", &actorID, payload); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resolve transaction: %w", err)
	}

	alert.Status = models.StatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = &actorID
	alert.CorrectiveAction = note
	alert.NextCheckAt = nil

	t.cacheState(ctx, state)
	t.hub.Publish(unit.OrganizationID, models.WSEvent{
		Type:      models.EventAlertResolved,
		UnitID:    unit.UnitID,
		Timestamp: now,
		Payload:   alert,
	})

	return alert, nil
}

// GetState reads the live state row; used by the read API, never for writes.
func (t *StateTracker) GetState(ctx context.Context, unitID string) (*models.UnitState, error) {
	return t.unitRepo.GetState(ctx, t.db, unitID, false)
}

// cacheState mirrors the committed row into redis for cheap dashboard reads.
// Failures are logged and ignored; the database row stays authoritative.
func (t *StateTracker) cacheState(ctx context.Context, state *models.UnitState) {
	if t.cache == nil {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		return
	}

	if err := t.cache.Set(ctx, "coldchain:state:"+state.UnitID, data, time.Hour).Err(); err != nil {
		t.log.Debug("Failed to cache unit state for %s: %v", state.UnitID, err)
	}
}

func (t *StateTracker) publishResult(unit *models.StorageUnit, result *models.EvalResult) {
	if result.AlertCreated != nil {
		t.hub.Publish(unit.OrganizationID, models.WSEvent{
			Type:      models.EventAlertCreated,
			UnitID:    unit.UnitID,
			Timestamp: time.Now(),
			Payload:   result.AlertCreated,
		})
		if t.notifier != nil {
			if err := t.notifier.EnqueueAlert(context.Background(), unit, result.AlertCreated, 0); err != nil {
				t.log.Error("Failed to enqueue notifications for alert %s: %v", result.AlertCreated.ID, err)
			}
		}
	}
	if result.AlertResolved != nil {
		t.hub.Publish(unit.OrganizationID, models.WSEvent{
			Type:      models.EventAlertResolved,
			UnitID:    unit.UnitID,
			Timestamp: time.Now(),
			Payload:   result.AlertResolved,
		})
	}
}
