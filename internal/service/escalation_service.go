package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"
)

const dueBatchSize = 100

// EscalationService walks alerts whose next_check_at has come due and bumps
// them up the escalation ladder. Schedule state lives on the alert row, so a
// restart picks up exactly where the previous process stopped.
type EscalationService struct {
	db        *sql.DB
	alertRepo *repository.AlertRepository
	unitRepo  *repository.UnitRepository
	audit     *AuditService
	notifier  Notifier
	hub       Broadcaster
	cfg       config.EscalationConfig
	log       *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEscalationService(
	db *sql.DB,
	alertRepo *repository.AlertRepository,
	unitRepo *repository.UnitRepository,
	audit *AuditService,
	notifier Notifier,
	hub Broadcaster,
	cfg config.EscalationConfig,
	log *logger.Logger,
) *EscalationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &EscalationService{
		db:        db,
		alertRepo: alertRepo,
		unitRepo:  unitRepo,
		audit:     audit,
		notifier:  notifier,
		hub:       hub,
		cfg:       cfg,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *EscalationService) Start() {
	s.wg.Add(1)
	go s.pollLoop()
	s.log.Info("Escalation poller started (interval: %s, tiers: %d)", s.cfg.PollInterval, len(s.cfg.TierIntervals))
}

func (s *EscalationService) Shutdown() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("Escalation poller stopped")
}

func (s *EscalationService) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runDueChecks()
		}
	}
}

func (s *EscalationService) runDueChecks() {
	due, err := s.alertRepo.GetDue(s.ctx, time.Now(), dueBatchSize)
	if err != nil {
		s.log.Error("Failed to query due escalation checks: %v", err)
		return
	}

	for _, alert := range due {
		if err := s.fireCheck(s.ctx, alert.ID); err != nil {
			s.log.Error("Escalation check failed for alert %s: %v", alert.ID, err)
		}
	}
}

// fireCheck re-reads the alert under lock before acting. An alert that was
// acknowledged or resolved between the due query and this transaction is
// skipped; the check fires as a no-op and is consumed either way.
func (s *EscalationService) fireCheck(ctx context.Context, alertID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	alert, err := s.alertRepo.GetByID(ctx, tx, alertID, true)
	if err != nil {
		return err
	}

	if alert.NextCheckAt == nil || (alert.Status != models.StatusActive && alert.Status != models.StatusEscalated) {
		return tx.Commit()
	}

	unit, err := s.unitRepo.GetByID(ctx, alert.UnitID)
	if err != nil {
		return err
	}

	now := time.Now()
	level := alert.EscalationLevel + 1
	next := s.nextCheckAfter(now, level)

	if err := s.alertRepo.Escalate(ctx, tx, alert.ID, level, next, now); err != nil {
		return err
	}

	payload := map[string]interface{}{
		"unit_id":          unit.UnitID,
		"escalation_level": level,
		"escalated_at":     now.UTC().Format(time.RFC3339),
	}
	if err := s.audit.Append(ctx, tx, unit.OrganizationID, "alert", alert.ID, "alert.escalated", nil, payload); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	alert.Status = models.StatusEscalated
	alert.EscalationLevel = level
	alert.EscalatedAt = &now
	alert.NextCheckAt = next

	if err := s.notifier.EnqueueAlert(ctx, unit, alert, level); err != nil {
		s.log.Error("Failed to enqueue escalation notifications for alert %s: %v", alert.ID, err)
	}

	s.hub.Publish(unit.OrganizationID, models.WSEvent{
		Type:      models.EventAlertEscalated,
		UnitID:    unit.UnitID,
		Timestamp: now,
		Payload:   alert,
	})

	return nil
}

// nextCheckAfter schedules the following check for an alert now at the given
// level. Past the last tier the final interval repeats when configured, else
// the ladder stops.
func (s *EscalationService) nextCheckAfter(now time.Time, level int) *time.Time {
	tiers := s.cfg.TierIntervals
	if len(tiers) == 0 {
		return nil
	}

	var interval time.Duration
	switch {
	case level < len(tiers):
		interval = tiers[level]
	case s.cfg.RepeatFinal:
		interval = tiers[len(tiers)-1]
	default:
		return nil
	}

	next := now.Add(interval)
	return &next
}
