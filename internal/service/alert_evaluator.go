package service

import (
	"context"
	"time"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"
)

// AlertEvaluator drives the alert lifecycle state machine for one unit:
// none -> active -> acknowledged -> resolved, with the escalation tier as an
// orthogonal counter. It runs inside the StateTracker's transaction and only
// ever sees one reading per unit at a time.
type AlertEvaluator struct {
	alertRepo *repository.AlertRepository
	resolver  *RuleResolver
	audit     *AuditService
	escCfg    config.EscalationConfig
	log       *logger.Logger
}

func NewAlertEvaluator(
	alertRepo *repository.AlertRepository,
	resolver *RuleResolver,
	audit *AuditService,
	escCfg config.EscalationConfig,
	log *logger.Logger,
) *AlertEvaluator {
	return &AlertEvaluator{
		alertRepo: alertRepo,
		resolver:  resolver,
		audit:     audit,
		escCfg:    escCfg,
		log:       log,
	}
}

// Evaluate compares the new temperature against the unit's effective rule and
// advances the state machine. It mutates state (breach window, current alert
// pointer) but does not persist it; the caller commits state and alert rows
// in one transaction.
func (e *AlertEvaluator) Evaluate(ctx context.Context, q repository.Querier, unit *models.StorageUnit, state *models.UnitState, tempTenths int, at time.Time) (*models.EvalResult, error) {
	rule, err := e.resolver.Resolve(ctx, unit)
	if err != nil {
		return nil, err
	}

	bound := rule.ViolatedBound(tempTenths)
	if bound == "" {
		return e.handleInRange(ctx, q, unit, state, tempTenths, at)
	}
	return e.handleBreach(ctx, q, unit, state, rule, bound, tempTenths, at)
}

func (e *AlertEvaluator) handleInRange(ctx context.Context, q repository.Querier, unit *models.StorageUnit, state *models.UnitState, tempTenths int, at time.Time) (*models.EvalResult, error) {
	result := &models.EvalResult{}

	if state.BreachSince != nil {
		result.StateChanged = true
	}
	state.BreachSince = nil
	state.BreachBound = nil

	if state.CurrentAlertID == nil {
		return result, nil
	}

	// Temperature returned within bounds: automatic resolution.
	alert, err := e.alertRepo.GetByID(ctx, q, *state.CurrentAlertID, true)
	if err != nil {
		return nil, err
	}

	if err := e.alertRepo.Resolve(ctx, q, alert.ID, nil, nil, at); err != nil {
		return nil, err
	}

	if err := e.audit.Append(ctx, q, unit.OrganizationID, "alert", alert.ID, "alert.auto_resolved", nil, map[string]interface{}{
		"unit_id":            unit.UnitID,
		"temperature_tenths": tempTenths,
		"resolved_at":        at.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	resolvedAt := at
	alert.Status = models.StatusResolved
	alert.ResolvedAt = &resolvedAt
	alert.NextCheckAt = nil

	state.CurrentAlertID = nil
	result.StateChanged = true
	result.AlertResolved = alert

	e.log.Info("Alert %s auto-resolved for unit %s at %.1f°C", alert.ID, unit.UnitID, float64(tempTenths)/10)

	return result, nil
}

func (e *AlertEvaluator) handleBreach(ctx context.Context, q repository.Querier, unit *models.StorageUnit, state *models.UnitState, rule *models.AlertRule, bound string, tempTenths int, at time.Time) (*models.EvalResult, error) {
	result := &models.EvalResult{}

	if state.CurrentAlertID != nil {
		return e.continueAlert(ctx, q, unit, state, result, tempTenths, at)
	}

	// Breach must persist for the rule's duration before an alert opens; a
	// single noisy sample resets nothing but creates nothing either.
	// Crossing the other bound restarts the window.
	if state.BreachSince == nil || state.BreachBound == nil || *state.BreachBound != bound {
		since := at
		state.BreachSince = &since
		state.BreachBound = &bound
		result.StateChanged = true
	}

	held := at.Sub(*state.BreachSince)
	if held < time.Duration(rule.DurationMinutes)*time.Minute {
		return result, nil
	}

	firstCheck := at.Add(e.escCfg.TierIntervals[0])
	alert := &models.Alert{
		UnitID:            unit.UnitID,
		AlertRuleID:       &rule.ID,
		Severity:          rule.Severity,
		Status:            models.StatusActive,
		TriggerTempTenths: tempTenths,
		ThresholdViolated: bound,
		TriggeredAt:       at,
		EscalationLevel:   0,
		NextCheckAt:       &firstCheck,
	}

	if err := e.alertRepo.Create(ctx, q, alert); err != nil {
		return nil, err
	}

	if err := e.audit.Append(ctx, q, unit.OrganizationID, "alert", alert.ID, "alert.triggered", nil, map[string]interface{}{
		"unit_id":            unit.UnitID,
		"rule_id":            rule.ID,
		"threshold_violated": bound,
		"temperature_tenths": tempTenths,
		"triggered_at":       at.UTC().Format(time.RFC3339),
	}); err != nil {
		return nil, err
	}

	state.CurrentAlertID = &alert.ID
	result.StateChanged = true
	result.AlertCreated = alert

	e.log.Warn("Alert triggered for unit %s: %.1f°C violates %s bound (rule %s)",
		unit.UnitID, float64(tempTenths)/10, bound, rule.ID)

	return result, nil
}

// continueAlert handles a further breaching reading while an alert is open:
// at most one open alert per unit, so the existing one is updated in place.
// A re-breach after acknowledgment re-arms the escalation timer.
func (e *AlertEvaluator) continueAlert(ctx context.Context, q repository.Querier, unit *models.StorageUnit, state *models.UnitState, result *models.EvalResult, tempTenths int, at time.Time) (*models.EvalResult, error) {
	alert, err := e.alertRepo.GetByID(ctx, q, *state.CurrentAlertID, true)
	if err != nil {
		return nil, err
	}

	if err := e.alertRepo.UpdateTriggerTemp(ctx, q, alert.ID, tempTenths); err != nil {
		return nil, err
	}

	if alert.Status == models.StatusAcknowledged {
		nextCheck := at.Add(e.escCfg.TierIntervals[0])
		if err := e.alertRepo.Reactivate(ctx, q, alert.ID, nextCheck); err != nil {
			return nil, err
		}

		if err := e.audit.Append(ctx, q, unit.OrganizationID, "alert", alert.ID, "alert.reactivated", nil, map[string]interface{}{
			"unit_id":            unit.UnitID,
			"temperature_tenths": tempTenths,
		}); err != nil {
			return nil, err
		}

		result.StateChanged = true
		e.log.Warn("Acknowledged alert %s re-activated for unit %s", alert.ID, unit.UnitID)
	}

	return result, nil
}
