package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ColdChainAPI/internal/models"

	"github.com/google/uuid"
)

const alertColumns = `
	id, unit_id, alert_rule_id, severity, status,
	trigger_temperature_tenths, threshold_violated, triggered_at,
	acknowledged_at, acknowledged_by, resolved_at, resolved_by,
	corrective_action, escalated_at, escalation_level, next_check_at,
	created_at, updated_at`

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a freshly triggered alert. Runs inside the caller's
// evaluation transaction so the unit_state pointer and the alert row commit
// together.
func (r *AlertRepository) Create(ctx context.Context, q Querier, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}

	now := time.Now()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	query := `
		INSERT INTO alerts (
			id, unit_id, alert_rule_id, severity, status,
			trigger_temperature_tenths, threshold_violated, triggered_at,
			escalation_level, next_check_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := q.ExecContext(
		ctx, query,
		alert.ID,
		alert.UnitID,
		alert.AlertRuleID,
		alert.Severity,
		alert.Status,
		alert.TriggerTempTenths,
		alert.ThresholdViolated,
		alert.TriggeredAt,
		alert.EscalationLevel,
		alert.NextCheckAt,
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

func (r *AlertRepository) GetByID(ctx context.Context, q Querier, id string, forUpdate bool) (*models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}

	alert, err := scanAlertRow(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: alert %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// UpdateTriggerTemp records the latest breaching temperature on an already
// open alert without creating a new one.
func (r *AlertRepository) UpdateTriggerTemp(ctx context.Context, q Querier, id string, tempTenths int) error {
	query := `
		UPDATE alerts
		SET trigger_temperature_tenths = $2, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.ExecContext(ctx, query, id, tempTenths); err != nil {
		return fmt.Errorf("failed to update trigger temperature: %w", err)
	}
	return nil
}

// Acknowledge marks the alert seen by a human and cancels the pending
// escalation check.
func (r *AlertRepository) Acknowledge(ctx context.Context, q Querier, id, actorID string, at time.Time) error {
	query := `
		UPDATE alerts
		SET status = $2, acknowledged_at = $3, acknowledged_by = $4,
		    next_check_at = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.ExecContext(ctx, query, id, models.StatusAcknowledged, at, actorID); err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return nil
}

// Reactivate flips an acknowledged alert back to active after a re-breach and
// re-arms its escalation timer.
func (r *AlertRepository) Reactivate(ctx context.Context, q Querier, id string, nextCheckAt time.Time) error {
	query := `
		UPDATE alerts
		SET status = $2, next_check_at = $3, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.ExecContext(ctx, query, id, models.StatusActive, nextCheckAt); err != nil {
		return fmt.Errorf("failed to reactivate alert: %w", err)
	}
	return nil
}

// Resolve closes the alert. actorID is nil for automatic resolution when the
// temperature returns within bounds.
func (r *AlertRepository) Resolve(ctx context.Context, q Querier, id string, actorID, note *string, at time.Time) error {
	query := `
		UPDATE alerts
		SET status = $2, resolved_at = $3, resolved_by = $4,
		    corrective_action = $5, next_check_at = NULL, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.ExecContext(ctx, query, id, models.StatusResolved, at, actorID, note); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return nil
}

// Escalate advances the escalation tier. nextCheckAt nil stops further
// checks (terminal tier configured not to repeat).
func (r *AlertRepository) Escalate(ctx context.Context, q Querier, id string, level int, nextCheckAt *time.Time, at time.Time) error {
	query := `
		UPDATE alerts
		SET status = $2, escalation_level = $3, escalated_at = $4,
		    next_check_at = $5, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := q.ExecContext(ctx, query, id, models.StatusEscalated, level, at, nextCheckAt); err != nil {
		return fmt.Errorf("failed to escalate alert: %w", err)
	}
	return nil
}

// GetDue returns open alerts whose escalation check has come due. The fired
// check re-reads status before acting, so a stale row here is harmless.
func (r *AlertRepository) GetDue(ctx context.Context, now time.Time, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT` + alertColumns + `
		FROM alerts
		WHERE status IN ($1, $2) AND next_check_at IS NOT NULL AND next_check_at <= $3
		ORDER BY next_check_at ASC
		LIMIT $4
	`

	rows, err := r.db.QueryContext(ctx, query, models.StatusActive, models.StatusEscalated, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetActiveByOrganization lists open alerts for all of a tenant's units.
func (r *AlertRepository) GetActiveByOrganization(ctx context.Context, organizationID string) ([]models.Alert, error) {
	query := `SELECT` + alertColumns + `
		FROM alerts
		WHERE status != $1
		  AND unit_id IN (SELECT unit_id FROM storage_units WHERE organization_id = $2)
		ORDER BY triggered_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, models.StatusResolved, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetHistory pages through a tenant's alerts, newest first.
func (r *AlertRepository) GetHistory(ctx context.Context, organizationID string, limit, offset int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT` + alertColumns + `
		FROM alerts
		WHERE unit_id IN (SELECT unit_id FROM storage_units WHERE organization_id = $1)
		ORDER BY triggered_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertRow(row rowScanner) (*models.Alert, error) {
	alert := &models.Alert{}
	err := row.Scan(
		&alert.ID,
		&alert.UnitID,
		&alert.AlertRuleID,
		&alert.Severity,
		&alert.Status,
		&alert.TriggerTempTenths,
		&alert.ThresholdViolated,
		&alert.TriggeredAt,
		&alert.AcknowledgedAt,
		&alert.AcknowledgedBy,
		&alert.ResolvedAt,
		&alert.ResolvedBy,
		&alert.CorrectiveAction,
		&alert.EscalatedAt,
		&alert.EscalationLevel,
		&alert.NextCheckAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func scanAlerts(rows *sql.Rows) ([]models.Alert, error) {
	alerts := []models.Alert{}
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}
