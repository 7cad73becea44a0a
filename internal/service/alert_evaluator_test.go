package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alertCols = []string{"id", "unit_id", "alert_rule_id", "severity", "status",
	"trigger_temperature_tenths", "threshold_violated", "triggered_at",
	"acknowledged_at", "acknowledged_by", "resolved_at", "resolved_by",
	"corrective_action", "escalated_at", "escalation_level", "next_check_at",
	"created_at", "updated_at"}

func newTestEvaluator(t *testing.T, db *sql.DB) *AlertEvaluator {
	t.Helper()
	return NewAlertEvaluator(
		repository.NewAlertRepository(db),
		NewRuleResolver(repository.NewRuleRepository(db), newTestLogger(t)),
		NewAuditService(repository.NewAuditRepository(db), newTestLogger(t)),
		config.EscalationConfig{
			TierIntervals: []time.Duration{15 * time.Minute, 30 * time.Minute},
			RepeatFinal:   true,
			PollInterval:  30 * time.Second,
		},
		newTestLogger(t),
	)
}

// expectUnitRule queues the resolver's unit-scope lookup returning a rule
// with range [0, 10.0]°C and the given breach duration.
func expectUnitRule(mock sqlmock.Sqlmock, durationMinutes int) {
	mock.ExpectQuery("FROM alert_rules").WithArgs(models.ScopeUnit, "unit-1").
		WillReturnRows(sqlmock.NewRows(ruleCols).
			AddRow("rule-u", models.ScopeUnit, "unit-1", 0, 100, durationMinutes, models.SeverityWarning, time.Now()))
}

func expectAuditAppend(mock sqlmock.Sqlmock) {
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT hash FROM audit_events").WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"hash"}))
	mock.ExpectQuery("INSERT INTO audit_events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
}

func TestEvaluateFirstBreachOpensWindowOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 15)

	state := &models.UnitState{UnitID: "unit-1"}
	now := time.Now()

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, 150, now)
	require.NoError(t, err)

	assert.Nil(t, result.AlertCreated)
	assert.True(t, result.StateChanged)
	require.NotNil(t, state.BreachSince)
	assert.Equal(t, now, *state.BreachSince)
	require.NotNil(t, state.BreachBound)
	assert.Equal(t, models.BoundMax, *state.BreachBound)
	assert.Nil(t, state.CurrentAlertID)
}

func TestEvaluateBreachHeldForDurationCreatesAlert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 15)
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditAppend(mock)

	now := time.Now()
	breachStart := now.Add(-16 * time.Minute)
	bound := models.BoundMax
	state := &models.UnitState{
		UnitID:      "unit-1",
		BreachSince: &breachStart,
		BreachBound: &bound,
	}

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, 152, now)
	require.NoError(t, err)

	require.NotNil(t, result.AlertCreated)
	alert := result.AlertCreated
	assert.Equal(t, models.StatusActive, alert.Status)
	assert.Equal(t, 152, alert.TriggerTempTenths)
	assert.Equal(t, models.BoundMax, alert.ThresholdViolated)
	assert.Equal(t, 0, alert.EscalationLevel)
	require.NotNil(t, alert.NextCheckAt)
	assert.Equal(t, now.Add(15*time.Minute), *alert.NextCheckAt)
	require.NotNil(t, state.CurrentAlertID)
	assert.Equal(t, alert.ID, *state.CurrentAlertID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateZeroDurationTriggersImmediately(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 0)
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditAppend(mock)

	state := &models.UnitState{UnitID: "unit-1"}

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, -20, time.Now())
	require.NoError(t, err)

	require.NotNil(t, result.AlertCreated)
	assert.Equal(t, models.BoundMin, result.AlertCreated.ThresholdViolated)
}

func TestEvaluateOppositeBoundRestartsWindow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 15)

	now := time.Now()
	oldStart := now.Add(-30 * time.Minute)
	oldBound := models.BoundMax
	state := &models.UnitState{
		UnitID:      "unit-1",
		BreachSince: &oldStart,
		BreachBound: &oldBound,
	}

	// Temperature swung below the minimum: the held max-breach does not count.
	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, -20, now)
	require.NoError(t, err)

	assert.Nil(t, result.AlertCreated)
	assert.Equal(t, now, *state.BreachSince)
	assert.Equal(t, models.BoundMin, *state.BreachBound)
}

func TestEvaluateOpenAlertSuppressesNewOne(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 0)

	now := time.Now()
	mock.ExpectQuery("FROM alerts WHERE id").WithArgs("alert-1").
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow("alert-1", "unit-1", nil, models.SeverityWarning, models.StatusActive,
				150, models.BoundMax, now.Add(-time.Hour),
				nil, nil, nil, nil, nil, nil, 0, now.Add(time.Minute), now, now))
	mock.ExpectExec("UPDATE alerts").WithArgs("alert-1", 160).
		WillReturnResult(sqlmock.NewResult(0, 1))

	alertID := "alert-1"
	state := &models.UnitState{UnitID: "unit-1", CurrentAlertID: &alertID}

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, 160, now)
	require.NoError(t, err)

	assert.Nil(t, result.AlertCreated)
	assert.Equal(t, "alert-1", *state.CurrentAlertID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateAcknowledgedAlertReactivatesOnBreach(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 0)

	now := time.Now()
	ackAt := now.Add(-10 * time.Minute)
	mock.ExpectQuery("FROM alerts WHERE id").WithArgs("alert-1").
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow("alert-1", "unit-1", nil, models.SeverityWarning, models.StatusAcknowledged,
				150, models.BoundMax, now.Add(-time.Hour),
				ackAt, "tech-7", nil, nil, nil, nil, 0, nil, now, now))
	mock.ExpectExec("UPDATE alerts").WithArgs("alert-1", 155).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE alerts").
		WithArgs("alert-1", models.StatusActive, now.Add(15*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditAppend(mock)

	alertID := "alert-1"
	state := &models.UnitState{UnitID: "unit-1", CurrentAlertID: &alertID}

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, 155, now)
	require.NoError(t, err)

	assert.True(t, result.StateChanged)
	assert.Nil(t, result.AlertCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateReturnToRangeAutoResolves(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 0)

	now := time.Now()
	mock.ExpectQuery("FROM alerts WHERE id").WithArgs("alert-1").
		WillReturnRows(sqlmock.NewRows(alertCols).
			AddRow("alert-1", "unit-1", nil, models.SeverityWarning, models.StatusActive,
				150, models.BoundMax, now.Add(-time.Hour),
				nil, nil, nil, nil, nil, nil, 1, now.Add(time.Minute), now, now))
	mock.ExpectExec("UPDATE alerts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditAppend(mock)

	alertID := "alert-1"
	breachStart := now.Add(-time.Hour)
	bound := models.BoundMax
	state := &models.UnitState{
		UnitID:         "unit-1",
		CurrentAlertID: &alertID,
		BreachSince:    &breachStart,
		BreachBound:    &bound,
	}

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, 50, now)
	require.NoError(t, err)

	require.NotNil(t, result.AlertResolved)
	assert.Equal(t, models.StatusResolved, result.AlertResolved.Status)
	assert.Nil(t, result.AlertResolved.ResolvedBy)
	assert.Nil(t, state.CurrentAlertID)
	assert.Nil(t, state.BreachSince)
	assert.Nil(t, state.BreachBound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEvaluateReturnToRangeClearsWindowWithStateChange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 15)

	since := time.Now().Add(-5 * time.Minute)
	bound := models.BoundMax
	state := &models.UnitState{UnitID: "unit-1", BreachSince: &since, BreachBound: &bound}

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, 40, time.Now())
	require.NoError(t, err)

	// Closing a pending window is a state change just like opening one.
	assert.True(t, result.StateChanged)
	assert.Nil(t, state.BreachSince)
	assert.Nil(t, state.BreachBound)
	assert.Nil(t, result.AlertCreated)
	assert.Nil(t, result.AlertResolved)
}

func TestEvaluateInRangeNoAlertIsQuiet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	evaluator := newTestEvaluator(t, db)
	expectUnitRule(mock, 15)

	state := &models.UnitState{UnitID: "unit-1"}

	result, err := evaluator.Evaluate(context.Background(), db, testUnit(), state, 40, time.Now())
	require.NoError(t, err)

	assert.Nil(t, result.AlertCreated)
	assert.Nil(t, result.AlertResolved)
	assert.False(t, result.StateChanged)
	assert.Nil(t, state.CurrentAlertID)
}
