package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ColdChainAPI/internal/models"
)

type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// GetByScope returns the rule row for one (scope, scopeID) pair, or nil when
// that level has no override. The resolver walks unit -> site -> organization.
func (r *RuleRepository) GetByScope(ctx context.Context, scope, scopeID string) (*models.AlertRule, error) {
	query := `
		SELECT id, scope, scope_id, temp_min_tenths, temp_max_tenths,
		       duration_minutes, severity, created_at
		FROM alert_rules
		WHERE scope = $1 AND scope_id = $2
	`

	rule := &models.AlertRule{}
	err := r.db.QueryRowContext(ctx, query, scope, scopeID).Scan(
		&rule.ID,
		&rule.Scope,
		&rule.ScopeID,
		&rule.TempMinTenths,
		&rule.TempMaxTenths,
		&rule.DurationMinutes,
		&rule.Severity,
		&rule.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert rule for %s %s: %w", scope, scopeID, err)
	}

	return rule, nil
}
