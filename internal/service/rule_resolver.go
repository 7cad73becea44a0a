package service

import (
	"context"
	"fmt"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"
)

// RuleResolver walks the threshold inheritance hierarchy: a unit-scoped rule
// overrides the site rule, which overrides the organization rule.
type RuleResolver struct {
	ruleRepo *repository.RuleRepository
	log      *logger.Logger
}

func NewRuleResolver(ruleRepo *repository.RuleRepository, log *logger.Logger) *RuleResolver {
	return &RuleResolver{
		ruleRepo: ruleRepo,
		log:      log,
	}
}

// Resolve returns the effective rule for a unit. A unit with no rule at any
// level cannot alert; that is a configuration gap and surfaces as ErrNoRule
// rather than being silently ignored.
func (r *RuleResolver) Resolve(ctx context.Context, unit *models.StorageUnit) (*models.AlertRule, error) {
	lookups := []struct {
		scope   string
		scopeID string
	}{
		{models.ScopeUnit, unit.UnitID},
		{models.ScopeSite, unit.SiteID},
		{models.ScopeOrganization, unit.OrganizationID},
	}

	for _, lookup := range lookups {
		rule, err := r.ruleRepo.GetByScope(ctx, lookup.scope, lookup.scopeID)
		if err != nil {
			return nil, err
		}
		if rule != nil {
			return rule, nil
		}
	}

	return nil, fmt.Errorf("%w: unit %s", models.ErrNoRule, unit.UnitID)
}
