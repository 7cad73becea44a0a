package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ColdChainAPI/internal/models"
)

type UnitRepository struct {
	db *sql.DB
}

func NewUnitRepository(db *sql.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) GetByID(ctx context.Context, unitID string) (*models.StorageUnit, error) {
	query := `
		SELECT unit_id, organization_id, site_id, name, created_at
		FROM storage_units
		WHERE unit_id = $1
	`

	unit := &models.StorageUnit{}
	err := r.db.QueryRowContext(ctx, query, unitID).Scan(
		&unit.UnitID,
		&unit.OrganizationID,
		&unit.SiteID,
		&unit.Name,
		&unit.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: unit %s", models.ErrNotFound, unitID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}

	return unit, nil
}

// GetByDeviceKey resolves a unit from device identity: hardware EUI first,
// logical device id second.
func (r *UnitRepository) GetByDeviceKey(ctx context.Context, deviceKey string) (*models.StorageUnit, error) {
	query := `
		SELECT u.unit_id, u.organization_id, u.site_id, u.name, u.created_at
		FROM devices d
		JOIN storage_units u ON u.unit_id = d.unit_id
		WHERE d.dev_eui = $1 OR d.device_id = $1
		LIMIT 1
	`

	unit := &models.StorageUnit{}
	err := r.db.QueryRowContext(ctx, query, deviceKey).Scan(
		&unit.UnitID,
		&unit.OrganizationID,
		&unit.SiteID,
		&unit.Name,
		&unit.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: device %s", models.ErrNotFound, deviceKey)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device: %w", err)
	}

	return unit, nil
}

// VerifyOwnership checks every unit in the batch against the tenant. A single
// unknown or foreign unit fails the whole batch: ErrNotFound for units that
// do not exist, ErrForbidden for units owned by another organization.
func (r *UnitRepository) VerifyOwnership(ctx context.Context, organizationID string, unitIDs []string) error {
	if len(unitIDs) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(unitIDs))
	distinct := make([]string, 0, len(unitIDs))
	for _, id := range unitIDs {
		if !seen[id] {
			seen[id] = true
			distinct = append(distinct, id)
		}
	}

	placeholders := make([]string, len(distinct))
	args := make([]interface{}, len(distinct))
	for i, id := range distinct {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT unit_id, organization_id
		FROM storage_units
		WHERE unit_id IN (%s)
	`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to verify unit ownership: %w", err)
	}
	defer rows.Close()

	owners := make(map[string]string, len(distinct))
	for rows.Next() {
		var unitID, orgID string
		if err := rows.Scan(&unitID, &orgID); err != nil {
			return fmt.Errorf("failed to scan unit ownership: %w", err)
		}
		owners[unitID] = orgID
	}

	for _, id := range distinct {
		owner, exists := owners[id]
		if !exists {
			return fmt.Errorf("%w: unit %s", models.ErrNotFound, id)
		}
		if owner != organizationID {
			return fmt.Errorf("%w: unit %s belongs to another organization", models.ErrForbidden, id)
		}
	}

	return nil
}

// GetState loads the live state row for a unit, creating an empty one when
// the unit has never reported. forUpdate locks the row for the duration of
// the caller's transaction.
func (r *UnitRepository) GetState(ctx context.Context, q Querier, unitID string, forUpdate bool) (*models.UnitState, error) {
	query := `
		SELECT unit_id, last_temperature_tenths, last_reading_at,
		       current_alert_id, breach_since, breach_bound, updated_at
		FROM unit_state
		WHERE unit_id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	state := &models.UnitState{}
	err := q.QueryRowContext(ctx, query, unitID).Scan(
		&state.UnitID,
		&state.LastTempTenths,
		&state.LastReadingAt,
		&state.CurrentAlertID,
		&state.BreachSince,
		&state.BreachBound,
		&state.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return &models.UnitState{UnitID: unitID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit state: %w", err)
	}

	return state, nil
}

// UpsertState writes the live state row. Only the StateTracker calls this.
func (r *UnitRepository) UpsertState(ctx context.Context, q Querier, state *models.UnitState) error {
	query := `
		INSERT INTO unit_state (
			unit_id, last_temperature_tenths, last_reading_at,
			current_alert_id, breach_since, breach_bound, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (unit_id) DO UPDATE SET
			last_temperature_tenths = EXCLUDED.last_temperature_tenths,
			last_reading_at = EXCLUDED.last_reading_at,
			current_alert_id = EXCLUDED.current_alert_id,
			breach_since = EXCLUDED.breach_since,
			breach_bound = EXCLUDED.breach_bound,
			updated_at = EXCLUDED.updated_at
	`

	state.UpdatedAt = time.Now()

	_, err := q.ExecContext(
		ctx, query,
		state.UnitID,
		state.LastTempTenths,
		state.LastReadingAt,
		state.CurrentAlertID,
		state.BreachSince,
		state.BreachBound,
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert unit state: %w", err)
	}

	return nil
}
