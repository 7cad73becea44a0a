package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ColdChainAPI/internal/models"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// GetUpToTier returns every contact at or below the tier for a unit's
// organization, preferring site-scoped rows but including org-wide ones.
// Ordered by tier so lower tiers are notified first.
func (r *ContactRepository) GetUpToTier(ctx context.Context, organizationID, siteID string, tier int) ([]models.EscalationContact, error) {
	query := `
		SELECT id, organization_id, site_id, tier, name, channel, address
		FROM escalation_contacts
		WHERE organization_id = $1
		  AND (site_id IS NULL OR site_id = $2)
		  AND tier <= $3
		ORDER BY tier ASC, name ASC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, siteID, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to get escalation contacts: %w", err)
	}
	defer rows.Close()

	contacts := []models.EscalationContact{}
	for rows.Next() {
		var contact models.EscalationContact
		var contactSiteID sql.NullString

		err := rows.Scan(
			&contact.ID,
			&contact.OrganizationID,
			&contactSiteID,
			&contact.Tier,
			&contact.Name,
			&contact.Channel,
			&contact.Address,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation contact: %w", err)
		}

		if contactSiteID.Valid {
			contact.SiteID = &contactSiteID.String
		}

		contacts = append(contacts, contact)
	}

	return contacts, nil
}
