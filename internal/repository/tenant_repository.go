package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ColdChainAPI/internal/models"
)

// TenantCredential is the stored ingestion credential for one organization.
// The secret half of the API key is kept as a bcrypt hash only.
type TenantCredential struct {
	KeyID          string
	OrganizationID string
	SecretHash     string
	Active         bool
}

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) GetCredential(ctx context.Context, keyID string) (*TenantCredential, error) {
	query := `
		SELECT key_id, organization_id, secret_hash, active
		FROM tenant_credentials
		WHERE key_id = $1
	`

	cred := &TenantCredential{}
	err := r.db.QueryRowContext(ctx, query, keyID).Scan(
		&cred.KeyID,
		&cred.OrganizationID,
		&cred.SecretHash,
		&cred.Active,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: unknown api key", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant credential: %w", err)
	}

	if !cred.Active {
		return nil, fmt.Errorf("%w: api key revoked", models.ErrUnauthorized)
	}

	return cred, nil
}
