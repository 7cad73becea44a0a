package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ColdChainAPI/internal/models"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// LockChain serializes appends for one organization's chain within the
// caller's transaction, so two concurrent writers cannot both read the same
// previous hash.
func (r *AuditRepository) LockChain(ctx context.Context, q Querier, organizationID string) error {
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, organizationID); err != nil {
		return fmt.Errorf("failed to lock audit chain: %w", err)
	}
	return nil
}

// GetLastHash returns the newest hash in an organization's chain, or "" for
// an empty chain.
func (r *AuditRepository) GetLastHash(ctx context.Context, q Querier, organizationID string) (string, error) {
	query := `
		SELECT hash FROM audit_events
		WHERE organization_id = $1
		ORDER BY id DESC
		LIMIT 1
	`

	var hash string
	err := q.QueryRowContext(ctx, query, organizationID).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last audit hash: %w", err)
	}

	return hash, nil
}

// Append writes one chain link. Append-only: there is no update or delete
// path through this repository.
func (r *AuditRepository) Append(ctx context.Context, q Querier, event *models.AuditEvent) error {
	query := `
		INSERT INTO audit_events (
			organization_id, entity_type, entity_id, action, actor_id,
			prev_hash, hash, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`

	err := q.QueryRowContext(
		ctx, query,
		event.OrganizationID,
		event.EntityType,
		event.EntityID,
		event.Action,
		event.ActorID,
		event.PrevHash,
		event.Hash,
		[]byte(event.Payload),
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	return nil
}

// ListByOrganization streams an organization's chain oldest-first for
// verification.
func (r *AuditRepository) ListByOrganization(ctx context.Context, organizationID string) ([]models.AuditEvent, error) {
	query := `
		SELECT id, organization_id, entity_type, entity_id, action, actor_id,
		       prev_hash, hash, payload, created_at
		FROM audit_events
		WHERE organization_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var event models.AuditEvent
		var actorID sql.NullString
		var payload []byte

		err := rows.Scan(
			&event.ID,
			&event.OrganizationID,
			&event.EntityType,
			&event.EntityID,
			&event.Action,
			&actorID,
			&event.PrevHash,
			&event.Hash,
			&payload,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if actorID.Valid {
			event.ActorID = &actorID.String
		}
		event.Payload = payload

		events = append(events, event)
	}

	return events, nil
}
