package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ColdChainAPI/internal/models"

	"github.com/google/uuid"
)

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create records a pending delivery for one (alert, contact, channel) at one
// escalation tier, before the provider is invoked.
func (r *DeliveryRepository) Create(ctx context.Context, delivery *models.NotificationDelivery) error {
	if delivery.ID == "" {
		delivery.ID = uuid.New().String()
	}
	delivery.CreatedAt = time.Now()
	if delivery.Status == "" {
		delivery.Status = models.DeliveryPending
	}

	query := `
		INSERT INTO notification_deliveries (
			id, alert_id, tier, channel, contact_name, contact_address,
			status, attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(
		ctx, query,
		delivery.ID,
		delivery.AlertID,
		delivery.Tier,
		delivery.Channel,
		delivery.ContactName,
		delivery.ContactAddress,
		delivery.Status,
		delivery.Attempts,
		delivery.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification delivery: %w", err)
	}

	return nil
}

// MarkAttempt records the outcome of one provider call.
func (r *DeliveryRepository) MarkAttempt(ctx context.Context, id, status string, attempts int, providerMessageID *string) error {
	query := `
		UPDATE notification_deliveries
		SET status = $2, attempts = $3, provider_message_id = $4, last_attempt_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, status, attempts, providerMessageID); err != nil {
		return fmt.Errorf("failed to mark delivery attempt: %w", err)
	}
	return nil
}

// UpdateStatusByProviderMessageID applies a provider status callback. Returns
// ErrNotFound when the provider message id is unknown.
func (r *DeliveryRepository) UpdateStatusByProviderMessageID(ctx context.Context, providerMessageID, status string) error {
	query := `
		UPDATE notification_deliveries
		SET status = $2
		WHERE provider_message_id = $1
	`

	res, err := r.db.ExecContext(ctx, query, providerMessageID, status)
	if err != nil {
		return fmt.Errorf("failed to apply delivery callback: %w", err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: provider message %s", models.ErrNotFound, providerMessageID)
	}
	return nil
}

// GetByAlert lists deliveries for an alert, oldest first.
func (r *DeliveryRepository) GetByAlert(ctx context.Context, alertID string) ([]models.NotificationDelivery, error) {
	query := `
		SELECT id, alert_id, tier, channel, contact_name, contact_address,
		       status, attempts, last_attempt_at, provider_message_id, created_at
		FROM notification_deliveries
		WHERE alert_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to get deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []models.NotificationDelivery{}
	for rows.Next() {
		var delivery models.NotificationDelivery
		var lastAttempt sql.NullTime
		var providerMsgID sql.NullString

		err := rows.Scan(
			&delivery.ID,
			&delivery.AlertID,
			&delivery.Tier,
			&delivery.Channel,
			&delivery.ContactName,
			&delivery.ContactAddress,
			&delivery.Status,
			&delivery.Attempts,
			&lastAttempt,
			&providerMsgID,
			&delivery.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}

		if lastAttempt.Valid {
			delivery.LastAttemptAt = &lastAttempt.Time
		}
		if providerMsgID.Valid {
			delivery.ProviderMessageID = &providerMsgID.String
		}

		deliveries = append(deliveries, delivery)
	}

	return deliveries, nil
}
