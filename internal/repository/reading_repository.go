package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ColdChainAPI/internal/models"

	"github.com/google/uuid"
)

type ReadingRepository struct {
	db *sql.DB
}

func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// InsertBatch writes a batch of readings in one transaction and returns the
// generated ids in input order. A nil entry in the result marks a reading the
// database rejected as a redelivered duplicate of (unit, source, recorded_at);
// the unique index backs up the redis-side dedup check.
func (r *ReadingRepository) InsertBatch(ctx context.Context, readings []models.Reading) ([]string, int, error) {
	if len(readings) == 0 {
		return nil, 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO readings (
			id, unit_id, device_id, temperature_tenths, humidity,
			battery_percent, signal_strength, recorded_at, received_at,
			source, raw_payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (unit_id, source, recorded_at) DO NOTHING
	`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(readings))
	inserted := 0

	for _, reading := range readings {
		var payloadVal interface{}
		if len(reading.RawPayload) > 0 {
			payloadJSON, err := json.Marshal(reading.RawPayload)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to marshal raw payload: %w", err)
			}
			payloadVal = payloadJSON
		}

		id := reading.ID
		if id == "" {
			id = uuid.New().String()
		}

		res, err := stmt.ExecContext(
			ctx,
			id,
			reading.UnitID,
			reading.DeviceID,
			reading.TemperatureTenths,
			reading.Humidity,
			reading.BatteryPercent,
			reading.SignalStrength,
			reading.RecordedAt,
			reading.ReceivedAt,
			reading.Source,
			payloadVal,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to insert reading batch: %w", err)
		}

		if affected, _ := res.RowsAffected(); affected > 0 {
			ids = append(ids, id)
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ids, inserted, nil
}

// GetLatest returns the most recent readings for a unit, newest first.
func (r *ReadingRepository) GetLatest(ctx context.Context, unitID string, limit int) ([]models.Reading, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, unit_id, device_id, temperature_tenths, humidity,
		       battery_percent, signal_strength, recorded_at, received_at,
		       source, raw_payload
		FROM readings
		WHERE unit_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, unitID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest readings: %w", err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		var reading models.Reading
		var payloadJSON sql.NullString

		err := rows.Scan(
			&reading.ID, &reading.UnitID, &reading.DeviceID,
			&reading.TemperatureTenths, &reading.Humidity,
			&reading.BatteryPercent, &reading.SignalStrength,
			&reading.RecordedAt, &reading.ReceivedAt,
			&reading.Source, &payloadJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}

		if payloadJSON.Valid && payloadJSON.String != "" {
			if err := json.Unmarshal([]byte(payloadJSON.String), &reading.RawPayload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal raw payload: %w", err)
			}
		}

		readings = append(readings, reading)
	}

	return readings, nil
}
