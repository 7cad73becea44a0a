// internal/models/alert.go

package models

import (
	"encoding/json"
	"time"
)

// Alert lifecycle statuses. Resolved is terminal; a later breach opens a new
// alert instance.
const (
	StatusActive       = "active"
	StatusEscalated    = "escalated"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Threshold bounds.
const (
	BoundMin = "min"
	BoundMax = "max"
)

type Alert struct {
	ID                string     `json:"id" db:"id"`
	UnitID            string     `json:"unit_id" db:"unit_id"`
	AlertRuleID       *string    `json:"alert_rule_id,omitempty" db:"alert_rule_id"`
	Severity          string     `json:"severity" db:"severity"`
	Status            string     `json:"status" db:"status"`
	TriggerTempTenths int        `json:"trigger_temperature_tenths" db:"trigger_temperature_tenths"`
	ThresholdViolated string     `json:"threshold_violated" db:"threshold_violated"`
	TriggeredAt       time.Time  `json:"triggered_at" db:"triggered_at"`
	AcknowledgedAt    *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	AcknowledgedBy    *string    `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy        *string    `json:"resolved_by,omitempty" db:"resolved_by"`
	CorrectiveAction  *string    `json:"corrective_action,omitempty" db:"corrective_action"`
	EscalatedAt       *time.Time `json:"escalated_at,omitempty" db:"escalated_at"`
	EscalationLevel   int        `json:"escalation_level" db:"escalation_level"`
	NextCheckAt       *time.Time `json:"next_check_at,omitempty" db:"next_check_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the alert still occupies the unit's
// current_alert_id slot.
func (a *Alert) IsOpen() bool {
	return a.Status != StatusResolved
}

// Delivery statuses.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// NotificationDelivery tracks one provider send for one (alert, contact,
// channel) at one escalation tier.
type NotificationDelivery struct {
	ID                string     `json:"id" db:"id"`
	AlertID           string     `json:"alert_id" db:"alert_id"`
	Tier              int        `json:"tier" db:"tier"`
	Channel           string     `json:"channel" db:"channel"`
	ContactName       string     `json:"contact_name" db:"contact_name"`
	ContactAddress    string     `json:"contact_address" db:"contact_address"`
	Status            string     `json:"status" db:"status"`
	Attempts          int        `json:"attempts" db:"attempts"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty" db:"last_attempt_at"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty" db:"provider_message_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
}

// AuditEvent is one link of the per-organization tamper-evident chain:
// hash = sha256(prev_hash || canonical payload).
type AuditEvent struct {
	ID             int64           `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	EntityType     string          `json:"entity_type" db:"entity_type"`
	EntityID       string          `json:"entity_id" db:"entity_id"`
	Action         string          `json:"action" db:"action"`
	ActorID        *string         `json:"actor_id,omitempty" db:"actor_id"`
	PrevHash       string          `json:"prev_hash" db:"prev_hash"`
	Hash           string          `json:"hash" db:"hash"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// ChainVerifyReport summarizes a hash-chain verification run.
type ChainVerifyReport struct {
	OK           bool   `json:"ok"`
	Checked      int    `json:"checked"`
	FirstBreakID int64  `json:"first_break_id,omitempty"`
	LastHash     string `json:"last_hash,omitempty"`
}
