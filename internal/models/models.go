// internal/models/models.go

package models

import (
	"time"
)

// Reading sources.
const (
	SourceAPI           = "api"
	SourceNetworkUplink = "network-uplink"
	SourceManual        = "manual"
)

// Reading is a single stored telemetry sample. Immutable once written.
// Temperatures are fixed-point tenths of a degree Celsius.
type Reading struct {
	ID                string                 `json:"id" db:"id"`
	UnitID            string                 `json:"unit_id" db:"unit_id"`
	DeviceID          *string                `json:"device_id,omitempty" db:"device_id"`
	TemperatureTenths int                    `json:"temperature_tenths" db:"temperature_tenths"`
	Humidity          *float64               `json:"humidity,omitempty" db:"humidity"`
	BatteryPercent    *float64               `json:"battery_percent,omitempty" db:"battery_percent"`
	SignalStrength    *int                   `json:"signal_strength,omitempty" db:"signal_strength"`
	RecordedAt        time.Time              `json:"recorded_at" db:"recorded_at"`
	ReceivedAt        time.Time              `json:"received_at" db:"received_at"`
	Source            string                 `json:"source" db:"source"`
	RawPayload        map[string]interface{} `json:"raw_payload,omitempty" db:"raw_payload"`
}

// StorageUnit is a monitored cold-storage unit. Hierarchy management lives in
// an external CRUD service; this API only reads the org/site linkage.
type StorageUnit struct {
	UnitID         string    `json:"unit_id" db:"unit_id"`
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	SiteID         string    `json:"site_id" db:"site_id"`
	Name           string    `json:"name" db:"name"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// UnitState is the live per-unit state row. Written exclusively by the
// StateTracker; everything else only reads it.
type UnitState struct {
	UnitID         string     `json:"unit_id" db:"unit_id"`
	LastTempTenths *int       `json:"last_temperature_tenths" db:"last_temperature_tenths"`
	LastReadingAt  *time.Time `json:"last_reading_at" db:"last_reading_at"`
	CurrentAlertID *string    `json:"current_alert_id,omitempty" db:"current_alert_id"`
	BreachSince    *time.Time `json:"breach_since,omitempty" db:"breach_since"`
	BreachBound    *string    `json:"breach_bound,omitempty" db:"breach_bound"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// Rule scopes, most specific first.
const (
	ScopeUnit         = "unit"
	ScopeSite         = "site"
	ScopeOrganization = "organization"
)

// AlertRule holds temperature thresholds for one scope level. The effective
// rule for a unit is the nearest non-null override walking unit -> site ->
// organization.
type AlertRule struct {
	ID              string    `json:"id" db:"id"`
	Scope           string    `json:"scope" db:"scope"`
	ScopeID         string    `json:"scope_id" db:"scope_id"`
	TempMinTenths   int       `json:"temp_min_tenths" db:"temp_min_tenths"`
	TempMaxTenths   int       `json:"temp_max_tenths" db:"temp_max_tenths"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	Severity        string    `json:"severity" db:"severity"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// InRange reports whether a fixed-point temperature sits inside the rule's
// bounds (inclusive).
func (r *AlertRule) InRange(tempTenths int) bool {
	return tempTenths >= r.TempMinTenths && tempTenths <= r.TempMaxTenths
}

// ViolatedBound returns which bound a temperature crosses, or "" if none.
func (r *AlertRule) ViolatedBound(tempTenths int) string {
	if tempTenths < r.TempMinTenths {
		return BoundMin
	}
	if tempTenths > r.TempMaxTenths {
		return BoundMax
	}
	return ""
}

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)

// EscalationContact is an ordered per-tier notification target, scoped to an
// organization or a site. Read-only input to the dispatcher.
type EscalationContact struct {
	ID             string  `json:"id" db:"id"`
	OrganizationID string  `json:"organization_id" db:"organization_id"`
	SiteID         *string `json:"site_id,omitempty" db:"site_id"`
	Tier           int     `json:"tier" db:"tier"`
	Name           string  `json:"name" db:"name"`
	Channel        string  `json:"channel" db:"channel"`
	Address        string  `json:"address" db:"address"`
}

// EvalResult is what one evaluation pass reports back to the ingestion path,
// so callers can count triggered/resolved alerts without re-querying.
type EvalResult struct {
	StateChanged  bool   `json:"state_changed"`
	AlertCreated  *Alert `json:"alert_created,omitempty"`
	AlertResolved *Alert `json:"alert_resolved,omitempty"`
}

// BulkIngestRequest carries raw reading objects; each is decoded through the
// uplink normalizer's field fallbacks before storage.
type BulkIngestRequest struct {
	Readings []map[string]interface{} `json:"readings"`
}

type BulkIngestResponse struct {
	Success         bool     `json:"success"`
	InsertedCount   int      `json:"inserted_count"`
	ReadingIDs      []string `json:"reading_ids"`
	AlertsTriggered int      `json:"alerts_triggered"`
}

type UplinkResponse struct {
	Success         bool   `json:"success"`
	ReadingID       string `json:"reading_id"`
	AlertsTriggered int    `json:"alerts_triggered"`
}

type AcknowledgeRequest struct {
	ActorID string `json:"actor_id"`
}

type ResolveRequest struct {
	ActorID          string `json:"actor_id"`
	CorrectiveAction string `json:"corrective_action,omitempty"`
}

// DeliveryCallbackRequest is the payload posted by email/SMS providers to
// report final delivery status for a previously accepted message.
type DeliveryCallbackRequest struct {
	ProviderMessageID string `json:"provider_message_id"`
	Status            string `json:"status"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Services  struct {
		Database bool `json:"database"`
		Redis    bool `json:"redis"`
		MQTT     bool `json:"mqtt"`
	} `json:"services"`
}

// WSEvent is the message shape pushed over the realtime channel.
type WSEvent struct {
	Type      string      `json:"type"`
	UnitID    string      `json:"unit_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Realtime event types.
const (
	EventReading           = "reading"
	EventAlertCreated      = "alert-created"
	EventAlertEscalated    = "alert-escalated"
	EventAlertAcknowledged = "alert-acknowledged"
	EventAlertResolved     = "alert-resolved"
)
