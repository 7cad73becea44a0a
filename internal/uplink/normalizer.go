// internal/uplink/normalizer.go

// Package uplink adapts heterogeneous wire payloads (LoRaWAN network-server
// webhooks, generic bulk-API reading objects) into canonical readings.
package uplink

import (
	"encoding/json"
	"fmt"
	"time"

	"ColdChainAPI/internal/models"
)

const (
	batteryMinVolts = 3.0
	batteryMaxVolts = 4.2
)

// fieldExtractor is one strategy for pulling a typed value out of a raw
// payload. Strategies are tried in priority order; the first present field
// wins.
type fieldExtractor struct {
	key  string
	conv func(float64) float64
}

var temperatureExtractors = []fieldExtractor{
	{"temperature", func(v float64) float64 { return v }},
	{"temp", func(v float64) float64 { return v }},
	{"temperature_f", fahrenheitToCelsius},
}

var humidityExtractors = []fieldExtractor{
	{"humidity", func(v float64) float64 { return v }},
	{"hum", func(v float64) float64 { return v }},
}

var batteryExtractors = []fieldExtractor{
	{"battery", clampPercent},
	{"battery_voltage", VoltageToPercent},
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// VoltageToPercent maps a LiPo cell voltage onto a linear 0-100 scale between
// 3.0V and 4.2V, clamped at both ends.
func VoltageToPercent(v float64) float64 {
	return clampPercent((v - batteryMinVolts) / (batteryMaxVolts - batteryMinVolts) * 100)
}

func extract(data map[string]interface{}, extractors []fieldExtractor) (float64, bool) {
	for _, ex := range extractors {
		if raw, ok := data[ex.key]; ok {
			if v, ok := toFloat(raw); ok {
				return ex.conv(v), true
			}
		}
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	return 0, false
}

// TempTenths converts degrees Celsius to the fixed-point storage form,
// rounding half away from zero.
func TempTenths(celsius float64) int {
	if celsius < 0 {
		return int(celsius*10 - 0.5)
	}
	return int(celsius*10 + 0.5)
}

// BestSignal picks the strongest (least negative) RSSI across all receiver
// metadata entries. Returns false when no receiver reported one.
func BestSignal(receivers []map[string]interface{}) (int, bool) {
	best := 0
	found := false
	for _, rx := range receivers {
		for _, key := range []string{"rssi", "channel_rssi"} {
			if v, ok := toFloat(rx[key]); ok {
				if !found || int(v) > best {
					best = int(v)
					found = true
				}
			}
		}
	}
	return best, found
}

// NormalizeAPIReading decodes one bulk-API reading object. The unit reference
// is required; temperature is resolved through the extractor chain.
func NormalizeAPIReading(raw map[string]interface{}) (*models.Reading, error) {
	unitID, _ := raw["unit_id"].(string)
	if unitID == "" {
		return nil, fmt.Errorf("%w: missing unit_id", models.ErrValidation)
	}

	reading := &models.Reading{
		UnitID:     unitID,
		Source:     models.SourceAPI,
		RawPayload: raw,
	}

	if deviceID, ok := raw["device_id"].(string); ok && deviceID != "" {
		reading.DeviceID = &deviceID
	}

	if err := fillSensorFields(reading, raw); err != nil {
		return nil, err
	}

	reading.RecordedAt = extractTimestamp(raw)
	reading.ReceivedAt = time.Now().UTC()

	if rssi, ok := toFloat(raw["rssi"]); ok {
		signal := int(rssi)
		reading.SignalStrength = &signal
	}

	return reading, nil
}

// LoRaWANEnvelope is the network-server webhook shape: a device identity
// block, the decoded sensor payload, and per-gateway receiver metadata.
type LoRaWANEnvelope struct {
	EndDeviceIDs struct {
		DevEUI   string `json:"dev_eui"`
		DeviceID string `json:"device_id"`
	} `json:"end_device_ids"`
	ReceivedAt    time.Time `json:"received_at"`
	UplinkMessage struct {
		DecodedPayload map[string]interface{}   `json:"decoded_payload"`
		RxMetadata     []map[string]interface{} `json:"rx_metadata"`
	} `json:"uplink_message"`
}

// NormalizedUplink carries a decoded network uplink before the device has
// been resolved to a storage unit.
type NormalizedUplink struct {
	DeviceKey string // hardware EUI when present, logical device id otherwise
	Reading   models.Reading
}

// NormalizeLoRaWAN decodes a network-server uplink envelope. Device identity
// prefers the hardware EUI and falls back to the logical device identifier.
func NormalizeLoRaWAN(payload []byte) (*NormalizedUplink, error) {
	var env LoRaWANEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed uplink envelope: %v", models.ErrValidation, err)
	}

	deviceKey := env.EndDeviceIDs.DevEUI
	if deviceKey == "" {
		deviceKey = env.EndDeviceIDs.DeviceID
	}
	if deviceKey == "" {
		return nil, fmt.Errorf("%w: uplink carries neither dev_eui nor device_id", models.ErrValidation)
	}

	decoded := env.UplinkMessage.DecodedPayload
	if decoded == nil {
		return nil, fmt.Errorf("%w: uplink has no decoded payload", models.ErrUnprocessable)
	}

	// Keep the whole envelope verbatim for audit and replay.
	var rawAudit map[string]interface{}
	json.Unmarshal(payload, &rawAudit)

	reading := models.Reading{
		Source:     models.SourceNetworkUplink,
		RawPayload: rawAudit,
	}

	if err := fillSensorFields(&reading, decoded); err != nil {
		return nil, err
	}

	reading.RecordedAt = env.ReceivedAt.UTC()
	if reading.RecordedAt.IsZero() {
		reading.RecordedAt = time.Now().UTC()
	}
	reading.ReceivedAt = time.Now().UTC()

	if signal, ok := BestSignal(env.UplinkMessage.RxMetadata); ok {
		reading.SignalStrength = &signal
	}

	return &NormalizedUplink{DeviceKey: deviceKey, Reading: reading}, nil
}

// fillSensorFields resolves temperature, humidity and battery through the
// extractor chains. Missing temperature after all fallbacks is fatal for the
// reading.
func fillSensorFields(reading *models.Reading, data map[string]interface{}) error {
	celsius, ok := extract(data, temperatureExtractors)
	if !ok {
		return fmt.Errorf("%w: no temperature field in payload", models.ErrUnprocessable)
	}
	reading.TemperatureTenths = TempTenths(celsius)

	if hum, ok := extract(data, humidityExtractors); ok {
		reading.Humidity = &hum
	}

	if batt, ok := extract(data, batteryExtractors); ok {
		reading.BatteryPercent = &batt
	}

	return nil
}

func extractTimestamp(raw map[string]interface{}) time.Time {
	if s, ok := raw["recorded_at"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts.UTC()
		}
	}
	if epoch, ok := toFloat(raw["epoch"]); ok && epoch > 0 {
		return time.Unix(int64(epoch), 0).UTC()
	}
	return time.Now().UTC()
}
