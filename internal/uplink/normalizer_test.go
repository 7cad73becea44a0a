package uplink

import (
	"errors"
	"testing"

	"ColdChainAPI/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoltageToPercent(t *testing.T) {
	tests := []struct {
		name  string
		volts float64
		want  float64
	}{
		{"mid-scale", 3.6, 50},
		{"empty cell", 3.0, 0},
		{"full cell", 4.2, 100},
		{"below floor clamps", 2.5, 0},
		{"above ceiling clamps", 4.5, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, VoltageToPercent(tt.volts), 0.01)
		})
	}
}

func TestTempTenths(t *testing.T) {
	assert.Equal(t, 45, TempTenths(4.5))
	assert.Equal(t, -182, TempTenths(-18.2))
	assert.Equal(t, 1, TempTenths(0.05))
	assert.Equal(t, -1, TempTenths(-0.05))
	assert.Equal(t, 0, TempTenths(0))
}

func TestBestSignal(t *testing.T) {
	receivers := []map[string]interface{}{
		{"rssi": float64(-95)},
		{"rssi": float64(-55)},
		{"rssi": float64(-78)},
	}

	best, ok := BestSignal(receivers)
	require.True(t, ok)
	assert.Equal(t, -55, best)
}

func TestBestSignalChannelRSSIFallback(t *testing.T) {
	receivers := []map[string]interface{}{
		{"channel_rssi": float64(-80)},
	}

	best, ok := BestSignal(receivers)
	require.True(t, ok)
	assert.Equal(t, -80, best)
}

func TestBestSignalNoReceivers(t *testing.T) {
	_, ok := BestSignal(nil)
	assert.False(t, ok)

	_, ok = BestSignal([]map[string]interface{}{{"snr": float64(7.5)}})
	assert.False(t, ok)
}

func TestNormalizeAPIReading(t *testing.T) {
	raw := map[string]interface{}{
		"unit_id":         "unit-1",
		"temperature":     4.5,
		"humidity":        61.0,
		"battery_voltage": 3.6,
		"rssi":            float64(-72),
		"recorded_at":     "2026-08-20T10:00:00Z",
	}

	reading, err := NormalizeAPIReading(raw)
	require.NoError(t, err)

	assert.Equal(t, "unit-1", reading.UnitID)
	assert.Equal(t, models.SourceAPI, reading.Source)
	assert.Equal(t, 45, reading.TemperatureTenths)
	require.NotNil(t, reading.Humidity)
	assert.InDelta(t, 61.0, *reading.Humidity, 0.01)
	require.NotNil(t, reading.BatteryPercent)
	assert.InDelta(t, 50.0, *reading.BatteryPercent, 0.01)
	require.NotNil(t, reading.SignalStrength)
	assert.Equal(t, -72, *reading.SignalStrength)
	assert.Equal(t, "2026-08-20T10:00:00Z", reading.RecordedAt.Format("2006-01-02T15:04:05Z"))
}

func TestNormalizeAPIReadingFahrenheitFallback(t *testing.T) {
	raw := map[string]interface{}{
		"unit_id":       "unit-1",
		"temperature_f": 40.1,
	}

	reading, err := NormalizeAPIReading(raw)
	require.NoError(t, err)
	assert.Equal(t, 45, reading.TemperatureTenths)
}

func TestNormalizeAPIReadingPreferredFieldWins(t *testing.T) {
	raw := map[string]interface{}{
		"unit_id":       "unit-1",
		"temperature":   4.0,
		"temp":          9.0,
		"temperature_f": 90.0,
	}

	reading, err := NormalizeAPIReading(raw)
	require.NoError(t, err)
	assert.Equal(t, 40, reading.TemperatureTenths)
}

func TestNormalizeAPIReadingMissingUnit(t *testing.T) {
	_, err := NormalizeAPIReading(map[string]interface{}{"temperature": 4.0})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestNormalizeAPIReadingMissingTemperature(t *testing.T) {
	_, err := NormalizeAPIReading(map[string]interface{}{"unit_id": "unit-1", "humidity": 50.0})
	assert.True(t, errors.Is(err, models.ErrUnprocessable))
}

func TestNormalizeAPIReadingEpochTimestamp(t *testing.T) {
	raw := map[string]interface{}{
		"unit_id":     "unit-1",
		"temperature": 4.0,
		"epoch":       float64(1755684000),
	}

	reading, err := NormalizeAPIReading(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(1755684000), reading.RecordedAt.Unix())
}

func TestNormalizeLoRaWAN(t *testing.T) {
	payload := []byte(`{
		"end_device_ids": {"dev_eui": "A84041FFFE1234AB", "device_id": "freezer-3-sensor"},
		"received_at": "2026-08-20T10:00:00Z",
		"uplink_message": {
			"decoded_payload": {"temperature": -18.2, "humidity": 40.5, "battery_voltage": 3.9},
			"rx_metadata": [{"rssi": -95}, {"rssi": -55}, {"rssi": -78}]
		}
	}`)

	normalized, err := NormalizeLoRaWAN(payload)
	require.NoError(t, err)

	assert.Equal(t, "A84041FFFE1234AB", normalized.DeviceKey)
	assert.Equal(t, models.SourceNetworkUplink, normalized.Reading.Source)
	assert.Equal(t, -182, normalized.Reading.TemperatureTenths)
	require.NotNil(t, normalized.Reading.SignalStrength)
	assert.Equal(t, -55, *normalized.Reading.SignalStrength)
	require.NotNil(t, normalized.Reading.BatteryPercent)
	assert.InDelta(t, 75.0, *normalized.Reading.BatteryPercent, 0.01)
}

func TestNormalizeLoRaWANDeviceIDFallback(t *testing.T) {
	payload := []byte(`{
		"end_device_ids": {"device_id": "freezer-3-sensor"},
		"uplink_message": {"decoded_payload": {"temp": 4.0}}
	}`)

	normalized, err := NormalizeLoRaWAN(payload)
	require.NoError(t, err)
	assert.Equal(t, "freezer-3-sensor", normalized.DeviceKey)
	assert.Equal(t, 40, normalized.Reading.TemperatureTenths)
	assert.False(t, normalized.Reading.RecordedAt.IsZero())
}

func TestNormalizeLoRaWANNoIdentity(t *testing.T) {
	payload := []byte(`{"uplink_message": {"decoded_payload": {"temperature": 4.0}}}`)

	_, err := NormalizeLoRaWAN(payload)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestNormalizeLoRaWANNoDecodedPayload(t *testing.T) {
	payload := []byte(`{"end_device_ids": {"dev_eui": "A84041FFFE1234AB"}, "uplink_message": {}}`)

	_, err := NormalizeLoRaWAN(payload)
	assert.True(t, errors.Is(err, models.ErrUnprocessable))
}

func TestNormalizeLoRaWANMalformedJSON(t *testing.T) {
	_, err := NormalizeLoRaWAN([]byte(`{not json`))
	assert.True(t, errors.Is(err, models.ErrValidation))
}
