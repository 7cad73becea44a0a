package mqtt

import (
	"ColdChainAPI/internal/service"
	"ColdChainAPI/internal/uplink"
)

// SubscribeUplinks bridges gateway uplink messages into the ingestion
// pipeline. Malformed payloads are logged and dropped; the broker must never
// see a handler failure for garbage a gateway relayed.
func (c *Client) SubscribeUplinks(ingest *service.IngestService) error {
	return c.Subscribe(c.cfg.UplinkTopic, func(topic string, payload []byte) error {
		normalized, err := uplink.NormalizeLoRaWAN(payload)
		if err != nil {
			c.log.Warn("Dropping malformed uplink on %s: %v", topic, err)
			return nil
		}

		resp, err := ingest.IngestUplink(c.ctx, normalized)
		if err != nil {
			c.log.Error("Failed to ingest uplink from device %s: %v", normalized.DeviceKey, err)
			return err
		}

		if resp.AlertsTriggered > 0 {
			c.log.Info("Uplink from device %s triggered an alert", normalized.DeviceKey)
		}
		return nil
	})
}
