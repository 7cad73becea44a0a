package service

import (
	"context"
	"testing"

	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/models"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: logger.FATAL})
	require.NoError(t, err)
	return log
}

type stubHub struct {
	events []models.WSEvent
}

func (s *stubHub) Publish(organizationID string, event models.WSEvent) {
	s.events = append(s.events, event)
}

type stubNotifier struct {
	calls []int
}

func (s *stubNotifier) EnqueueAlert(ctx context.Context, unit *models.StorageUnit, alert *models.Alert, tier int) error {
	s.calls = append(s.calls, tier)
	return nil
}
