package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/notify"
	"ColdChainAPI/internal/repository"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	messageID string
	err       error
	sends     int
}

func (p *stubProvider) Send(ctx context.Context, msg notify.Message) (string, error) {
	p.sends++
	return p.messageID, p.err
}

func newDispatchService(t *testing.T, provider notify.Provider, maxAttempts int) (*NotifyService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewNotifyService(
		db, nil, nil,
		repository.NewDeliveryRepository(db),
		NewAuditService(repository.NewAuditRepository(db), newTestLogger(t)),
		map[string]notify.Provider{models.ChannelEmail: provider},
		config.NotifyConfig{MaxAttempts: maxAttempts, InitialBackoff: time.Millisecond},
		newTestLogger(t),
	)
	return svc, mock
}

func testDeliveryJob() *deliveryJob {
	return &deliveryJob{
		DeliveryID:     "del-1",
		OrganizationID: "org-1",
		AlertID:        "alert-1",
		UnitID:         "unit-1",
		UnitName:       "Freezer 3",
		Channel:        models.ChannelEmail,
		ContactName:    "On-call",
		ContactAddress: "oncall@example.com",
		Severity:       models.SeverityWarning,
		TempTenths:     152,
		Bound:          models.BoundMax,
		Level:          0,
		TriggeredAt:    "2025-06-01T12:00:00Z",
	}
}

// expectDeliveryAudit queues the own-transaction audit append that follows a
// delivery outcome, asserting the chained action name.
func expectDeliveryAudit(mock sqlmock.Sqlmock, action string) {
	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("org-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT hash FROM audit_events").WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"hash"}))
	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs("org-1", "delivery", "del-1", action, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectCommit()
}

func TestDeliverAuditsSuccessfulSend(t *testing.T) {
	provider := &stubProvider{messageID: "prov-msg-1"}
	svc, mock := newDispatchService(t, provider, 3)

	mock.ExpectExec("UPDATE notification_deliveries").
		WithArgs("del-1", models.DeliverySent, 1, "prov-msg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectDeliveryAudit(mock, "delivery.sent")

	svc.deliver(testDeliveryJob())

	assert.Equal(t, 1, provider.sends)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverAuditsExhaustedRetries(t *testing.T) {
	provider := &stubProvider{err: errors.New("smtp: connection refused")}
	svc, mock := newDispatchService(t, provider, 2)

	mock.ExpectExec("UPDATE notification_deliveries").
		WithArgs("del-1", models.DeliveryPending, 1, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notification_deliveries").
		WithArgs("del-1", models.DeliveryFailed, 2, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectDeliveryAudit(mock, "delivery.failed")

	svc.deliver(testDeliveryJob())

	assert.Equal(t, 2, provider.sends)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliverUnknownChannelFailsImmediately(t *testing.T) {
	provider := &stubProvider{messageID: "unused"}
	svc, mock := newDispatchService(t, provider, 3)

	job := testDeliveryJob()
	job.Channel = "pigeon"

	mock.ExpectExec("UPDATE notification_deliveries").
		WithArgs("del-1", models.DeliveryFailed, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectDeliveryAudit(mock, "delivery.failed")

	svc.deliver(job)

	assert.Zero(t, provider.sends)
	assert.NoError(t, mock.ExpectationsWereMet())
}
