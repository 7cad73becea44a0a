package service

import (
	"context"
	"testing"
	"time"

	"ColdChainAPI/internal/models"
	"ColdChainAPI/internal/repository"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDedupService(t *testing.T) (*IngestService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cache := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	svc := NewIngestService(cache, nil, nil, nil, &stubHub{}, 10*time.Minute, newTestLogger(t))
	return svc, mr
}

func TestFilterDuplicatesDropsRedelivery(t *testing.T) {
	svc, _ := newDedupService(t)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reading := models.Reading{UnitID: "unit-1", Source: models.SourceAPI, TemperatureTenths: 45, RecordedAt: at}

	fresh := svc.filterDuplicates(context.Background(), []models.Reading{reading})
	require.Len(t, fresh, 1)

	// Same (unit, source, recorded_at) triple arriving again within the window.
	fresh = svc.filterDuplicates(context.Background(), []models.Reading{reading})
	assert.Empty(t, fresh)
}

func TestFilterDuplicatesDistinguishesSourceAndTime(t *testing.T) {
	svc, _ := newDedupService(t)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []models.Reading{
		{UnitID: "unit-1", Source: models.SourceAPI, RecordedAt: at},
		{UnitID: "unit-1", Source: models.SourceNetworkUplink, RecordedAt: at},
		{UnitID: "unit-1", Source: models.SourceAPI, RecordedAt: at.Add(time.Second)},
	}

	fresh := svc.filterDuplicates(context.Background(), batch)
	assert.Len(t, fresh, 3)
}

func TestFilterDuplicatesExpiresWithWindow(t *testing.T) {
	svc, mr := newDedupService(t)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	reading := models.Reading{UnitID: "unit-1", Source: models.SourceAPI, RecordedAt: at}

	fresh := svc.filterDuplicates(context.Background(), []models.Reading{reading})
	require.Len(t, fresh, 1)

	mr.FastForward(11 * time.Minute)

	fresh = svc.filterDuplicates(context.Background(), []models.Reading{reading})
	assert.Len(t, fresh, 1)
}

func TestFilterDuplicatesFailsOpenWhenRedisDown(t *testing.T) {
	svc, mr := newDedupService(t)
	mr.Close()

	reading := models.Reading{UnitID: "unit-1", Source: models.SourceAPI, RecordedAt: time.Now()}

	fresh := svc.filterDuplicates(context.Background(), []models.Reading{reading})
	assert.Len(t, fresh, 1, "dedup outage must not drop readings")
}

func TestDedupKeyIsStable(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 500, time.FixedZone("CET", 3600))
	reading := &models.Reading{UnitID: "unit-1", Source: models.SourceNetworkUplink, RecordedAt: at}

	// Key is built from the UTC instant, so the sender's zone never matters.
	assert.Equal(t, dedupKey(reading), dedupKey(&models.Reading{
		UnitID: "unit-1", Source: models.SourceNetworkUplink, RecordedAt: at.UTC(),
	}))
}

// A batch touching a unit the tenant does not own is rejected before any row
// is written: the ownership check runs ahead of dedup and insert.
func TestIngestBatchForeignUnitPersistsNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mr := miniredis.RunT(t)
	cache := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	svc := NewIngestService(
		cache,
		repository.NewReadingRepository(db),
		repository.NewUnitRepository(db),
		nil,
		&stubHub{},
		10*time.Minute,
		newTestLogger(t),
	)

	mock.ExpectQuery("FROM storage_units").WithArgs("unit-1", "unit-foreign").
		WillReturnRows(sqlmock.NewRows([]string{"unit_id", "organization_id"}).
			AddRow("unit-1", "org-1").
			AddRow("unit-foreign", "org-other"))

	_, err = svc.IngestBatch(context.Background(), "org-1", &models.BulkIngestRequest{
		Readings: []map[string]interface{}{
			{"unit_id": "unit-1", "temperature": 4.5},
			{"unit_id": "unit-foreign", "temperature": 5.0},
		},
	})

	assert.ErrorIs(t, err, models.ErrForbidden)
	// No INSERT was expected; a write would fail the mock here.
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Empty(t, mr.Keys(), "dedup cache must stay untouched on rejection")
}

func TestIngestBatchRejectsEmptyBatch(t *testing.T) {
	svc, _ := newDedupService(t)

	_, err := svc.IngestBatch(context.Background(), "org-1", &models.BulkIngestRequest{})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.IngestBatch(context.Background(), "org-1", nil)
	assert.ErrorIs(t, err, models.ErrValidation)
}
