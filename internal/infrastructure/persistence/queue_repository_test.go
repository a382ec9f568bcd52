package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/syncd/internal/domain/models"
)

func newRepoForTest(t *testing.T) (*QueueRepository, *sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewQueueRepository(db), db, mock
}

func TestQueueRepository_EnqueueInsertsPending(t *testing.T) {
	repo, db, mock := newRepoForTest(t)

	mock.ExpectExec(`(?s)INSERT INTO sync_mutation`).
		WithArgs(sqlmock.AnyArg(), "dev-1", "update", "leads", "l-3", `{"stage":"won"}`, 7, "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.Enqueue(context.Background(), db, &models.Mutation{
		DeviceID:  "dev-1",
		Operation: models.OpUpdate,
		Entity:    "leads",
		EntityID:  "l-3",
		Payload:   `{"stage":"won"}`,
		Priority:  7,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_GetPendingBatchOrdersByPriorityThenAge(t *testing.T) {
	repo, _, mock := newRepoForTest(t)

	// The ordering contract lives in the SQL: priority DESC, created_date ASC
	mock.ExpectQuery(`(?s)WHERE status = .+ORDER BY priority DESC, created_date ASC\s+LIMIT`).
		WithArgs("pending", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "operation", "entity", "entity_id", "payload", "priority", "retry_count", "created_date"}).
			AddRow("m-1", "dev-1", "delete", "notes", "n-1", "", 8, 0, time.Now()).
			AddRow("m-2", "dev-1", "create", "contacts", "", `{}`, 5, 2, time.Now()))

	batch, err := repo.GetPendingBatch(context.Background(), 50)
	require.NoError(t, err)

	require.Len(t, batch, 2)
	assert.Equal(t, "m-1", batch[0].ID)
	assert.Equal(t, models.OpDelete, batch[0].Operation)
	assert.Equal(t, models.StatusPending, batch[0].Status)
	assert.Equal(t, 2, batch[1].RetryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ClaimReturnsCurrentRetryCount(t *testing.T) {
	repo, db, mock := newRepoForTest(t)

	mock.ExpectQuery(`(?s)SELECT id, retry_count FROM sync_mutation.+FOR UPDATE SKIP LOCKED`).
		WithArgs("m-1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "retry_count"}).AddRow("m-1", 3))

	claimed, retryCount, err := repo.Claim(context.Background(), db, "m-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 3, retryCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ClaimReportsMissWhenTaken(t *testing.T) {
	repo, db, mock := newRepoForTest(t)

	mock.ExpectQuery(`(?s)FOR UPDATE SKIP LOCKED`).
		WithArgs("m-1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"id", "retry_count"}))

	claimed, _, err := repo.Claim(context.Background(), db, "m-1")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ReviveReportsMiss(t *testing.T) {
	repo, _, mock := newRepoForTest(t)

	mock.ExpectExec(`(?s)SET status = ., retry_count = 0`).
		WithArgs("pending", "m-1", "dev-1", "dead").
		WillReturnResult(sqlmock.NewResult(0, 0))

	revived, err := repo.Revive(context.Background(), "m-1", "dev-1")
	require.NoError(t, err)
	assert.False(t, revived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_CancelPendingScopesToDevice(t *testing.T) {
	repo, _, mock := newRepoForTest(t)

	mock.ExpectExec(`(?s)DELETE FROM sync_mutation\s+WHERE id = . AND device_id = . AND status = .`).
		WithArgs("m-1", "dev-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	cancelled, err := repo.CancelPending(context.Background(), "m-1", "dev-1")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_ListByDeviceAppliesFilters(t *testing.T) {
	repo, _, mock := newRepoForTest(t)

	mock.ExpectQuery(`(?s)WHERE device_id = . AND status = . AND entity = .\s+ORDER BY created_date DESC`).
		WithArgs("dev-1", "dead", "contacts", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "operation", "entity", "entity_id", "payload", "priority", "retry_count", "last_error", "status", "created_date"}).
			AddRow("m-9", "dev-1", "create", "contacts", "", `{}`, 5, 5, "max retries exceeded", "dead", time.Now()))

	list, err := repo.ListByDevice(context.Background(), "dev-1", "dead", "contacts", 20)
	require.NoError(t, err)

	require.Len(t, list, 1)
	assert.Equal(t, models.StatusDead, list[0].Status)
	assert.Equal(t, "max retries exceeded", list[0].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_StatsMapsStatuses(t *testing.T) {
	repo, _, mock := newRepoForTest(t)

	mock.ExpectQuery(`(?s)SELECT status, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 12).
			AddRow("delivered", 40).
			AddRow("dead", 3))

	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(12), stats.Pending)
	assert.Equal(t, int64(40), stats.Delivered)
	assert.Equal(t, int64(3), stats.Dead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepository_PurgeDelivered(t *testing.T) {
	repo, _, mock := newRepoForTest(t)

	mock.ExpectExec(`(?s)DELETE FROM sync_mutation\s+WHERE status = . AND delivered_date <`).
		WillReturnResult(sqlmock.NewResult(0, 17))

	purged, err := repo.PurgeDelivered(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(17), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
