package postgres_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-discovery/internal/ledger"
	"github.com/JakeFAU/creator-discovery/internal/scraping"
	"github.com/JakeFAU/creator-discovery/internal/storage/postgres"
)

var jobCols = []string{
	"id", "user_id", "campaign_id", "platform", "keywords", "target_username",
	"target_results", "status", "processed_results", "progress", "cursor", "timeout_at", "search_params",
	"error", "created_at", "updated_at", "started_at", "completed_at",
}

func newStore(t *testing.T) (*postgres.Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := postgres.NewWithPool(mock)
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return store, mock
}

func jobRow(id string, status scraping.JobStatus, now time.Time) []any {
	return []any{
		id, "user-1", "camp-1", "tiktok", []string{"yoga"}, "",
		100, string(status), 0, 0, "", now.Add(time.Hour), []byte(`{"runner":"tiktok_keyword","searchType":"keyword"}`),
		"", now, now, nil, nil,
	}
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	_, err := postgres.NewWithPool(nil)
	require.Error(t, err)
}

func TestCreateJobInsertsRow(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := scraping.Job{
		ID:            "job-1",
		UserID:        "user-1",
		CampaignID:    "camp-1",
		Platform:      scraping.PlatformTikTok,
		Keywords:      []string{"yoga"},
		TargetResults: 100,
		Status:        scraping.JobStatusPending,
		TimeoutAt:     now.Add(time.Hour),
		SearchParams:  scraping.SearchParams{Runner: "tiktok_keyword", SearchType: scraping.SearchTypeKeyword},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	mock.ExpectExec("INSERT INTO scraping_jobs").
		WithArgs("job-1", "user-1", pgxmock.AnyArg(), "tiktok", []string{"yoga"}, pgxmock.AnyArg(),
			100, "pending", 0, 0, now.Add(time.Hour), pgxmock.AnyArg(), now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobDuplicateIsConflict(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("INSERT INTO scraping_jobs").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.CreateJob(context.Background(), scraping.Job{ID: "job-1"})
	require.ErrorIs(t, err, scraping.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobScansRow(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM scraping_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(jobRow("job-1", scraping.JobStatusProcessing, now)...))

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, scraping.PlatformTikTok, job.Platform)
	assert.Equal(t, scraping.JobStatusProcessing, job.Status)
	assert.Equal(t, []string{"yoga"}, job.Keywords)
	assert.Equal(t, "tiktok_keyword", job.SearchParams.Runner)
	assert.Nil(t, job.StartedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobMissing(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT (.+) FROM scraping_jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(jobCols))

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, scraping.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTimedOutFlipsActiveJob(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := jobRow("job-1", scraping.JobStatusTimeout, now)
	mock.ExpectQuery("UPDATE scraping_jobs").
		WithArgs("job-1", "timed out", now).
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(row...))

	job, changed, err := store.MarkTimedOut(context.Background(), "job-1", now, "timed out")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, scraping.JobStatusTimeout, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTimedOutLeavesTerminalJob(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("UPDATE scraping_jobs").
		WithArgs("job-1", "timed out", now).
		WillReturnRows(pgxmock.NewRows(jobCols))
	mock.ExpectQuery("SELECT (.+) FROM scraping_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(jobRow("job-1", scraping.JobStatusCompleted, now)...))

	job, changed, err := store.MarkTimedOut(context.Background(), "job-1", now, "timed out")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, scraping.JobStatusCompleted, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgressRejectedOnTerminalJob(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	processed := 40
	mock.ExpectExec("UPDATE scraping_jobs SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM scraping_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(jobRow("job-1", scraping.JobStatusTimeout, now)...))

	err := store.UpdateProgress(context.Background(), "job-1", scraping.ProgressUpdate{ProcessedResults: &processed, At: now})
	require.ErrorIs(t, err, scraping.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgressApplies(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE scraping_jobs SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	status := scraping.JobStatusProcessing
	err := store.UpdateProgress(context.Background(), "job-1", scraping.ProgressUpdate{Status: &status, At: now})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendResultUnknownJob(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("INSERT INTO scraping_results").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := store.AppendResult(context.Background(), "missing", []json.RawMessage{json.RawMessage(`{"handle":"a"}`)}, time.Now())
	require.ErrorIs(t, err, scraping.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultPageWindow(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT COALESCE\\(SUM").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"total"}).AddRow(3))
	mock.ExpectQuery("jsonb_array_elements").
		WithArgs("job-1", 2, 1).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).
			AddRow([]byte(`{"handle":"b"}`)).
			AddRow([]byte(`{"handle":"c"}`)))

	page, err := store.ResultPage(context.Background(), "job-1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page.Creators, 2)
	assert.JSONEq(t, `{"handle":"b"}`, string(page.Creators[0]))
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Nil(t, page.Pagination.NextOffset)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultPageOrdersByInsertion(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT COALESCE\\(SUM").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"total"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY r.seq, c.ord")).
		WithArgs("job-1", 10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).
			AddRow([]byte(`{"handle":"first"}`)).
			AddRow([]byte(`{"handle":"second"}`)))

	page, err := store.ResultPage(context.Background(), "job-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Creators, 2)
	assert.JSONEq(t, `{"handle":"first"}`, string(page.Creators[0]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendResultUsesTimeOrderedID(t *testing.T) {
	store, mock := newStore(t)
	now := time.Now()
	mock.ExpectExec("INSERT INTO scraping_results").
		WithArgs(v7ID{}, "job-1", []byte(`[{"handle":"a"}]`), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.AppendResult(context.Background(), "job-1", []json.RawMessage{json.RawMessage(`{"handle":"a"}`)}, now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// v7ID matches a UUID string carrying the time-ordered version.
type v7ID struct{}

func (v7ID) Match(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	id, err := uuid.Parse(s)
	return err == nil && id.Version() == 7
}

func TestResultPagePastEndSkipsQuery(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectQuery("SELECT COALESCE\\(SUM").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"total"}).AddRow(2))

	page, err := store.ResultPage(context.Background(), "job-1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, page.Creators)
	assert.NotNil(t, page.Creators)
	assert.Equal(t, 2, page.Pagination.Total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUserConflict(t *testing.T) {
	store, mock := newStore(t)
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := store.CreateUser(context.Background(), scraping.User{ID: "user-1", Email: "a@example.com", Plan: "free", CreatedAt: now, UpdatedAt: now})
	require.ErrorIs(t, err, scraping.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUserDeletedMissing(t *testing.T) {
	store, mock := newStore(t)
	now := time.Now().UTC()
	mock.ExpectExec("UPDATE users SET deleted_at").
		WithArgs("ghost", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.MarkUserDeleted(context.Background(), "ghost", now)
	require.ErrorIs(t, err, scraping.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageCounts(t *testing.T) {
	store, mock := newStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM campaigns").
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("JOIN scraping_jobs").
		WithArgs("user-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(250))

	campaigns, err := store.CountCampaigns(context.Background(), "user-1")
	require.NoError(t, err)
	creators, err := store.CountCreatorsSince(context.Background(), "user-1", since)
	require.NoError(t, err)
	assert.Equal(t, 2, campaigns)
	assert.Equal(t, 250, creators)
	require.NoError(t, mock.ExpectationsWereMet())
}

var eventCols = []string{
	"id", "idempotency_key", "event_id", "source", "event_type", "aggregate_id",
	"event_timestamp", "payload", "processing_status", "error", "attempts", "created_at", "processed_at",
}

func TestInsertEventReturnsExistingRow(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := ledger.Record{
		ID: "01J", Key: "clerk:msg_1", EventID: "msg_1", Source: "clerk", Type: "user.created",
		AggregateID: "user_1", EventTimestamp: now, Payload: json.RawMessage(`{}`),
		Status: ledger.StatusPending, Attempts: 1, CreatedAt: now,
	}
	mock.ExpectQuery("INSERT INTO webhook_events").
		WillReturnRows(pgxmock.NewRows(eventCols))
	mock.ExpectQuery("SELECT (.+) FROM webhook_events").
		WithArgs("clerk:msg_1").
		WillReturnRows(pgxmock.NewRows(eventCols).AddRow(
			"01H", "clerk:msg_1", "msg_1", "clerk", "user.created", "user_1",
			now, []byte(`{}`), "completed", "", 1, now, &now,
		))

	stored, created, err := store.InsertEvent(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "01H", stored.ID)
	assert.Equal(t, ledger.StatusCompleted, stored.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEventFirstWriterWins(t *testing.T) {
	store, mock := newStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO webhook_events").
		WillReturnRows(pgxmock.NewRows(eventCols).AddRow(
			"01J", "clerk:msg_1", "msg_1", "clerk", "user.created", "user_1",
			now, []byte(`{}`), "pending", "", 1, now, nil,
		))

	stored, created, err := store.InsertEvent(context.Background(), ledger.Record{ID: "01J", Key: "clerk:msg_1"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ledger.StatusPending, stored.Status)
	assert.Nil(t, stored.ProcessedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReclaimFailedEvent(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs("clerk:msg_1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := store.ReclaimFailedEvent(context.Background(), "clerk:msg_1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetIntentStatusMissing(t *testing.T) {
	store, mock := newStore(t)
	mock.ExpectExec("UPDATE background_jobs").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.SetIntentStatus(context.Background(), "intent:x:y", ledger.StatusCompleted, "msg", "", time.Now())
	require.ErrorIs(t, err, ledger.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
