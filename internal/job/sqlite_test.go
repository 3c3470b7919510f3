package job

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*SQLiteRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db), mock
}

var jobColumns = []string{
	"id", "kind", "status", "input", "output", "progress", "error_kind", "error_message",
	"result", "created_at", "updated_at", "started_at", "completed_at",
}

func TestSQLiteRepository_InitSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS jobs").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRepository_Save(t *testing.T) {
	repo, mock := newMockRepo(t)
	job := NewWithID("job-1", KindCompress, "in.mp4")
	job.Output = "out.mp4"

	mock.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", "compress", "IN_QUEUE", "in.mp4", "out.mp4", 0, "", "",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Save(context.Background(), job))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRepository_Save_Error(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO jobs").WillReturnError(errors.New("database is locked"))

	err := repo.Save(context.Background(), NewWithID("job-1", KindProbe, "in.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestSQLiteRepository_FindByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	started := created.Add(time.Second)

	rows := sqlmock.NewRows(jobColumns).AddRow(
		"job-1", "probe", "RUNNING", "in.mp4", "", 40, "", "",
		nil, created, started, started, nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id = ?").WithArgs("job-1").WillReturnRows(rows)

	job, err := repo.FindByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, KindProbe, job.Kind)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 40, job.Progress)
	assert.Equal(t, started, job.StartedAt)
	assert.True(t, job.CompletedAt.IsZero())
	assert.Nil(t, job.Result)
}

func TestSQLiteRepository_FindByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM jobs WHERE id = ?").WithArgs("missing").WillReturnRows(sqlmock.NewRows(jobColumns))

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSQLiteRepository_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	rows := sqlmock.NewRows(jobColumns).
		AddRow("job-1", "probe", "COMPLETED", "a.mp4", "", 100, "", "", []byte(`{"width":640}`), now, now, now, now).
		AddRow("job-2", "compress", "FAILED", "b.mp4", "b.out.mp4", 12, "io_error", "disk full", nil, now, now, now, now)
	mock.ExpectQuery("SELECT (.+) FROM jobs ORDER BY created_at, id").WillReturnRows(rows)

	jobs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.JSONEq(t, `{"width":640}`, string(jobs[0].Result))
	assert.Equal(t, "io_error", jobs[1].ErrorKind)
	assert.Equal(t, "disk full", jobs[1].Error)
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("DELETE FROM jobs WHERE id = ?").WithArgs("job-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM jobs WHERE id = ?").WithArgs("job-2").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), "job-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "job-2"), ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRepository_RoundTrip(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		// The driver needs cgo.
		t.Skipf("sqlite unavailable: %v", err)
	}
	defer func() { _ = repo.Close() }()
	ctx := context.Background()

	job := New(KindEstimate, "in.mp4")
	require.NoError(t, repo.Save(ctx, job))
	require.NoError(t, job.Start())
	require.NoError(t, job.Complete(json.RawMessage(`{"estimated_size_bytes":42}`)))
	require.NoError(t, repo.Save(ctx, job))

	got, err := repo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.JSONEq(t, `{"estimated_size_bytes":42}`, string(got.Result))
	assert.False(t, got.StartedAt.IsZero())

	_, err = repo.FindByID(ctx, "job-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.NoError(t, repo.Delete(ctx, job.ID))
}
