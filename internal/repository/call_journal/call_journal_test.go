package calljournal

import (
	"context"
	"errors"
	"testing"
	"time"

	"CallCoordinator/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{
	"call_id", "caller_user", "callee_user", "status", "started_at",
	"answered_at", "ended_at", "duration_sec", "ended_by", "end_reason",
	"created_at", "updated_at",
}

func newRepo(t *testing.T) (*CallJournalRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCallJournalRepo(db), mock
}

func TestAppendInitiated(t *testing.T) {
	repo, mock := newRepo(t)
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO call_journals").
		WithArgs("c1", "emp-1", "doc-1", StatusInitiated, started, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), CallJournal{
		CallID:     "c1",
		CallerUser: "emp-1",
		CalleeUser: "doc-1",
		Status:     StatusInitiated,
		StartedAt:  started,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEnded(t *testing.T) {
	repo, mock := newRepo(t)
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(42 * time.Second)
	d := 42

	mock.ExpectExec(`ON CONFLICT \(call_id\) DO UPDATE`).
		WithArgs("c1", "emp-1", "doc-1", StatusEnded, started, nil, ended, 42, "system", "disconnect").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), CallJournal{
		CallID:      "c1",
		CallerUser:  "emp-1",
		CalleeUser:  "doc-1",
		Status:      StatusEnded,
		StartedAt:   started,
		EndedAt:     &ended,
		DurationSec: &d,
		EndedBy:     repository.CallEndedBySystem,
		EndReason:   "disconnect",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendError(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectExec("INSERT INTO call_journals").WillReturnError(errors.New("connection reset"))

	err := repo.Append(context.Background(), CallJournal{CallID: "c9", Status: StatusInitiated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "c9")
}

func TestGet(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM call_journals").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("c1", "emp-1", "doc-1", "ended", now, now.Add(time.Second), now.Add(5*time.Second), 5, "caller", "hangup", now, now))

	rec, err := repo.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, rec.Status)
	require.NotNil(t, rec.DurationSec)
	assert.Equal(t, 5, *rec.DurationSec)
	assert.Equal(t, repository.CallEndedByCaller, rec.EndedBy)
	assert.Equal(t, "hangup", rec.EndReason)

	mock.ExpectQuery("FROM call_journals").WithArgs("nope").WillReturnRows(sqlmock.NewRows(columns))
	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	repo, mock := newRepo(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE caller_user = \$1 OR callee_user = \$1 ORDER BY started_at DESC LIMIT \$2`).
		WithArgs("emp-1", 10).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("c2", "emp-1", "doc-1", "initiated", now, nil, nil, nil, nil, nil, now, now).
			AddRow("c1", "doc-2", "emp-1", "rejected", now.Add(-time.Minute), nil, now, nil, "callee", nil, now, now))

	recs, err := repo.List(context.Background(), ListFilter{UserID: "emp-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].AnsweredAt)
	assert.Nil(t, recs[0].DurationSec)
	assert.Equal(t, repository.CallEndedByCallee, recs[1].EndedBy)

	mock.ExpectQuery(`ORDER BY started_at DESC LIMIT \$1`).
		WithArgs(DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(columns))
	recs, err = repo.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
