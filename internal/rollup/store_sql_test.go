package rollup

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_ReplaceScores(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := NewSQLStore(db)
	fetched := time.Unix(1700000000, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rollup_sets")).
		WithArgs("s1", "c1", fetched.Unix()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outcome_rollups WHERE student_id=$1 AND course_id=$2")).
		WithArgs("s1", "c1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outcome_rollups")).
		WithArgs("s1", "c1", "o1", 0, 3.5, false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outcome_rollups")).
		WithArgs("s1", "c1", "o2", 1, 2.0, true).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	set, err := st.ReplaceScores(context.Background(), "s1", "c1", []Record{
		{OutcomeID: "o1", Average: 3.5},
		{OutcomeID: "o2", Average: 2.0, DidDropWorstComponent: true},
	}, fetched)
	require.NoError(t, err)
	assert.Equal(t, int64(3), set.Version)
	assert.Len(t, set.Records, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_ReplaceScores_RollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO rollup_sets")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM outcome_rollups")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outcome_rollups")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = NewSQLStore(db).ReplaceScores(context.Background(), "s1", "c1", []Record{{OutcomeID: "o1", Average: 1}}, time.Now())
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetScores(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewSQLStore(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, fetched_at FROM rollup_sets WHERE student_id=$1 AND course_id=$2")).
		WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"version", "fetched_at"}).AddRow(2, 1700000000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT outcome_id, average, did_drop_worst")).
		WithArgs("s1", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"outcome_id", "average", "did_drop_worst"}).
			AddRow("o2", 2.5, false).
			AddRow("o1", 3.0, true))

	set, err := st.GetScores(context.Background(), "s1", "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), set.Version)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), set.FetchedAt)
	assert.Equal(t, []Record{{OutcomeID: "o2", Average: 2.5}, {OutcomeID: "o1", Average: 3.0, DidDropWorstComponent: true}}, set.Records)

	// not found
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, fetched_at FROM rollup_sets")).
		WithArgs("s1", "c9").
		WillReturnRows(sqlmock.NewRows([]string{"version", "fetched_at"}))
	_, err = st.GetScores(context.Background(), "s1", "c9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_MarkSyncFailed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rollup_sync_status (student_id, course_id, status, retries, last_error, updated_at)")).
		WithArgs("s1", "c1", "timeout", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewSQLStore(db).MarkSyncFailed(context.Background(), "s1", "c1", "timeout"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
