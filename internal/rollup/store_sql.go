package rollup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) ReplaceScores(ctx context.Context, studentID, courseID string, records []Record, fetchedAt time.Time) (Set, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Set{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO rollup_sets (student_id, course_id, version, fetched_at)
		VALUES ($1,$2,1,$3)
		ON CONFLICT (student_id, course_id)
		DO UPDATE SET version=rollup_sets.version+1, fetched_at=EXCLUDED.fetched_at
		RETURNING version`,
		studentID, courseID, fetchedAt.Unix()).Scan(&version)
	if err != nil {
		return Set{}, fmt.Errorf("bump rollup set: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM outcome_rollups WHERE student_id=$1 AND course_id=$2`,
		studentID, courseID); err != nil {
		return Set{}, fmt.Errorf("clear rollups: %w", err)
	}
	for i, r := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO outcome_rollups (student_id, course_id, outcome_id, position, average, did_drop_worst)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			studentID, courseID, r.OutcomeID, i, r.Average, r.DidDropWorstComponent); err != nil {
			return Set{}, fmt.Errorf("insert rollup %q: %w", r.OutcomeID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Set{}, err
	}
	return Set{
		StudentID: studentID,
		CourseID:  courseID,
		Version:   version,
		FetchedAt: time.Unix(fetchedAt.Unix(), 0).UTC(),
		Records:   append([]Record(nil), records...),
	}, nil
}

func (s *SQLStore) GetScores(ctx context.Context, studentID, courseID string) (Set, error) {
	set := Set{StudentID: studentID, CourseID: courseID}
	var fetched int64
	err := s.db.QueryRowContext(ctx,
		`SELECT version, fetched_at FROM rollup_sets WHERE student_id=$1 AND course_id=$2`,
		studentID, courseID).Scan(&set.Version, &fetched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Set{}, ErrNotFound
		}
		return Set{}, err
	}
	set.FetchedAt = time.Unix(fetched, 0).UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT outcome_id, average, did_drop_worst
		FROM outcome_rollups
		WHERE student_id=$1 AND course_id=$2
		ORDER BY position`,
		studentID, courseID)
	if err != nil {
		return Set{}, err
	}
	defer rows.Close()
	set.Records = []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.OutcomeID, &r.Average, &r.DidDropWorstComponent); err != nil {
			return Set{}, err
		}
		set.Records = append(set.Records, r)
	}
	return set, rows.Err()
}

func (s *SQLStore) MarkSyncPending(ctx context.Context, studentID, courseID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollup_sync_status (student_id, course_id, status, retries, updated_at)
		VALUES ($1,$2,'pending',0,$3)
		ON CONFLICT (student_id, course_id)
		DO UPDATE SET status='pending', updated_at=EXCLUDED.updated_at`,
		studentID, courseID, s.now().Unix())
	return err
}

func (s *SQLStore) MarkSyncOK(ctx context.Context, studentID, courseID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollup_sync_status (student_id, course_id, status, retries, updated_at)
		VALUES ($1,$2,'ok',0,$3)
		ON CONFLICT (student_id, course_id)
		DO UPDATE SET status='ok', last_error=NULL, updated_at=EXCLUDED.updated_at`,
		studentID, courseID, s.now().Unix())
	return err
}

func (s *SQLStore) MarkSyncFailed(ctx context.Context, studentID, courseID, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollup_sync_status (student_id, course_id, status, retries, last_error, updated_at)
		VALUES ($1,$2,'failed',1,$3,$4)
		ON CONFLICT (student_id, course_id)
		DO UPDATE SET
			status='failed',
			retries=rollup_sync_status.retries+1,
			last_error=EXCLUDED.last_error,
			updated_at=EXCLUDED.updated_at`,
		studentID, courseID, lastErr, s.now().Unix())
	return err
}

func (s *SQLStore) SyncStatus(ctx context.Context, studentID, courseID string) (SyncStatus, error) {
	st := SyncStatus{StudentID: studentID, CourseID: courseID}
	var lastErr sql.NullString
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT status, retries, last_error, updated_at
		FROM rollup_sync_status WHERE student_id=$1 AND course_id=$2`,
		studentID, courseID).Scan(&st.Status, &st.Retries, &lastErr, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SyncStatus{}, ErrNotFound
		}
		return SyncStatus{}, err
	}
	st.LastError = lastErr.String
	st.UpdatedAt = time.Unix(updated, 0).UTC()
	return st, nil
}
