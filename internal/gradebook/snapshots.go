package gradebook

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNoSnapshot = errors.New("no grade snapshot")

// Snapshot records the grade computed for one rollup version.
type Snapshot struct {
	ID                 string    `json:"id"`
	StudentID          string    `json:"student_id"`
	CourseID           string    `json:"course_id"`
	Grade              string    `json:"grade"`
	LowestScore        *float64  `json:"lowest_score,omitempty"`
	LowestCountedScore *float64  `json:"lowest_counted_score,omitempty"`
	RollupVersion      int64     `json:"rollup_version"`
	CreatedAt          time.Time `json:"created_at"`
}

// SnapshotStore keeps at most one snapshot per rollup version.
type SnapshotStore interface {
	// Latest returns ErrNoSnapshot when nothing was recorded yet.
	Latest(ctx context.Context, studentID, courseID string) (Snapshot, error)
	// Append is a no-op when a snapshot for the same rollup version exists.
	Append(ctx context.Context, s Snapshot) error
	// List returns snapshots newest first; limit <= 0 means all.
	List(ctx context.Context, studentID, courseID string, limit int) ([]Snapshot, error)
}

type snapKey struct{ student, course string }

type memorySnapshots struct {
	mu   sync.RWMutex
	byID map[snapKey][]Snapshot // oldest first
}

func NewMemorySnapshots() SnapshotStore {
	return &memorySnapshots{byID: map[snapKey][]Snapshot{}}
}

func (m *memorySnapshots) Append(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := snapKey{s.StudentID, s.CourseID}
	for _, existing := range m.byID[k] {
		if existing.RollupVersion == s.RollupVersion {
			return nil
		}
	}
	m.byID[k] = append(m.byID[k], s)
	sort.SliceStable(m.byID[k], func(i, j int) bool {
		return m.byID[k][i].RollupVersion < m.byID[k][j].RollupVersion
	})
	return nil
}

func (m *memorySnapshots) Latest(ctx context.Context, studentID, courseID string) (Snapshot, error) {
	return latestOf(m.List(ctx, studentID, courseID, 1))
}

func (m *memorySnapshots) List(_ context.Context, studentID, courseID string, limit int) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.byID[snapKey{studentID, courseID}]
	out := make([]Snapshot, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

type SQLSnapshots struct{ db *sql.DB }

func NewSQLSnapshots(db *sql.DB) *SQLSnapshots { return &SQLSnapshots{db: db} }

func (s *SQLSnapshots) Append(ctx context.Context, snap Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO grade_snapshots (id, student_id, course_id, grade, lowest_score, lowest_counted_score, rollup_version, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (student_id, course_id, rollup_version) DO NOTHING`,
		snap.ID, snap.StudentID, snap.CourseID, snap.Grade,
		nullFloat(snap.LowestScore), nullFloat(snap.LowestCountedScore),
		snap.RollupVersion, snap.CreatedAt.UnixMilli())
	return err
}

func (s *SQLSnapshots) Latest(ctx context.Context, studentID, courseID string) (Snapshot, error) {
	return latestOf(s.List(ctx, studentID, courseID, 1))
}

func (s *SQLSnapshots) List(ctx context.Context, studentID, courseID string, limit int) ([]Snapshot, error) {
	q := `
		SELECT id, student_id, course_id, grade, lowest_score, lowest_counted_score, rollup_version, created_at
		FROM grade_snapshots
		WHERE student_id=$1 AND course_id=$2
		ORDER BY rollup_version DESC`
	args := []any{studentID, courseID}
	if limit > 0 {
		q += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var lowest, counted sql.NullFloat64
		var created int64
		if err := rows.Scan(&snap.ID, &snap.StudentID, &snap.CourseID, &snap.Grade,
			&lowest, &counted, &snap.RollupVersion, &created); err != nil {
			return nil, err
		}
		snap.LowestScore = floatPtr(lowest)
		snap.LowestCountedScore = floatPtr(counted)
		snap.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

func latestOf(list []Snapshot, err error) (Snapshot, error) {
	if err != nil {
		return Snapshot{}, err
	}
	if len(list) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return list[0], nil
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
