package rollup

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("rollups not found")

// Store persists the latest rollup set per (student, course). A set is
// replaced wholesale; record order is kept.
type Store interface {
	ReplaceScores(ctx context.Context, studentID, courseID string, records []Record, fetchedAt time.Time) (Set, error)
	GetScores(ctx context.Context, studentID, courseID string) (Set, error)

	MarkSyncPending(ctx context.Context, studentID, courseID string) error
	MarkSyncOK(ctx context.Context, studentID, courseID string) error
	MarkSyncFailed(ctx context.Context, studentID, courseID, lastErr string) error
	SyncStatus(ctx context.Context, studentID, courseID string) (SyncStatus, error)
}

type memKey struct{ student, course string }

type memoryStore struct {
	mu     sync.RWMutex
	sets   map[memKey]Set
	status map[memKey]SyncStatus
	now    func() time.Time
}

func NewMemoryStore() Store {
	return &memoryStore{
		sets:   map[memKey]Set{},
		status: map[memKey]SyncStatus{},
		now:    time.Now,
	}
}

func (m *memoryStore) ReplaceScores(_ context.Context, studentID, courseID string, records []Record, fetchedAt time.Time) (Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{studentID, courseID}
	prev := m.sets[k]
	s := Set{
		StudentID: studentID,
		CourseID:  courseID,
		Version:   prev.Version + 1,
		FetchedAt: fetchedAt,
		Records:   append([]Record(nil), records...),
	}
	m.sets[k] = s
	return copySet(s), nil
}

func (m *memoryStore) GetScores(_ context.Context, studentID, courseID string) (Set, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sets[memKey{studentID, courseID}]
	if !ok {
		return Set{}, ErrNotFound
	}
	return copySet(s), nil
}

func (m *memoryStore) MarkSyncPending(_ context.Context, studentID, courseID string) error {
	m.update(studentID, courseID, func(st *SyncStatus) { st.Status = SyncPending })
	return nil
}

func (m *memoryStore) MarkSyncOK(_ context.Context, studentID, courseID string) error {
	m.update(studentID, courseID, func(st *SyncStatus) { st.Status, st.LastError = SyncOK, "" })
	return nil
}

func (m *memoryStore) MarkSyncFailed(_ context.Context, studentID, courseID, lastErr string) error {
	m.update(studentID, courseID, func(st *SyncStatus) {
		st.Status, st.LastError = SyncFailed, lastErr
		st.Retries++
	})
	return nil
}

func (m *memoryStore) SyncStatus(_ context.Context, studentID, courseID string) (SyncStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[memKey{studentID, courseID}]
	if !ok {
		return SyncStatus{}, ErrNotFound
	}
	return st, nil
}

func (m *memoryStore) update(studentID, courseID string, fn func(*SyncStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{studentID, courseID}
	st := m.status[k]
	st.StudentID, st.CourseID = studentID, courseID
	fn(&st)
	st.UpdatedAt = m.now()
	m.status[k] = st
}

func copySet(s Set) Set {
	s.Records = append([]Record(nil), s.Records...)
	return s
}
