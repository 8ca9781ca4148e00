package lms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mind-engage/mindengage-grades/internal/rollup"
)

// Fetcher is the part of the LMS client the syncer needs.
type Fetcher interface {
	OutcomeRollups(ctx context.Context, studentID, courseID string) ([]rollup.Record, error)
}

type Clock func() time.Time

// Syncer pulls rollups from the LMS into the local store and keeps the
// per (student, course) sync status.
type Syncer struct {
	Store rollup.Store
	LMS   Fetcher
	Now   Clock
	Log   *slog.Logger
}

func NewSyncer(store rollup.Store, lms Fetcher, now Clock, log *slog.Logger) *Syncer {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{Store: store, LMS: lms, Now: now, Log: log}
}

func (s *Syncer) SyncCourse(ctx context.Context, studentID, courseID string) (rollup.Set, error) {
	if err := s.Store.MarkSyncPending(ctx, studentID, courseID); err != nil {
		s.Log.WarnContext(ctx, "mark sync pending", "student_id", studentID, "course_id", courseID, "err", err)
	}

	records, err := s.LMS.OutcomeRollups(ctx, studentID, courseID)
	if err != nil {
		return rollup.Set{}, s.fail(ctx, studentID, courseID, err)
	}
	if err := rollup.Validate(records); err != nil {
		return rollup.Set{}, s.fail(ctx, studentID, courseID, err)
	}
	set, err := s.Store.ReplaceScores(ctx, studentID, courseID, records, s.Now().UTC())
	if err != nil {
		return rollup.Set{}, s.fail(ctx, studentID, courseID, fmt.Errorf("store rollups: %w", err))
	}
	if err := s.Store.MarkSyncOK(ctx, studentID, courseID); err != nil {
		return set, err
	}
	s.Log.InfoContext(ctx, "rollups synced",
		"student_id", studentID, "course_id", courseID,
		"version", set.Version, "outcomes", len(records))
	return set, nil
}

func (s *Syncer) fail(ctx context.Context, studentID, courseID string, err error) error {
	// keep the status write alive when the request ctx is the one that failed
	if mErr := s.Store.MarkSyncFailed(context.WithoutCancel(ctx), studentID, courseID, err.Error()); mErr != nil {
		s.Log.ErrorContext(ctx, "mark sync failed", "student_id", studentID, "course_id", courseID, "err", mErr)
	}
	s.Log.WarnContext(ctx, "rollup sync failed", "student_id", studentID, "course_id", courseID, "err", err)
	return err
}
