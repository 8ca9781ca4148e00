package gradebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-grades/internal/cache"
	"github.com/mind-engage/mindengage-grades/internal/grading"
	"github.com/mind-engage/mindengage-grades/internal/rollup"
)

// Report is the course grade of one student plus its movement against the
// grade recorded for the previous rollup version.
type Report struct {
	StudentID     string            `json:"student_id"`
	CourseID      string            `json:"course_id"`
	RollupVersion int64             `json:"rollup_version"`
	FetchedAt     time.Time         `json:"fetched_at"`
	Result        grading.Result    `json:"result"`
	Previous      string            `json:"previous,omitempty"`
	Trend         grading.Direction `json:"trend"`
}

type Service struct {
	calc      *grading.Calculator
	rollups   rollup.Store
	snapshots SnapshotStore
	cache     cache.Cache
	log       *slog.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

func WithCache(c cache.Cache) Option        { return func(s *Service) { s.cache = c } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(calc *grading.Calculator, rollups rollup.Store, snapshots SnapshotStore, opts ...Option) *Service {
	s := &Service{
		calc:      calc,
		rollups:   rollups,
		snapshots: snapshots,
		cache:     cache.Nop{},
		log:       slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Calculator() *grading.Calculator { return s.calc }

// Compute grades an ad hoc list of rollups. Nothing is stored.
func (s *Service) Compute(records []rollup.Record) (grading.Result, error) {
	if err := rollup.Validate(records); err != nil {
		return grading.Result{}, err
	}
	return s.calc.Compute(rollup.Set{Records: records}.Scores())
}

// ReplaceRollups validates and stores a new rollup set for the student.
func (s *Service) ReplaceRollups(ctx context.Context, studentID, courseID string, records []rollup.Record) (rollup.Set, error) {
	if err := rollup.Validate(records); err != nil {
		return rollup.Set{}, err
	}
	set, err := s.rollups.ReplaceScores(ctx, studentID, courseID, records, s.now().UTC())
	if err != nil {
		return rollup.Set{}, fmt.Errorf("store rollups: %w", err)
	}
	s.log.InfoContext(ctx, "rollups replaced",
		"student_id", studentID, "course_id", courseID,
		"version", set.Version, "outcomes", len(records))
	return set, nil
}

func (s *Service) CourseGrade(ctx context.Context, studentID, courseID string) (Report, error) {
	set, err := s.rollups.GetScores(ctx, studentID, courseID)
	if err != nil {
		return Report{}, err
	}
	res, err := s.result(ctx, set)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		StudentID:     studentID,
		CourseID:      courseID,
		RollupVersion: set.Version,
		FetchedAt:     set.FetchedAt,
		Result:        res,
		Trend:         grading.NoTrend,
	}

	recent, err := s.snapshots.List(ctx, studentID, courseID, 2)
	if err != nil {
		return Report{}, fmt.Errorf("load snapshots: %w", err)
	}
	// The snapshot for the current version, if any, is not "previous".
	if len(recent) > 0 && recent[0].RollupVersion == set.Version {
		recent = recent[1:]
	} else if err := s.record(ctx, set, res); err != nil {
		return Report{}, err
	}
	if len(recent) > 0 {
		rep.Previous = recent[0].Grade
		dir, err := grading.Trend(s.calc.Scale(), rep.Previous, res.Grade)
		if err != nil {
			// the scale changed since the snapshot was taken
			s.log.WarnContext(ctx, "trend unavailable",
				"student_id", studentID, "course_id", courseID,
				"previous", rep.Previous, "err", err)
		} else {
			rep.Trend = dir
		}
	}
	return rep, nil
}

// Explain reports what the student's current outcomes lack for target.
func (s *Service) Explain(ctx context.Context, studentID, courseID, target string) (grading.Gap, error) {
	set, err := s.rollups.GetScores(ctx, studentID, courseID)
	if err != nil {
		return grading.Gap{}, err
	}
	res, err := s.result(ctx, set)
	if err != nil {
		return grading.Gap{}, err
	}
	return s.calc.Explain(res, target)
}

func (s *Service) History(ctx context.Context, studentID, courseID string, limit int) ([]Snapshot, error) {
	return s.snapshots.List(ctx, studentID, courseID, limit)
}

func (s *Service) SyncStatus(ctx context.Context, studentID, courseID string) (rollup.SyncStatus, error) {
	return s.rollups.SyncStatus(ctx, studentID, courseID)
}

func (s *Service) record(ctx context.Context, set rollup.Set, res grading.Result) error {
	snap := Snapshot{
		ID:                 s.newID(),
		StudentID:          set.StudentID,
		CourseID:           set.CourseID,
		Grade:              res.Grade,
		LowestScore:        res.LowestScore,
		LowestCountedScore: res.LowestCountedScore,
		RollupVersion:      set.Version,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.snapshots.Append(ctx, snap); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	s.log.InfoContext(ctx, "grade recorded",
		"student_id", set.StudentID, "course_id", set.CourseID,
		"grade", res.Grade, "rollup_version", set.Version)
	return nil
}

// result computes the grade for set, memoised per rollup version. Cache
// failures only cost a recompute.
func (s *Service) result(ctx context.Context, set rollup.Set) (grading.Result, error) {
	key := cacheKey(set)
	if b, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.WarnContext(ctx, "cache get failed", "key", key, "err", err)
	} else if ok {
		var res grading.Result
		if err := json.Unmarshal(b, &res); err == nil {
			return res, nil
		}
		_ = s.cache.Delete(ctx, key)
	}

	res, err := s.calc.Compute(set.Scores())
	if err != nil {
		return grading.Result{}, err
	}
	if b, err := json.Marshal(res); err == nil {
		if err := s.cache.Set(ctx, key, b); err != nil {
			s.log.WarnContext(ctx, "cache set failed", "key", key, "err", err)
		}
	}
	return res, nil
}

// cacheKey length-prefixes the IDs so no pair of (student, course) can
// collide, whatever characters the IDs contain.
func cacheKey(set rollup.Set) string {
	return fmt.Sprintf("grade:%d:%s:%d:%s:v%d",
		len(set.StudentID), set.StudentID, len(set.CourseID), set.CourseID, set.Version)
}

// IsNotFound reports whether err means there is nothing to grade yet.
func IsNotFound(err error) bool {
	return errors.Is(err, rollup.ErrNotFound) || errors.Is(err, ErrNoSnapshot)
}
