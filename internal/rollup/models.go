package rollup

import (
	"time"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

// Record is one outcome rollup as delivered by the LMS gateway.
type Record struct {
	OutcomeID             string  `json:"outcome_id" validate:"required,max=128"`
	Average               float64 `json:"average" validate:"finite,gte=0"`
	DidDropWorstComponent bool    `json:"did_drop_worst_component"`
}

// Set is the current rollup snapshot for one student in one course.
// Version increases every time the set is replaced.
type Set struct {
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	Version   int64     `json:"version"`
	FetchedAt time.Time `json:"fetched_at"`
	Records   []Record  `json:"records"`
}

// Scores converts the set to calculator input, keeping record order.
func (s Set) Scores() []grading.OutcomeScore {
	out := make([]grading.OutcomeScore, len(s.Records))
	for i, r := range s.Records {
		out[i] = grading.OutcomeScore{
			OutcomeID:             r.OutcomeID,
			Average:               r.Average,
			DidDropWorstComponent: r.DidDropWorstComponent,
		}
	}
	return out
}

type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncOK      SyncState = "ok"
	SyncFailed  SyncState = "failed"
)

// SyncStatus tracks the last pull of a rollup set from the LMS.
type SyncStatus struct {
	StudentID string    `json:"student_id"`
	CourseID  string    `json:"course_id"`
	Status    SyncState `json:"status"`
	Retries   int       `json:"retries"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
