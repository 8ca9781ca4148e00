package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-grades/internal/gradebook"
	"github.com/mind-engage/mindengage-grades/internal/lms"
	"github.com/mind-engage/mindengage-grades/internal/rollup"
)

const (
	defaultHistory = 20
	maxHistory     = 200
	maxBody        = 1 << 20
)

type rollupsReq struct {
	OutcomeRollups []rollup.Record `json:"outcome_rollups"`
}

func decodeRollups(w http.ResponseWriter, r *http.Request) ([]rollup.Record, bool) {
	var req rollupsReq
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "bad json: "+err.Error())
		return nil, false
	}
	return req.OutcomeRollups, true
}

// studentCourse returns the path IDs exactly as the owner check saw them.
// IDs with surrounding whitespace are refused rather than normalized.
func studentCourse(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	studentID := chi.URLParam(r, "studentID")
	courseID := chi.URLParam(r, "courseID")
	if !cleanID(studentID) || !cleanID(courseID) {
		badRequest(w, "studentID and courseID must be non-empty without surrounding spaces")
		return "", "", false
	}
	return studentID, courseID, true
}

func cleanID(id string) bool { return id != "" && strings.TrimSpace(id) == id }

// POST /grades/compute
func ComputeHandler(svc *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, ok := decodeRollups(w, r)
		if !ok {
			return
		}
		res, err := svc.Compute(records)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// PUT /students/{studentID}/courses/{courseID}/rollups
func PutRollupsHandler(svc *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, courseID, ok := studentCourse(w, r)
		if !ok {
			return
		}
		records, ok := decodeRollups(w, r)
		if !ok {
			return
		}
		set, err := svc.ReplaceRollups(r.Context(), studentID, courseID, records)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}

// GET /students/{studentID}/courses/{courseID}/grade
func CourseGradeHandler(svc *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, courseID, ok := studentCourse(w, r)
		if !ok {
			return
		}
		rep, err := svc.CourseGrade(r.Context(), studentID, courseID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	}
}

// GET /students/{studentID}/courses/{courseID}/grade/explain?target=A
func ExplainHandler(svc *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, courseID, ok := studentCourse(w, r)
		if !ok {
			return
		}
		target := strings.TrimSpace(r.URL.Query().Get("target"))
		if target == "" {
			badRequest(w, "target required")
			return
		}
		gap, err := svc.Explain(r.Context(), studentID, courseID, target)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, gap)
	}
}

// GET /students/{studentID}/courses/{courseID}/history?limit=20
func HistoryHandler(svc *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, courseID, ok := studentCourse(w, r)
		if !ok {
			return
		}
		limit := defaultHistory
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				badRequest(w, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistory)
		}
		hist, err := svc.History(r.Context(), studentID, courseID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		if hist == nil {
			hist = []gradebook.Snapshot{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshots": hist})
	}
}

// POST /students/{studentID}/courses/{courseID}/sync
func SyncHandler(s *lms.Syncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, courseID, ok := studentCourse(w, r)
		if !ok {
			return
		}
		set, err := s.SyncCourse(r.Context(), studentID, courseID)
		if err != nil {
			// whatever the LMS did wrong, including bad rollups, is upstream
			var se *lms.StatusError
			msg := "lms sync failed"
			if errors.As(err, &se) {
				msg += ": " + se.Status
			}
			writeJSON(w, http.StatusBadGateway, errorBody{Error: msg})
			return
		}
		writeJSON(w, http.StatusOK, set)
	}
}

// GET /students/{studentID}/courses/{courseID}/sync
func SyncStatusHandler(svc *gradebook.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		studentID, courseID, ok := studentCourse(w, r)
		if !ok {
			return
		}
		st, err := svc.SyncStatus(r.Context(), studentID, courseID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}
