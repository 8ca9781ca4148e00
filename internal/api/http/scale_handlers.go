package http

import (
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-grades/internal/grading"
)

// GET /scale
func ScaleHandler(calc *grading.Calculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"grades": calc.Scale().Entries()})
	}
}

// GET /scale/compare?a=A-&b=B+
func CompareHandler(calc *grading.Calculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a := strings.TrimSpace(r.URL.Query().Get("a"))
		b := strings.TrimSpace(r.URL.Query().Get("b"))
		if a == "" || b == "" {
			badRequest(w, "a and b required")
			return
		}
		s := calc.Scale()
		o, err := s.Compare(a, b)
		if err != nil {
			writeError(w, err)
			return
		}
		best, _ := s.Best(a, b)
		writeJSON(w, http.StatusOK, map[string]any{
			"a": a, "b": b, "ordering": o.String(), "best": best,
		})
	}
}
