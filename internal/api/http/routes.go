package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-grades/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grades/internal/gradebook"
	"github.com/mind-engage/mindengage-grades/internal/lms"
	"github.com/mind-engage/mindengage-grades/internal/rbac"
)

type Deps struct {
	Grades *gradebook.Service
	Auth   *auth.AuthService
	// Accounts enables POST /auth/login when set.
	Accounts *auth.LocalAccounts
	// Syncer enables the LMS sync route when set.
	Syncer *lms.Syncer
	Ready  func(ctx context.Context) error
}

func ownerParam(r *http.Request) string { return chi.URLParam(r, "studentID") }

// Mount registers the public and JWT protected routes on r.
func Mount(r chi.Router, d Deps) {
	if d.Accounts != nil {
		r.Post("/auth/login", auth.LoginHandler(d.Auth, *d.Accounts))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	calc := d.Grades.Calculator()
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermScaleView)).Get("/scale", ScaleHandler(calc))
		pr.With(rbac.Require(rbac.PermScaleView)).Get("/scale/compare", CompareHandler(calc))
		pr.With(rbac.Require(rbac.PermGradeCompute)).Post("/grades/compute", ComputeHandler(d.Grades))

		pr.Route("/students/{studentID}/courses/{courseID}", func(sr chi.Router) {
			own := rbac.RequireOwnerOr(rbac.PermGradeViewOwn, rbac.PermGradeViewAll, ownerParam)

			sr.With(rbac.Require(rbac.PermRollupWrite)).Put("/rollups", PutRollupsHandler(d.Grades))
			sr.With(own).Get("/grade", CourseGradeHandler(d.Grades))
			sr.With(own).Get("/grade/explain", ExplainHandler(d.Grades))
			sr.With(own).Get("/history", HistoryHandler(d.Grades))
			sr.With(rbac.RequireAny(rbac.PermSyncStatusAll, rbac.PermRollupSync)).
				Get("/sync", SyncStatusHandler(d.Grades))
			if d.Syncer != nil {
				sr.With(rbac.Require(rbac.PermRollupSync)).Post("/sync", SyncHandler(d.Syncer))
			}
		})
	})
}
