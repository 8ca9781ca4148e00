package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	api "github.com/mind-engage/mindengage-grades/internal/api/http"
	auth "github.com/mind-engage/mindengage-grades/internal/auth/middleware"
	"github.com/mind-engage/mindengage-grades/internal/cache"
	"github.com/mind-engage/mindengage-grades/internal/config"
	"github.com/mind-engage/mindengage-grades/internal/db"
	"github.com/mind-engage/mindengage-grades/internal/gradebook"
	"github.com/mind-engage/mindengage-grades/internal/grading"
	"github.com/mind-engage/mindengage-grades/internal/lms"
	"github.com/mind-engage/mindengage-grades/internal/rollup"
)

func main() {
	cfg := config.FromEnv()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("gradesd exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Grading ---
	scale, err := grading.LoadScaleFile(cfg.GradeScaleFile)
	if err != nil {
		return err
	}
	policy, err := grading.ParseEmptyCountedPolicy(cfg.EmptyCountedPolicy)
	if err != nil {
		return err
	}
	calc := grading.NewCalculator(grading.WithScale(scale), grading.WithEmptyCountedPolicy(policy))

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return err
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		return err
	}
	defer dbh.Close()
	rollups := rollup.NewSQLStore(dbh)

	// --- Cache ---
	var c cache.Cache = cache.Nop{}
	switch cfg.CacheDriver {
	case "memory":
		m := cache.NewMemory(cfg.CacheTTL)
		go m.RunSweeper(ctx, time.Minute)
		c = m
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// grades still compute without the cache
			log.Warn("redis unavailable", "addr", cfg.RedisAddr, "err", err)
		}
		c = cache.NewRedis(rdb, cfg.CacheTTL, "grades:")
	}

	svc := gradebook.NewService(calc, rollups, gradebook.NewSQLSnapshots(dbh),
		gradebook.WithCache(c), gradebook.WithLogger(log))

	deps := api.Deps{
		Grades: svc,
		Auth:   auth.NewAuthService(cfg.AuthSecret),
		Ready:  dbh.PingContext,
	}
	if cfg.EnableLocalAuth {
		deps.Accounts = &auth.LocalAccounts{
			Dev:           cfg.Mode == config.ModeOffline,
			AdminUser:     cfg.AdminUser,
			AdminPassHash: cfg.AdminPassHash,
		}
	}
	if cfg.EnableLMSSync {
		client, err := lms.New(lms.Config{
			BaseURL:      cfg.LMSBaseURL,
			TokenURL:     cfg.LMSTokenURL,
			ClientID:     cfg.LMSClientID,
			ClientSecret: cfg.LMSClientSecret,
			Timeout:      cfg.LMSTimeout,
			RPS:          cfg.LMSRPS,
		})
		if err != nil {
			return err
		}
		deps.Syncer = lms.NewSyncer(rollups, client, nil, log)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	api.Mount(r, deps)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", driver,
		"cache", cfg.CacheDriver, "lms_sync", cfg.EnableLMSSync)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
