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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fitbet/bet-engine/internal/api"
	"github.com/fitbet/bet-engine/internal/betting"
	"github.com/fitbet/bet-engine/internal/clock"
	"github.com/fitbet/bet-engine/internal/config"
	"github.com/fitbet/bet-engine/internal/lock"
	"github.com/fitbet/bet-engine/internal/metrics"
	"github.com/fitbet/bet-engine/internal/notify"
	"github.com/fitbet/bet-engine/internal/stats"
	"github.com/fitbet/bet-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg); err != nil {
		slog.Error("bet-engine stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("bet-engine stopped")
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	clk := clock.System{}

	// --- Redis (cache + resolution lock) ---
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opt)
		defer rdb.Close()
	}

	// --- Initialize store ---
	var st store.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		if rdb != nil {
			st = store.NewCachedStore(st, rdb, cfg.RedisCacheTTL)
			slog.Info("Redis cache enabled", "ttl", cfg.RedisCacheTTL)
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	var locker lock.Locker = lock.NewLocalLocker()
	if rdb != nil {
		locker = lock.NewRedisLocker(rdb, 30*time.Second, 50*time.Millisecond)
		slog.Info("using Redis resolution lock")
	}

	// --- Notification sink ---
	hub := notify.NewHub()
	var publisher notify.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaNotificationsTopic)
		defer kp.Close()
		publisher = kp
		slog.Info("publishing notifications to Kafka", "topic", cfg.KafkaNotificationsTopic)
	}
	sink := notify.NewDispatcher(st, clk, publisher, hub)

	// --- Engine ---
	eng := betting.NewEngine(st, sink, locker, clk, betting.Options{
		GracePeriod: cfg.GracePeriod,
		Location:    loc,
		Currency:    cfg.CurrencyLabel,
	})
	handler := api.NewHandler(eng, stats.NewService(st, clk, loc), api.NewIdentity(cfg.AuthJWTSecret), clk, api.Options{
		CronSecret:  cfg.CronSecret,
		SweepBudget: cfg.SweepBudget,
		WS:          hub,
	})
	if cfg.AuthJWTSecret == "" {
		slog.Warn("AUTH_JWT_SECRET not set, trusting the X-User-ID header")
	}

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+api.UserIDHeader)
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"bet-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", handler.Routes)

	// --- Server ---
	// No WriteTimeout: websocket connections are long-lived and the
	// toggle finishes resolution even after a slow client.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("bet-engine listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runSweeper(gctx, eng, clk, cfg.SweepInterval, cfg.SweepBudget)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down bet-engine...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// runSweeper runs the deadline sweep every interval until ctx is done. A
// zero interval leaves sweeping to the cron endpoint.
func runSweeper(ctx context.Context, eng *betting.Engine, clk clock.Clock, interval, budget time.Duration) {
	if interval <= 0 {
		slog.Info("in-process sweep disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var cutoff time.Time
			if budget > 0 {
				cutoff = clk.Now().Add(budget)
			}
			if _, err := eng.Sweep(ctx, cutoff); err != nil && ctx.Err() == nil {
				slog.Error("scheduled sweep failed", "err", err)
			}
		}
	}
}
