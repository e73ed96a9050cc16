package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/footy-fc/squares-engine/internal/api"
	"github.com/footy-fc/squares-engine/internal/bank"
	"github.com/footy-fc/squares-engine/internal/engine"
	"github.com/footy-fc/squares-engine/internal/event"
	"github.com/footy-fc/squares-engine/internal/metrics"
	"github.com/footy-fc/squares-engine/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Event fanout: websocket stream + event log + metrics ---
	hub := api.NewHub()
	go hub.Run()

	sink := event.Fanout{
		hub,
		event.SinkFunc(func(e *event.Event) {
			if err := st.AppendEvent(context.Background(), e); err != nil {
				slog.Error("event log append failed", "event", e.ID, "err", err)
			}
		}),
		event.SinkFunc(observeEvent),
	}

	// --- Engine ---
	cfg := engine.Config{
		CommunityWallet:      os.Getenv("COMMUNITY_WALLET"),
		CommunityFeePercent:  envInt("COMMUNITY_FEE_PERCENT", 4),
		SaleWindow:           envDuration("SALE_WINDOW", 7*24*time.Hour),
		AllowPartialFinalize: os.Getenv("ALLOW_PARTIAL_FINALIZE") == "true",
	}

	eng, err := engine.New(cfg, bank.NewMemoryBank(), st, sink)
	if err != nil {
		slog.Error("engine init failed", "err", err)
		os.Exit(1)
	}
	if err := eng.Restore(context.Background()); err != nil {
		slog.Error("arena restore failed", "err", err)
		os.Exit(1)
	}

	svc := api.NewService(eng, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"squares-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", svc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("squares-engine listening", "port", port, "version", engine.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down squares-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("squares-engine stopped")
}

// observeEvent bumps Prometheus counters per committed engine event.
func observeEvent(e *event.Event) {
	switch e.Type {
	case event.GameCreated:
		metrics.GamesCreated.WithLabelValues(e.Attributes["asset"]).Inc()
		metrics.ActiveGames.Inc()
	case event.TicketsPurchased:
		if n, err := strconv.Atoi(e.Attributes["tickets"]); err == nil {
			metrics.TicketsSold.Add(float64(n))
		}
	case event.GameFinalized:
		metrics.GamesFinalized.Inc()
		metrics.ActiveGames.Dec()
	case event.PrizesDistributed:
		metrics.Distributions.Inc()
	case event.TicketsRefunded:
		metrics.Refunds.Inc()
		metrics.ActiveGames.Dec()
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("invalid integer env, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		slog.Warn("invalid duration env, using default", "key", key, "value", v, "default", def)
	}
	return def
}
