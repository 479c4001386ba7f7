package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/papertrade/engine/internal/catalog"
	"github.com/papertrade/engine/internal/config"
	"github.com/papertrade/engine/internal/ledger"
	"github.com/papertrade/engine/internal/metrics"
	"github.com/papertrade/engine/internal/movement"
	"github.com/papertrade/engine/internal/store"
	"github.com/papertrade/engine/internal/trading"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	var cfg *config.Config
	if *configPath != "" {
		loaded, err := config.LoadAndValidate(*configPath)
		if err != nil {
			slog.Error("config load failed", "path", *configPath, "err", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.URL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		fs, err := store.NewFileStore(cfg.Data.Dir)
		if err != nil {
			slog.Error("data directory unavailable", "dir", cfg.Data.Dir, "err", err)
			os.Exit(1)
		}
		st = fs
		slog.Info("using file persistence", "dir", cfg.Data.Dir)
	}

	// Wrap with Redis read-through cache if configured.
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("invalid redis url", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Redis.TTL)
		slog.Info("Redis cache enabled", "ttl", cfg.Redis.TTL)
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price catalog ---
	maxMove, _ := cfg.MaxMove()
	floor, _ := cfg.Floor()
	seed := cfg.Simulation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	policy, err := movement.NewPolicy(maxMove, floor, rand.NewSource(seed))
	if err != nil {
		slog.Error("invalid movement policy", "err", err)
		os.Exit(1)
	}

	cat := catalog.New(policy)
	loadCatalog(st, cat)

	// --- WebSocket hub ---
	wsHub := trading.NewWSHub()
	go wsHub.Run()

	// --- Trading engine ---
	engine := trading.NewEngine(cat, wsHub)
	loadAccounts(st, engine)

	initialBalance, _ := cfg.InitialBalance()
	api := trading.NewAPI(engine, st, initialBalance)

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
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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
		w.Write([]byte(`{"status":"ok","service":"papertrade-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time price and trade updates.
		r.Get("/ws", wsHub.HandleWS)
		api.Routes(r)
	})

	// --- Background price ticker ---
	tickerDone := make(chan struct{})
	if interval := cfg.Simulation.Interval; interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					engine.SimulateMovement()
				case <-tickerDone:
					return
				}
			}
		}()
		slog.Info("price simulation ticker running", "interval", interval)
	}

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("papertrade-engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	close(tickerDone)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down papertrade-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	// Best-effort final snapshot so a clean stop loses nothing.
	saveAll(ctx, st, engine)
	fmt.Println("papertrade-engine stopped")
}

// loadCatalog restores instruments from the store. A missing or empty
// snapshot seeds the default listings; a corrupt one is discarded with a
// warning rather than blocking startup.
func loadCatalog(st store.Store, cat *catalog.Catalog) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	instruments, err := st.LoadCatalog(ctx)
	switch {
	case errors.Is(err, ledger.ErrCorruptData):
		slog.Warn("catalog snapshot corrupt, starting from defaults", "err", err)
	case err != nil:
		slog.Warn("catalog load failed, starting from defaults", "err", err)
	case len(instruments) > 0:
		if err := cat.Restore(instruments); err != nil {
			slog.Warn("catalog snapshot invalid, starting from defaults", "err", err)
		}
	}

	if cat.Len() == 0 {
		cat.SeedDefaults()
		slog.Info("seeded default instruments", "count", cat.Len())
	} else {
		slog.Info("catalog restored", "count", cat.Len())
	}
	metrics.Instruments.Set(float64(cat.Len()))
}

// loadAccounts restores accounts from the store. A corrupt snapshot means
// starting with no accounts, not crashing.
func loadAccounts(st store.Store, engine *trading.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	accounts, err := st.LoadAccounts(ctx)
	switch {
	case errors.Is(err, ledger.ErrCorruptData):
		slog.Warn("account snapshot corrupt, starting empty", "err", err)
	case err != nil:
		slog.Warn("account load failed, starting empty", "err", err)
	case len(accounts) > 0:
		engine.Restore(accounts)
		slog.Info("accounts restored", "count", len(accounts))
	}
}

func saveAll(ctx context.Context, st store.Store, engine *trading.Engine) {
	if err := st.SaveCatalog(ctx, engine.Catalog().Snapshot()); err != nil {
		slog.Warn("final catalog save failed", "err", err)
	}
	for _, a := range engine.Accounts() {
		if err := st.SaveAccount(ctx, a); err != nil {
			slog.Warn("final account save failed", "account", a.ID(), "err", err)
		}
	}
}
