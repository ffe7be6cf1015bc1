package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"saaskit/internal/cache"
	"saaskit/internal/common/logging"
	"saaskit/internal/config"
	"saaskit/internal/locks"
	"saaskit/internal/ratelimit"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logging.InitGlobalLogger()
	logger := logging.GetGlobalLogger()
	defer logging.MustSync()

	// Cache client: the single coordination handle shared by everything.
	cacheClient, err := cache.New(cache.FromAppConfig(cfg), logger)
	if err != nil {
		logger.Error("failed to initialize cache", err)
		os.Exit(1)
	}
	defer cacheClient.Close()

	lockManager, err := locks.NewLockManager(cacheClient)
	if err != nil {
		logger.Error("failed to initialize lock manager", err)
		os.Exit(1)
	}
	defer lockManager.Close()

	rlConfig := ratelimit.FromAppConfig(cfg)
	limiter, err := ratelimit.New(rlConfig, cacheClient, logger)
	if err != nil {
		logger.Error("failed to initialize rate limiter", err)
		os.Exit(1)
	}

	// Ops surface: health and limiter diagnostics, rate limited by client IP.
	router := mux.NewRouter()
	router.Use(ratelimit.HTTPMiddleware(limiter, rlConfig, ratelimit.IPKey))
	router.HandleFunc("/health", healthHandler(cacheClient)).Methods("GET")
	router.HandleFunc("/api/cache/stats", statsHandler(cacheClient, limiter)).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			logging.String("port", cfg.Port),
			logging.String("cache_backend", string(cacheClient.Backend())),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}

func healthHandler(client *cache.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		health := map[string]interface{}{
			"status":  "ok",
			"backend": string(client.Backend()),
		}
		if err := client.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			health["status"] = "degraded"
			health["error"] = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(health)
	}
}

func statsHandler(client *cache.Client, limiter ratelimit.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"backend":    string(client.Backend()),
			"rate_limit": limiter.Stats(),
		})
	}
}
