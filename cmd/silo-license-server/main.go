package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	internalhttp "github.com/EternisAI/silo-license/internal/api/http"
	"github.com/EternisAI/silo-license/internal/api/http/middleware"
	"github.com/EternisAI/silo-license/internal/auth"
	"github.com/EternisAI/silo-license/internal/cache"
	"github.com/EternisAI/silo-license/internal/licenses"
	"github.com/EternisAI/silo-license/internal/metrics"
	"github.com/EternisAI/silo-license/internal/receipt"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Silo License Server", "version", AppVersion, "store", config.Store.Driver)

	ctx := context.Background()

	opened, err := openStore(ctx, config.Store)
	if err != nil {
		slog.Error("Failed to open license store", "error", err)
		os.Exit(1)
	}
	defer opened.close()

	var redisClient *redis.Client
	if config.Redis.Url != "" {
		redisClient, err = cache.Connect(ctx, config.Redis.Url)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	services, err := buildServices(opened, redisClient)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(corsConfig(ParseCommaSeparated(config.Http.CorsOrigins))))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Http.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}

func buildServices(opened *openedStore, redisClient *redis.Client) (*internalhttp.Services, error) {
	verifier := auth.NewVerifier(config.Http.AdminAPIKey, config.Http.AdminAPIKeyHash)
	if !verifier.Configured() {
		slog.Warn("No admin API key configured, admin routes will answer 503")
	}

	services := &internalhttp.Services{
		Engine:      licenses.NewEngine(opened.store, config.License),
		Admin:       licenses.NewAdmin(opened.store, config.License),
		Recorder:    licenses.NewRecorder(opened.store),
		Verifier:    verifier,
		Metrics:     metrics.New(),
		StoreDriver: config.Store.Driver,
		StorePinger: opened.pinger,
	}

	if config.Receipt.Secret != "" {
		signer, err := receipt.NewSigner(config.Receipt)
		if err != nil {
			return nil, err
		}
		services.Receipts = signer
		slog.Info("Activation receipts enabled", "issuer", config.Receipt.Issuer, "ttl", config.Receipt.TTL)
	}

	if config.Http.RateLimit.Requests > 0 {
		store, err := middleware.NewRateLimitStore(redisClient)
		if err != nil {
			return nil, err
		}
		limiter, err := middleware.NewRateLimiter(store, config.Http.RateLimit.Requests, config.Http.RateLimit.Period)
		if err != nil {
			return nil, err
		}
		services.RateLimiter = limiter
		slog.Info("Rate limiting enabled",
			"requests", config.Http.RateLimit.Requests,
			"period", config.Http.RateLimit.Period,
			"shared", redisClient != nil)
	}

	return services, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
