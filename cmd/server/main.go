package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	budgetapp "github.com/orcamento/backend/internal/application/budget"
	"github.com/orcamento/backend/internal/domain/budget"
	"github.com/orcamento/backend/internal/infrastructure/config"
	"github.com/orcamento/backend/internal/infrastructure/logger"
	"github.com/orcamento/backend/internal/interfaces/http/handler"
	"github.com/orcamento/backend/internal/interfaces/http/middleware"
	"github.com/orcamento/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Configuration loaded",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Float64("reserve_ratio", cfg.Engine.ReserveRatio),
		zap.Float64("donation_cap", cfg.Engine.DonationCap),
		zap.Bool("class_affinity", cfg.Engine.ClassAffinity),
	)

	engine := budget.NewEngine(
		budget.WithReserveRatio(decimal.NewFromFloat(cfg.Engine.ReserveRatio)),
		budget.WithDonationCap(decimal.NewFromFloat(cfg.Engine.DonationCap)),
		budget.WithEpsilon(decimal.NewFromFloat(cfg.Engine.Epsilon)),
		budget.WithClassAffinity(cfg.Engine.ClassAffinity),
		budget.WithLogger(log.Named("engine")),
	)
	reallocationService := budgetapp.NewReallocationService(engine, log.Named("reallocation"))

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to set up request validator", zap.Error(err))
	}

	ginEngine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := ginEngine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	ginEngine.Use(middleware.RequestID())
	ginEngine.Use(logger.Recovery(log))
	ginEngine.Use(logger.GinMiddleware(log))
	ginEngine.Use(middleware.CORS(middleware.CORSConfig{
		AllowOrigins: cfg.HTTP.CORSAllowOrigins,
		AllowMethods: cfg.HTTP.CORSAllowMethods,
		AllowHeaders: cfg.HTTP.CORSAllowHeaders,
	}))
	ginEngine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	router.NewRouter(ginEngine, router.WithAPIVersion("v1")).
		Register(handler.NewReallocationHandler(reallocationService)).
		Register(handler.NewSystemHandler(cfg.App.Name)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
