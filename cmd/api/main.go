// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/storefront-checkout/internal/config"
	"github.com/your-org/storefront-checkout/internal/domain/cart"
	"github.com/your-org/storefront-checkout/internal/domain/checkout"
	"github.com/your-org/storefront-checkout/internal/infrastructure/backend"
	"github.com/your-org/storefront-checkout/internal/infrastructure/database/postgres"
	"github.com/your-org/storefront-checkout/internal/infrastructure/database/redis"
	"github.com/your-org/storefront-checkout/internal/interfaces/http"
	"github.com/your-org/storefront-checkout/internal/pkg/auth"
	"github.com/your-org/storefront-checkout/internal/pkg/email"
	"github.com/your-org/storefront-checkout/internal/pkg/logger"
	"github.com/your-org/storefront-checkout/internal/pkg/pdf"
)

const paymentCacheSweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logr := logger.New(cfg)
	logr.WithFields(logrus.Fields{
		"name":        cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("🚀 Starting checkout service")

	db, err := postgres.NewConnection(cfg, logr)
	if err != nil {
		logr.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStartup()

	redisClient, err := redis.NewConnection(startupCtx, cfg, logr)
	if err != nil {
		logr.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	if err := db.Health(startupCtx); err != nil {
		logr.WithError(err).Fatal("Database health check failed")
	}

	if err := postgres.NewMigration(db.GetDB(), logr).Run(); err != nil {
		logr.WithError(err).Fatal("Database migration failed")
	}

	backendClient := backend.NewClient(cfg, logr)
	repo := checkout.NewRepository(db.GetDB())

	orchestrator := checkout.NewService(checkout.Dependencies{
		Carts:    cart.NewService(backendClient, logr),
		Gateway:  backendClient,
		Sessions: checkout.NewSessionStore(redisClient.GetClient(), cfg.Checkout.SessionTTL),
		Guard:    checkout.NewInFlightGuard(redisClient.GetClient(), cfg.Checkout.InFlightTTL, logr),
		Repo:     repo,
		Notifier: email.NewEmailService(cfg, logr),
		Tokens:   auth.NewJWTManager(cfg),
	}, cfg, logr)

	server := http.NewServer(cfg, http.Dependencies{
		DB:           db.GetDB(),
		Redis:        redisClient.GetClient(),
		Orchestrator: orchestrator,
		Receipts:     pdf.NewService(cfg),
	}, logr)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go sweepPaymentCaches(ctx, repo, logr)

	logr.Info("✅ All systems operational!")

	go func() {
		if err := server.Start(); err != nil {
			logr.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logr.Info("👋 Shutting down gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logr.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	logr.Info("✅ Server shutdown completed")
}

// sweepPaymentCaches drops redirect data the shopper never came back for
func sweepPaymentCaches(ctx context.Context, repo *checkout.GormRepository, logr *logrus.Logger) {
	ticker := time.NewTicker(paymentCacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := repo.PurgeExpiredPaymentCaches(ctx)
			if err != nil {
				logr.WithError(err).Warn("Failed to purge expired payment caches")
				continue
			}
			if purged > 0 {
				logr.WithField("purged", purged).Info("Purged expired payment caches")
			}
		}
	}
}
