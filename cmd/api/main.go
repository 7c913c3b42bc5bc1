// server/cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blood-bank-api-server/config"
	"blood-bank-api-server/internal/api/handlers"
	"blood-bank-api-server/internal/api/routes"
	"blood-bank-api-server/internal/auth"
	"blood-bank-api-server/internal/cache"
	"blood-bank-api-server/internal/database"
	"blood-bank-api-server/internal/ledger"
	"blood-bank-api-server/internal/logger"
	"blood-bank-api-server/internal/s3"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("Could not load config: %v", err)
	}

	appLog, err := logger.New(cfg.Server.Mode)
	if err != nil {
		log.Fatalf("Could not create logger: %v", err)
	}
	defer appLog.Sync()
	gin.SetMode(ginMode(cfg.Server.Mode))

	ctx := context.Background()

	// 2. MongoDB
	client, db, err := database.Connect(ctx, cfg.Mongo)
	if err != nil {
		appLog.Fatal("Failed to connect to MongoDB", "error", err)
	}
	defer client.Disconnect(context.Background())

	if err := database.EnsureIndexes(ctx, db); err != nil {
		appLog.Fatal("Failed to create indexes", "error", err)
	}
	if err := database.SeedSuperAdmin(ctx, db, cfg.Seed, appLog); err != nil {
		appLog.Fatal("Failed to seed super admin", "error", err)
	}

	// 3. Ledger, with the Redis summary cache when configured
	ledgerOpts := []ledger.Option{ledger.WithLogger(appLog.With("component", "ledger"))}
	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		appLog.Fatal("Failed to connect to Redis", "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
		ledgerOpts = append(ledgerOpts, ledger.WithCache(cache.NewSummaryCache(rdb, cfg.Redis.SummaryTTL)))
	} else {
		appLog.Info("Redis not configured, inventory summary cache disabled")
	}
	stockLedger := ledger.New(database.NewBloodUnitRepository(db, cfg.Mongo.Timeout), ledgerOpts...)

	// 4. S3 document storage (optional)
	deps := routes.Dependencies{
		Cfg:       cfg,
		Log:       appLog,
		DB:        db,
		Ledger:    stockLedger,
		Tokens:    auth.NewManager(cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
		Documents: database.NewBatchDocumentRepository(db, cfg.Mongo.Timeout),
	}
	uploader, err := s3.NewUploader(ctx, cfg.S3)
	if err != nil {
		appLog.Fatal("Failed to create S3 uploader", "error", err)
	}
	if uploader != nil {
		deps.Uploader = handlers.DocumentUploader(uploader)
	} else {
		appLog.Info("S3 not configured, batch document uploads disabled")
	}

	// 5. Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           routes.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to run server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Server shutdown failed", "error", err)
	}
}

func ginMode(mode string) string {
	if mode == "release" || mode == "production" || mode == "prod" {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}
