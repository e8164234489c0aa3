package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"

	"eventpulse/internal/admin"
	"eventpulse/internal/analytics"
	analytics_api "eventpulse/internal/analytics/api"
	"eventpulse/internal/auth"
	"eventpulse/internal/config"
	"eventpulse/internal/fraud"
	"eventpulse/internal/kafka"
	ledgerdb "eventpulse/internal/ledger/db"
	"eventpulse/internal/live"
	"eventpulse/internal/logger"
	"eventpulse/internal/outbox"
	outbox_api "eventpulse/internal/outbox/api"
	"eventpulse/internal/redeem"
	redeem_api "eventpulse/internal/redeem/api"
	redeemredis "eventpulse/internal/redeem/redis"
	"eventpulse/internal/redeem/qr"
	"eventpulse/internal/scan"
	scan_api "eventpulse/internal/scan/api"
	scanredis "eventpulse/internal/scan/redis"
	"eventpulse/internal/sponsor"
)

func openDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var dialect schema.Dialect

	switch cfg.Driver {
	case "sqlite":
		db, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to open SQLite: %v", err))
		}
		sqldb = db
		dialect = sqlitedialect.New()
	default:
		sqldb = sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		dialect = pgdialect.New()
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	maxRetries := 5
	var err error
	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to %s (attempt %d/%d)", cfg.Driver, i+1, maxRetries))
		err = sqldb.Ping()
		if err == nil {
			break
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to %s after %d attempts: %v", cfg.Driver, maxRetries, err))
	}

	log.Info("DATABASE", fmt.Sprintf("✅ %s connection successful", cfg.Driver))
	return bun.NewDB(sqldb, dialect)
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting EventPulse initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB := openDatabase(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		if err := ledgerdb.Migrate(ctx, bunDB); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Migration failed: %v", err))
		}
		log.Info("DATABASE", "Schema migration complete")
	}
	if cfg.Database.SeedData {
		if err := ledgerdb.Seed(ctx, bunDB); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Seeding failed: %v", err))
		}
		log.Info("DATABASE", "Demo data seeded")
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	store := &ledgerdb.DB{Bun: bunDB}
	hub := live.NewHub(log)

	var scanPublisher scan.Publisher
	var voucherPublisher redeem.Publisher
	var producer *kafka.Producer
	var consumer *kafka.Consumer

	if cfg.Kafka.Enabled {
		required := []string{cfg.Kafka.Topics.ScanCommitted, cfg.Kafka.Topics.VoucherIssued}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, required); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}

		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, log)
		defer producer.Close()
		scanPublisher = producer
		voucherPublisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled; scan events will not be published")
	}

	scanService := scan.NewService(
		store,
		scanredis.NewCooldown(redisClient, cfg.Game.ScanCooldown),
		scanPublisher,
		hub,
		log,
		cfg.Game,
	)

	redeemService := redeem.NewService(
		store,
		redeemredis.NewIdempotency(redisClient, cfg.Game.IdempotencyWindow),
		voucherPublisher,
		hub,
		qr.NewGenerator(cfg.Security.QRSecret),
		log,
	)

	analyticsService := analytics.NewService(bunDB)
	fraudEngine := fraud.NewEngine(store, log)

	outboxWorker := outbox.NewWorker(store, scanService, log)
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	go outboxWorker.Run(workerCtx)
	log.Info("OUTBOX", "Offline scan drain loop started")

	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topics.ScanCommitted, cfg.Kafka.GroupID, log)
		defer consumer.Close()
		go consumer.StartScanEvents(workerCtx, fraudEngine.VerifyScan)
		log.Info("KAFKA", "Fraud consumer started on "+cfg.Kafka.Topics.ScanCommitted)
	}

	scanHandler := &scan_api.Handler{ScanService: scanService, Logger: log}
	redeemHandler := &redeem_api.Handler{RedeemService: redeemService, Logger: log}
	analyticsHandler := &analytics_api.Handler{Analytics: analyticsService, Logger: log}
	adminHandler := &admin.Handler{Store: store, Logger: log}
	sponsorHandler := &sponsor.Handler{Store: store, Logger: log}
	outboxHandler := &outbox_api.Handler{Store: store, Logger: log}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(auth.Middleware())

	r.Route("/api", func(r chi.Router) {
		r.Post("/scan", scanHandler.Scan)
		r.Post("/scan/offline", outboxHandler.Sync)
		r.Get("/stalls", scanHandler.Stalls)
		r.Get("/my-history", scanHandler.History)
		r.Get("/notifications", scanHandler.Notifications)

		r.Get("/rewards", redeemHandler.Rewards)
		r.Post("/redeem", redeemHandler.Redeem)
		r.Get("/vouchers/{code}", redeemHandler.Voucher)

		r.Get("/stats", analyticsHandler.Stats)
		r.Get("/leaderboard", analyticsHandler.Leaderboard)
		r.Get("/analytics/{stallID}", analyticsHandler.StallAnalytics)
		r.Get("/hourly-traffic/{stallID}", analyticsHandler.HourlyTraffic)
		// Sponsor dashboards fetch the same report under their own prefix.
		r.Get("/sponsor/analytics/{stallID}", analyticsHandler.StallAnalytics)

		r.Get("/scan-candidate/{studentID}", sponsorHandler.ScanCandidate)

		r.Post("/admin/stalls/{stallID}/lure", adminHandler.DeployLure)
		r.Get("/monitor/alerts", adminHandler.Alerts)
	})
	r.Get("/ws/heatmap", live.HandleHeatmap(hub, log))
	log.Info("ROUTER", "Routes registered under /api and /ws/heatmap")

	// Read/write timeouts stay unset so the heatmap websocket is not
	// cut off mid-session.
	server := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", "🚀 EventPulse running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopWorkers()
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ EventPulse shutdown complete")
	}
}
