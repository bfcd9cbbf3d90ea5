/**
 * @description
 * This is the main entry point for the ledger-service. It loads configuration, opens
 * the PostgreSQL pool, connects Redis and RabbitMQ, builds the rate store, the ledger
 * and the transfer engine, starts the exchange-rate ingestion scheduler and serves
 * the HTTP API until SIGINT or SIGTERM.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: distributed transfer rate limiting.
 * - github.com/go-kit/log: service decorators.
 * - internal/api, internal/app, internal/config, internal/rates, internal/store.
 * - pkg/cbrclient, pkg/rabbitmq.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/ledger-service/internal/api"
	"github.com/transfa/ledger-service/internal/app"
	"github.com/transfa/ledger-service/internal/config"
	"github.com/transfa/ledger-service/internal/rates"
	"github.com/transfa/ledger-service/internal/store"
	"github.com/transfa/ledger-service/pkg/cbrclient"
	rmrabbit "github.com/transfa/ledger-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using process environment\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	log.Printf("level=info component=bootstrap msg=\"starting ledger-service\" port=%s base_currency=%s", cfg.ServerPort, cfg.BaseCurrency)

	kitLogger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	kitLogger = kitlog.With(kitLogger, "ts", kitlog.DefaultTimestampUTC)
	jobLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Without DATABASE_URL the service runs on the in-memory repository.
	var repository store.Repository
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"database url missing; using in-memory repository\" env=DATABASE_URL")
		repository = store.NewMemoryRepository()
	} else {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
		}
		poolConfig.MaxConns = 100
		poolConfig.MinConns = 20
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute

		// Disable prepared statement caching to prevent conflicts
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
		}
		defer dbpool.Close()
		log.Println("level=info component=bootstrap msg=\"database connected\"")
		repository = store.NewPostgresRepository(dbpool)
	}

	var publisher rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	if producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, cfg.EventsExchange); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer producer.Close()
		publisher = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	var limiter app.TransferRateLimiter = app.NewLocalTransferRateLimiter(cfg.TransferRateLimitPerMinute, time.Minute)
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; using in-process transfer rate limiting\" env=REDIS_URL")
	} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-process transfer rate limiting\" err=%v", parseErr)
	} else {
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-process transfer rate limiting\" err=%v", pingErr)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			limiter = app.NewRedisTransferRateLimiter(redisClient, cfg.RedisRateLimitPrefix, cfg.TransferRateLimitPerMinute, time.Minute)
			log.Println("level=info component=bootstrap msg=\"redis connected\"")
		}
	}

	cachedRates := rates.NewCachedRepository(repository, cfg.RateCacheTTL())
	var rateStore rates.Store = rates.NewCurrencyStore(cachedRates, cfg.BaseCurrency)
	rateStore = rates.NewLoggingStore(kitlog.With(kitLogger, "component", "rates"), rateStore)

	ledger := app.NewLedger(repository, repository)
	var transfers app.TransferService = app.NewTransferEngine(repository, ledger, rateStore, publisher)
	transfers = app.NewLoggingTransferService(kitlog.With(kitLogger, "component", "transfers"), transfers)

	jobs := app.NewJobs(cbrclient.NewClient(cfg.CBRDailyURL), repository, cachedRates, publisher, jobLogger, cfg.BaseCurrency)
	scheduler := app.NewScheduler(jobs, jobLogger, cfg)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" err=%v", err)
	}
	jobLogger.Info("scheduler started")

	handlers := api.NewHandlers(transfers, ledger, rateStore, limiter, cfg.BaseCurrency)
	router := api.NewRouter(handlers, cfg.JWTSecret, cfg.AllowedOrigins())

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server failed\" err=%v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("level=info component=bootstrap msg=\"shutdown signal received\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"server forced to shutdown\" err=%v", err)
	}

	<-scheduler.Stop().Done()
	log.Println("level=info component=bootstrap msg=\"ledger-service stopped\"")
}
