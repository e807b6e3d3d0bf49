package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/wealthledger/internal/ledger/application"
	"github.com/wyfcoding/wealthledger/internal/ledger/domain"
	"github.com/wyfcoding/wealthledger/internal/ledger/infrastructure/benchmark"
	"github.com/wyfcoding/wealthledger/internal/ledger/infrastructure/messaging"
	"github.com/wyfcoding/wealthledger/internal/ledger/infrastructure/persistence"
	ledger_ck "github.com/wyfcoding/wealthledger/internal/ledger/infrastructure/persistence/clickhouse"
	"github.com/wyfcoding/wealthledger/internal/ledger/infrastructure/persistence/mysql"
	ledger_redis "github.com/wyfcoding/wealthledger/internal/ledger/infrastructure/persistence/redis"
	http_server "github.com/wyfcoding/wealthledger/internal/ledger/interfaces/http"
	"github.com/wyfcoding/wealthledger/pkg/cache"
	"github.com/wyfcoding/wealthledger/pkg/config"
	"github.com/wyfcoding/wealthledger/pkg/db"
	"github.com/wyfcoding/wealthledger/pkg/logger"
	"github.com/wyfcoding/wealthledger/pkg/metrics"
	"github.com/wyfcoding/wealthledger/pkg/middleware"
	"github.com/wyfcoding/wealthledger/pkg/mq"
	"github.com/wyfcoding/wealthledger/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	ctx := context.Background()

	loc, err := time.LoadLocation(cfg.Ledger.Timezone)
	if err != nil {
		logger.Fatal(ctx, "bad reference timezone", "timezone", cfg.Ledger.Timezone, "error", err)
	}

	// MySQL system of record.
	database, err := db.Init(db.Config{
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "connect mysql failed", "error", err)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&domain.Event{}, &domain.SyncQueueItem{}, &domain.Asset{},
			&domain.PriceRecord{}, &mysql.UserPlan{},
		); err != nil {
			logger.Fatal(ctx, "migrate mysql failed", "error", err)
		}
	}

	// ClickHouse analytical mirror.
	ckConn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.ClickHouse.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		},
	})
	if err != nil {
		logger.Fatal(ctx, "connect clickhouse failed", "error", err)
	}
	defer ckConn.Close()

	// Redis asset metadata tier.
	redisClient, err := cache.NewRedis(cache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Fatal(ctx, "connect redis failed", "error", err)
	}
	defer redisClient.Close()

	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		logger.Fatal(ctx, "register metrics failed", "error", err)
	}

	// Repositories.
	eventRepo := mysql.NewEventRepository(database.DB)
	queueRepo := mysql.NewSyncQueueRepository(database.DB)
	priceRepo := mysql.NewPriceRecordRepository(database.DB)
	entitlements := mysql.NewEntitlementChecker(database.DB)
	mirrorRepo := ledger_ck.NewMirrorRepository(ckConn, loc)

	metadataTTL := time.Duration(cfg.Cache.MetadataTTL) * time.Second
	assetCache := ledger_redis.NewAssetCache(redisClient, metadataTTL)
	assetRepo := persistence.NewCachedAssetRepository(mysql.NewAssetRepository(database.DB), assetCache)

	// Optional downstream feed.
	var publisher domain.EventPublisher
	if cfg.Kafka.Enabled {
		producer, err := mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			logger.Fatal(ctx, "create kafka producer failed", "error", err)
		}
		defer producer.Close()
		publisher = messaging.NewKafkaEventPublisher(producer)
	}

	var benchmarkClient domain.BenchmarkClient
	if cfg.Benchmark.Enabled {
		benchmarkClient = benchmark.NewHTTPClient(cfg.Benchmark.BaseURL, time.Duration(cfg.Benchmark.Timeout)*time.Second)
	}

	// Application services.
	clock := cache.SystemClock()
	assetSvc := application.NewAssetService(assetRepo, cache.NewTTL[*domain.Asset](metadataTTL, clock))
	priceSvc := application.NewPriceService(
		mirrorRepo, priceRepo, assetSvc,
		cache.NewTTL[decimal.Decimal](time.Duration(cfg.Cache.PriceTTL)*time.Second, clock),
		clock,
		time.Duration(cfg.Cache.PriceLookbackDays)*24*time.Hour,
		time.Duration(cfg.Cache.BatchLookbackDays)*24*time.Hour,
	)
	snapshots := application.NewSnapshotCache(cfg.Cache.SnapshotCapacity, loc)
	recon := domain.NewReconstructor(loc)

	commands := application.NewLedgerCommand(eventRepo, mirrorRepo, queueRepo, publisher, snapshots, m, cfg.Sync.ChunkSize)
	queries := application.NewLedgerQuery(
		eventRepo, mirrorRepo, recon, assetSvc, priceSvc, snapshots,
		entitlements, benchmarkClient, m,
		time.Duration(cfg.ClickHouse.QueryTimeout)*time.Second,
	)
	app := application.NewLedgerService(commands, queries, priceSvc, assetSvc, queueRepo)

	sweeper := application.NewRetrySweeper(
		eventRepo, mirrorRepo, queueRepo, m,
		time.Duration(cfg.Sync.SweepInterval)*time.Second,
		cfg.Sync.MaxAttempts, cfg.Sync.SweepBatch,
	)

	// HTTP boundary.
	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogging(), middleware.Instrument(m))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(ratelimit.NewRedisLimiter(redisClient), cfg.RateLimit))
	}
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	http_server.NewLedgerHandler(app, loc).RegisterRoutes(router.Group(""))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(rootCtx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	g.Go(func() error {
		logger.Info(gctx, "http server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.Metrics.Enabled {
		go func() {
			logger.Info(ctx, "metrics server starting", "port", cfg.Metrics.Port)
			if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				logger.Error(ctx, "metrics server failed", "error", err)
			}
		}()
	}

	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "server exited with error", "error", err)
	}
}
