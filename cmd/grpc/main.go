package main

import (
	"context"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/broker"
	"github.com/fekuna/omnipos-inventory-service/internal/cache"
	"github.com/fekuna/omnipos-inventory-service/internal/chance"
	"github.com/fekuna/omnipos-inventory-service/internal/database"
	"github.com/fekuna/omnipos-inventory-service/internal/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/middleware"
	"github.com/fekuna/omnipos-inventory-service/internal/telemetry"
	"github.com/fekuna/omnipos-inventory-service/internal/traffic"
	"github.com/fekuna/omnipos-inventory-service/internal/variant"
	"github.com/fekuna/omnipos-inventory-service/internal/warmup"

	invH "github.com/fekuna/omnipos-inventory-service/internal/inventory/handler"
	invListenerPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/listener"
	invRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to Database
	db, err := database.NewDB(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Database.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Connected to database", zap.String("driver", cfg.Database.Driver), zap.String("db_name", cfg.Database.DBName))

	if cfg.Database.EnsureSchema {
		if err := database.EnsureSchema(ctx, db); err != nil {
			appLogger.Fatal("Could not ensure inventory schema", zap.Error(err))
		}
	}

	// 4. Initialize Repositories
	invRepo := invRepoPkg.NewSQLRepository(db)

	// 5. Initialize Redis, falling back to process-local cache and locks
	// only when the locker does not need Redis.
	var store cache.Store
	var locker invUCPkg.Locker
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	switch {
	case err != nil && cfg.Inventory.Locker == "redis":
		appLogger.Fatal("Could not connect to Redis", zap.Error(err))
	case err != nil:
		appLogger.Warn("Could not connect to Redis, using in-process cache", zap.Error(err))
		store = cache.NewMemoryStore(time.Minute)
		locker = invUCPkg.NewLocalLocker()
	default:
		defer redisClient.Close()
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
		store = redisClient
		locker = invUCPkg.NewLocalLocker()
		if cfg.Inventory.Locker == "redis" {
			locker = invUCPkg.NewRedisLocker(redisClient, invUCPkg.RedisLockerConfig{
				TTL:        time.Duration(cfg.Inventory.LockTTLSeconds) * time.Second,
				Attempts:   cfg.Inventory.LockAttempts,
				RetryDelay: time.Duration(cfg.Inventory.LockRetryDelayMs) * time.Millisecond,
			}, appLogger)
		}
	}

	// 6. Initialize Variant Selection
	defaults, err := defaultSelection(cfg.Variant)
	if err != nil {
		appLogger.Fatal("Invalid variant defaults", zap.Error(err))
	}
	provider, err := variant.NewStaticProvider(defaults)
	if err != nil {
		appLogger.Fatal("Invalid variant defaults", zap.Error(err))
	}

	// 7. Initialize UseCases
	dice := chance.NewRandom()
	events := telemetry.NewRecorder()
	monitor := traffic.NewMonitor(time.Second)

	layer := cache.NewLayer(store, cache.CoherencyConfig{
		StaleReadProbability:    cfg.Inventory.StaleReadProbability,
		DroppedWriteProbability: cfg.Inventory.DroppedWriteProbability,
	}, dice, events, appLogger)

	controller := invUCPkg.NewController(invRepo, layer, locker, invUCPkg.ControllerConfig{
		LedgerCacheTTL:            time.Duration(cfg.Inventory.LedgerCacheTTLSeconds) * time.Second,
		RaceDelayProbability:      cfg.Inventory.RaceDelayProbability,
		MaxRaceDelay:              time.Duration(cfg.Inventory.MaxRaceDelayMs) * time.Millisecond,
		DuplicateWriteProbability: cfg.Inventory.DuplicateWriteProbability,
	}, dice, events, appLogger)

	strategy := warmup.NewStrategy(store, warmup.Config{
		HighRateThreshold:     cfg.Variant.HighRateThreshold,
		StaleServeProbability: cfg.Variant.StaleServeProbability,
	}, dice, events, appLogger)

	invUC := invUCPkg.NewInventoryUseCase(invRepo, controller, strategy, events, appLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})
	if interval := time.Duration(cfg.Variant.RefreshIntervalSeconds) * time.Second; interval > 0 {
		g.Go(func() error {
			strategy.Run(gctx, interval)
			return nil
		})
	}

	// 8. Initialize Listeners
	if cfg.Kafka.Enabled {
		kafkaConsumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer kafkaConsumer.Close()
		appLogger.Info("Connected to Kafka Consumer", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))

		invListener := invListenerPkg.NewInventoryListener(kafkaConsumer, invUC, provider, appLogger)
		g.Go(func() error {
			invListener.Start(gctx)
			return nil
		})
	}

	// 9. Initialize Handlers
	resolver := invH.NewSelectionResolver(provider, monitor, cfg.Variant.AllowOverrides)
	invHandler := invH.NewInventoryHandler(invUC, resolver, appLogger)
	httpHandler := invH.NewHTTPHandler(invUC, resolver, appLogger)

	// 10. Start gRPC Server
	lis, err := net.Listen("tcp", normalizePort(cfg.Server.GRPCPort))
	if err != nil {
		appLogger.Fatal("failed to listen", zap.Error(err))
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(middleware.ContextInterceptor(monitor, appLogger)),
	)
	invH.RegisterInventoryServiceServer(grpcServer, invHandler)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	g.Go(func() error {
		appLogger.Info("Starting gRPC server", zap.String("port", cfg.Server.GRPCPort))
		return grpcServer.Serve(lis)
	})

	// 11. Start HTTP Server
	app := fiber.New(fiber.Config{DisableStartupMessage: true, Immutable: true})
	app.Use(recover.New())
	app.Use(middleware.RequestContext(monitor, appLogger))
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	httpHandler.RegisterRoutes(app)

	g.Go(func() error {
		appLogger.Info("Starting HTTP server", zap.String("port", cfg.Server.HTTPPort))
		return app.Listen(normalizePort(cfg.Server.HTTPPort))
	})

	// Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		appLogger.Error("Server exited with error", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") {
		return ":" + port
	}
	return port
}

func defaultSelection(cfg config.VariantConfig) (variant.Selection, error) {
	mode, err := variant.ParseCacheMode(cfg.CacheMode)
	if err != nil {
		return variant.Selection{}, err
	}
	alg, err := variant.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return variant.Selection{}, err
	}
	warm, err := variant.ParseWarmupMode(cfg.WarmupMode)
	if err != nil {
		return variant.Selection{}, err
	}
	return variant.Selection{
		CacheMode:        mode,
		Algorithm:        alg,
		TimeoutMs:        cfg.TimeoutMs,
		Retries:          cfg.Retries,
		WarmupMode:       warm,
		WarmupTTLSeconds: cfg.WarmupTTLSeconds,
	}, nil
}
