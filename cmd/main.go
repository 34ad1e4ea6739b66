package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sync-engine/internal/adapters"
	"sync-engine/internal/adapters/clover"
	"sync-engine/internal/adapters/ebay"
	"sync-engine/internal/adapters/shopify"
	"sync-engine/internal/adapters/square"
	"sync-engine/internal/config"
	"sync-engine/internal/database"
	"sync-engine/internal/events"
	"sync-engine/internal/handlers"
	"sync-engine/internal/logger"
	"sync-engine/internal/middleware"
	"sync-engine/internal/models"
	"sync-engine/internal/queue"
	"sync-engine/internal/repository"
	"sync-engine/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Connect(cfg.DatabaseURL, cfg.Environment, zlog)
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Warn("auto-migration failed", zap.Error(err))
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zlog.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)

	publisher, err := events.NewPublisher(cfg.NatsURL, zlog)
	if err != nil {
		zlog.Warn("NATS unavailable, events disabled", zap.Error(err))
	}
	defer publisher.Close()

	codec, err := services.NewCredentialCodec(cfg.EncryptionKey)
	if err != nil {
		zlog.Fatal("failed to initialize credential codec", zap.Error(err))
	}

	// Repositories
	connectionRepo := repository.NewConnectionRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)
	mappingRepo := repository.NewMappingRepository(db)
	activityRepo := repository.NewActivityRepository(db, zlog)

	stores := adapters.Stores{
		Connections: connectionRepo,
		Catalog:     catalogRepo,
		Inventory:   inventoryRepo,
		Mappings:    mappingRepo,
		Activity:    activityRepo,
	}
	base := adapters.Base{
		Stores:      stores,
		Credentials: codec.DecryptConnection,
		Events:      publisher,
		Logger:      zlog,
	}

	// Platform adapters
	registry := adapters.NewRegistry()
	registry.Register(shopify.NewAdapter(base))
	registry.Register(square.NewAdapter(base))
	registry.Register(clover.NewAdapter(base))
	registry.Register(ebay.NewAdapter(base))
	registry.Register(adapters.NewPlaceholder(models.PlatformFacebook))
	registry.Register(adapters.NewPlaceholder(models.PlatformWhatnot))

	// Services
	matcher := services.NewMatcher()
	var coordinator *services.Coordinator
	dispatcher := queue.NewDispatcher(rdb, queue.Config{
		ThresholdReqPerSec: cfg.ThresholdReqPerSec,
		ScaleDownIdleSecs:  cfg.ScaleDownIdleSecs,
		HotWorkers:         cfg.HotWorkers,
	}, func(ctx context.Context, connectionID uuid.UUID) (string, error) {
		return coordinator.ConnectionStatus(ctx, connectionID)
	}, zlog)
	coordinator = services.NewCoordinator(connectionRepo, activityRepo, dispatcher, codec, zlog)

	dispatcher.Register(services.NewScanJob(base, registry, matcher, publisher, zlog))
	dispatcher.Register(services.NewSyncJob(base, publisher, zlog))
	dispatcher.Register(services.NewReconcileJob(base, registry, publisher, zlog))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	dispatcher.Start(ctx)

	webhookService := services.NewWebhookService(
		connectionRepo, activityRepo, registry,
		services.NewRedisDeduper(rdb),
		map[models.PlatformKind]string{
			models.PlatformShopify: cfg.ShopifyWebhookSecret,
			models.PlatformSquare:  cfg.SquareSignatureKey,
			models.PlatformClover:  cfg.CloverAuthCode,
		},
		zlog,
	)

	scheduler := services.NewScheduler(connectionRepo, coordinator,
		time.Duration(cfg.ReconcileIntervalMins)*time.Minute, zlog)
	scheduler.Start()

	// Handlers
	healthHandler := handlers.NewHealthHandler(db)
	connectionHandler := handlers.NewConnectionHandler(coordinator, connectionRepo)
	syncHandler := handlers.NewSyncHandler(coordinator, dispatcher)
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	activityHandler := handlers.NewActivityHandler(activityRepo)

	router := setupRouter(cfg, healthHandler, connectionHandler, syncHandler, webhookHandler, activityHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		zlog.Info("sync engine starting",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
	dispatcher.Stop()
	zlog.Info("stopped")
}

// setupRouter configures the HTTP router
func setupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	connectionHandler *handlers.ConnectionHandler,
	syncHandler *handlers.SyncHandler,
	webhookHandler *handlers.WebhookHandler,
	activityHandler *handlers.ActivityHandler,
) *gin.Engine {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())

	origins := []string{"http://localhost:3000"}
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		origins = strings.Split(raw, ",")
	}
	router.Use(middleware.CORS(origins))

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// Webhooks are public; platforms sign their own payloads.
	router.POST("/webhook/:platform", webhookHandler.Receive)
	router.POST("/webhook/:platform/:connectionId", webhookHandler.Receive)

	authed := router.Group("/")
	authed.Use(middleware.JWTAuth(cfg.JWTSecret))
	{
		connections := authed.Group("/platform-connections")
		{
			connections.GET("", connectionHandler.List)
			connections.POST("", connectionHandler.Create)
			connections.GET("/:id", connectionHandler.Get)
			connections.DELETE("/:id", connectionHandler.Delete)
		}

		sync := authed.Group("/sync")
		{
			sync.POST("/connections/:id/start-scan", syncHandler.StartScan)
			sync.GET("/connections/:id/scan-summary", syncHandler.ScanSummary)
			sync.GET("/connections/:id/mapping-suggestions", syncHandler.MappingSuggestions)
			sync.GET("/connections/:id/draft-mappings", syncHandler.GetDraftMappings)
			sync.PUT("/connections/:id/draft-mappings", syncHandler.PutDraftMappings)
			sync.POST("/connections/:id/confirm-mappings", syncHandler.ConfirmMappings)
			sync.GET("/connections/:id/sync-preview", syncHandler.SyncPreview)
			sync.POST("/connections/:id/activate-sync", syncHandler.ActivateSync)
			sync.GET("/jobs/:jobId/progress", syncHandler.JobProgress)
			sync.POST("/connection/:id/reconcile", syncHandler.Reconcile)
		}

		authed.GET("/activity-logs", activityHandler.List)
	}

	return router
}
