package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trace-service/config"
	"trace-service/internal/api"
	"trace-service/internal/broker"
	"trace-service/internal/chain"
	"trace-service/internal/models"
	"trace-service/internal/redisclient"
	"trace-service/internal/service"
	"trace-service/internal/store"
	"trace-service/internal/telemetry"
	"trace-service/internal/util"
	"trace-service/internal/viewmodel"
	"trace-service/internal/worker"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// telemetryStore adapts the database store to the poller's sink interface.
type telemetryStore struct {
	store *store.Store
}

func (s *telemetryStore) RecordSample(ctx context.Context, sample *models.TelemetrySample) error {
	return s.store.InsertTelemetrySample(ctx, sample)
}

// telemetryCache pushes the newest reading into Redis for other instances.
type telemetryCache struct {
	redis *redisclient.Client
}

func (c *telemetryCache) RecordSample(ctx context.Context, sample *models.TelemetrySample) error {
	return c.redis.SetLastReading(ctx, sample.Value)
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting trace service")

	tp, err := util.InitTracer("trace-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicTransition)
	defer producer.Close()
	log.Println("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	chainClient, err := chain.NewEthereumClient(
		cfg.Chain.RPCURL,
		cfg.Chain.ContractAddress,
		cfg.Chain.PrivateKey,
		cfg.Chain.ChainID,
	)
	if err != nil {
		log.Fatalf("Failed to connect to chain: %v", err)
	}
	defer chainClient.Close()
	log.Println("Chain client connected")

	poller := telemetry.NewPoller(
		cfg.Telemetry.FeedURL,
		time.Duration(cfg.Telemetry.IntervalSeconds)*time.Second,
		&telemetryStore{store: db},
		&telemetryCache{redis: redisClient},
	)

	userDirectory := service.NewUserDirectory(chainClient, redisClient, eventPublisher)
	historyService := service.NewHistoryService(chainClient, db, userDirectory, cfg.Display.PriceFactor)

	self, err := chainClient.Account()
	if err != nil {
		log.Fatalf("Failed to resolve signing account: %v", err)
	}
	retailer := common.HexToAddress(cfg.Chain.RetailerAddress)
	transporter := common.HexToAddress(cfg.Chain.TransporterAddress)

	viewModels := []*viewmodel.ViewModel{
		viewmodel.New(viewmodel.Config{
			Role:         models.RoleFarmer,
			Scope:        viewmodel.ScopeOwned,
			EventFilters: viewmodel.RoleFilters(models.RoleFarmer, self, retailer),
			NextHop:      retailer,
			PriceFactor:  cfg.Display.PriceFactor,
		}, chainClient, viewmodel.WithMintGuard(redisClient)),
		viewmodel.New(viewmodel.Config{
			Role:         models.RoleRetailer,
			Scope:        viewmodel.ScopeAll,
			EventFilters: viewmodel.RoleFilters(models.RoleRetailer, self, retailer),
			NextHop:      transporter,
			PriceFactor:  cfg.Display.PriceFactor,
		}, chainClient),
		viewmodel.New(viewmodel.Config{
			Role:         models.RoleTransporter,
			Scope:        viewmodel.ScopeOwned,
			EventFilters: viewmodel.RoleFilters(models.RoleTransporter, self, retailer),
			NextHop:      retailer,
			PriceFactor:  cfg.Display.PriceFactor,
		}, chainClient, viewmodel.WithTelemetry(poller)),
		viewmodel.New(viewmodel.Config{
			Role:           models.RoleConsumer,
			Scope:          viewmodel.ScopeAll,
			EventFilters:   viewmodel.RoleFilters(models.RoleConsumer, self, retailer),
			PriceFactor:    cfg.Display.PriceFactor,
			ConsumerLabels: true,
		}, chainClient),
	}

	vmCtx, vmCancel := context.WithCancel(context.Background())
	defer vmCancel()

	for _, vm := range viewModels {
		if err := vm.Init(vmCtx); err != nil {
			logger.Warn("View model initialization degraded; subscriptions skipped")
			continue
		}
		if err := vm.Subscribe(vmCtx); err != nil {
			log.Printf("Failed to subscribe %s view model: %v", vm.Role(), err)
		}
		vm.Refresh(vmCtx, "startup")
	}
	defer func() {
		for _, vm := range viewModels {
			vm.Close()
		}
	}()

	poller.Start(vmCtx)
	defer poller.Stop()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	transitionWorker := worker.NewTransitionWorker(chainClient, eventPublisher)
	go func() {
		if err := transitionWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Transition worker error: %v", err)
		}
	}()

	auditConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicTransition, cfg.Kafka.ConsumerGroup)
	auditWorker := worker.NewAuditWorker(auditConsumer, db)
	go func() {
		if err := auditWorker.Start(workerCtx); err != nil && err != context.Canceled {
			log.Printf("Audit worker error: %v", err)
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	handler := api.NewHandler(viewModels, userDirectory, historyService, poller)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	workerCancel()
	transitionWorker.Stop()
	auditWorker.Stop()

	log.Println("Server exited")
}
