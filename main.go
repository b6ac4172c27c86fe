package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ocpalps/parkmeter/internal/api"
	"github.com/ocpalps/parkmeter/internal/api/handler"
	"github.com/ocpalps/parkmeter/internal/config"
	"github.com/ocpalps/parkmeter/internal/iot"
	"github.com/ocpalps/parkmeter/internal/logger"
	"github.com/ocpalps/parkmeter/internal/metrics"
	"github.com/ocpalps/parkmeter/internal/repository"
	"github.com/ocpalps/parkmeter/internal/repository/memory"
	"github.com/ocpalps/parkmeter/internal/repository/postgresql"
	"github.com/ocpalps/parkmeter/internal/service"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer log.Sync()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	for _, w := range cfg.Warnings {
		log.Debug(w)
	}
	gin.SetMode(gin.ReleaseMode)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Storage
	var (
		db         *sql.DB
		store      repository.AccessStore
		facilities repository.FacilityRepository
		spaces     repository.SpaceRepository
	)
	if cfg.UsesPostgres() {
		db, err = postgresql.NewDB(cfg)
		if err != nil {
			log.Fatal("cannot connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := postgresql.EnsureSchema(rootCtx, db); err != nil {
			log.Fatal("cannot prepare schema", zap.Error(err))
		}
		store = postgresql.NewPgAccessStore(db)
		facilities = postgresql.NewPgFacilityRepository(db)
		spaces = postgresql.NewPgSpaceRepository(db)
		log.Info("using postgres storage", zap.String("driver", cfg.DBDriver), zap.String("host", cfg.DBHost))
	} else {
		store = memory.NewAccessStore()
		inv := memory.NewInventory()
		facilities, spaces = inv.Facilities(), inv.Spaces()
		log.Warn("using in-memory storage, data is lost on restart")
	}
	inventory := service.NewInventoryService(facilities, spaces)

	// 3. AWS clients
	awsCfg, err := awsconfig.LoadDefaultConfig(rootCtx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal("cannot load AWS config", zap.Error(err))
	}

	// 4. Notifications
	ledgerMetrics := metrics.NewLedger()
	wsManager := handler.NewWebSocketManager(log)
	go wsManager.Start(rootCtx)

	notifiers := service.MultiNotifier{wsManager}
	if cfg.IoTMQTTEndpoint != "" {
		iotClient := iotdataplane.NewFromConfig(awsCfg, func(o *iotdataplane.Options) {
			endpoint := cfg.IoTMQTTEndpoint
			if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
		})
		notifiers = append(notifiers, iot.NewStatusPublisher(iotClient, log))
	}

	// 5. Ledger
	tokens := service.NewServiceTokens(cfg.LedgerServiceSecret, time.Minute)
	aggregator := service.NewStatusAggregator(store, service.AggregatorConfig{
		MaxAttempts:    cfg.AggregationMaxAttempts,
		InitialBackoff: cfg.AggregationBackoff,
	}, ledgerMetrics, log)

	var (
		ledger     service.Ledger
		statusSrc  handler.StatusSource
		reconciler *service.Reconciler
	)
	switch cfg.LedgerMode {
	case config.LedgerModeRemote:
		ledger = service.NewRemoteLedger(cfg.LedgerRemoteURL, service.RemoteLedgerOptions{
			Timeout:   cfg.LedgerTimeout,
			Tokens:    tokens,
			Inventory: inventory,
		}, log)
	default:
		embedded := service.NewEmbeddedLedger(store, aggregator, service.EmbeddedLedgerOptions{
			Inventory:          inventory,
			Notifier:           notifiers,
			Metrics:            ledgerMetrics,
			AggregationTimeout: cfg.AggregationTimeout,
		}, log)
		ledger, statusSrc = embedded, embedded
		reconciler = service.NewReconciler(store, aggregator, service.ReconcilerConfig{
			Interval:  cfg.ReconcileInterval,
			Grace:     cfg.ReconcileGrace,
			BatchSize: cfg.ReconcileBatchSize,
		}, ledgerMetrics, log)
	}

	initCtx, cancelInit := context.WithTimeout(rootCtx, cfg.LedgerTimeout)
	err = ledger.Initialize(initCtx)
	cancelInit()
	if err != nil {
		log.Fatal("ledger initialization failed", zap.String("mode", cfg.LedgerMode), zap.Error(err))
	}

	var plates *service.PlateService
	if cfg.PlateRecognitionEnabled {
		plates = service.NewPlateService(rekognition.NewFromConfig(awsCfg), ledger, log)
	}

	// 6. Background workers
	var wg sync.WaitGroup
	if reconciler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconciler.Run(rootCtx)
		}()
	}
	if cfg.SQSTrafficQueueURL == "" {
		log.Info("SQS_TRAFFIC_QUEUE_URL not set, traffic consumer disabled")
	} else {
		consumer := iot.NewTrafficConsumer(sqs.NewFromConfig(awsCfg), cfg.SQSTrafficQueueURL, ledger, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Start(rootCtx)
		}()
	}

	// 7. HTTP server
	router := api.SetupRouter(api.RouterDeps{
		Ledger:       ledger,
		Inventory:    inventory,
		StatusSource: statusSrc,
		Plates:       plates,
		WebSocket:    wsManager,
		Tokens:       tokens,
		Metrics:      ledgerMetrics,
		Log:          log,
	})
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort), zap.String("ledger_mode", cfg.LedgerMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn("background workers did not stop in time")
	}
	log.Info("server stopped")
}
