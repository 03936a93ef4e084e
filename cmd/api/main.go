package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lbarbosa/infirmary-api/config"
	"github.com/lbarbosa/infirmary-api/internal/handler"
	allergyHandler "github.com/lbarbosa/infirmary-api/internal/handler/allergy"
	auditHandler "github.com/lbarbosa/infirmary-api/internal/handler/audit"
	dispenseHandler "github.com/lbarbosa/infirmary-api/internal/handler/dispense"
	episodeHandler "github.com/lbarbosa/infirmary-api/internal/handler/episode"
	inventoryHandler "github.com/lbarbosa/infirmary-api/internal/handler/inventory"
	"github.com/lbarbosa/infirmary-api/internal/middleware"
	"github.com/lbarbosa/infirmary-api/internal/repository/postgres"
	"github.com/lbarbosa/infirmary-api/internal/router"
	allergyService "github.com/lbarbosa/infirmary-api/internal/service/allergy"
	auditService "github.com/lbarbosa/infirmary-api/internal/service/audit"
	dispenseService "github.com/lbarbosa/infirmary-api/internal/service/dispense"
	episodeService "github.com/lbarbosa/infirmary-api/internal/service/episode"
	inventoryService "github.com/lbarbosa/infirmary-api/internal/service/inventory"
	"github.com/lbarbosa/infirmary-api/internal/service/notification"
	"github.com/lbarbosa/infirmary-api/internal/worker"
	"github.com/lbarbosa/infirmary-api/pkg/auth"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
	"github.com/lbarbosa/infirmary-api/pkg/messaging/redis"
	"github.com/lbarbosa/infirmary-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		Pretty:     cfg.Logging.Pretty,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("infirmary", "api")

	// Repositories
	base := postgres.NewBaseRepository(db)
	patientRepo := postgres.NewPatientRepository(base)
	allergyRepo := postgres.NewAllergyRepository(base)
	medicationRepo := postgres.NewMedicationRepository(base)
	lotRepo := postgres.NewLotRepository(base)
	episodeRepo := postgres.NewEpisodeRepository(base)
	dispensationRepo := postgres.NewDispensationRepository(base)
	auditRepo := postgres.NewAuditRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	transactor := postgres.NewTransactor(db)

	// Services
	auditSvc := auditService.NewService(auditRepo, m)
	allergySvc := allergyService.NewService(patientRepo, allergyRepo, auditSvc, appLogger)
	inventorySvc := inventoryService.NewService(medicationRepo, lotRepo, auditSvc, appLogger, cfg.Dispense.AlertCacheTTL)
	episodeSvc := episodeService.NewService(episodeRepo, patientRepo, dispensationRepo, auditSvc, appLogger)
	dispenseSvc := dispenseService.NewService(
		episodeRepo,
		lotRepo,
		medicationRepo,
		allergySvc,
		inventorySvc,
		transactor,
		appLogger,
		m,
		cfg.Dispense.MaxTxRetries,
	)
	notificationSvc := notification.NewService(cfg.Mail.ToNotificationConfig(), appLogger)

	// Middleware
	operatorMW := middleware.NewOperatorMiddleware(auth.NewTokenVerifier(cfg.Auth.TokenSecret))
	auditMW := middleware.NewAuditMiddleware(auditSvc, appLogger, m)

	// Router
	r := router.NewRouter(
		operatorMW,
		handler.NewHealthHandler(db),
		cfg.Server,
		cfg.RateLimit,
		allergyHandler.NewHandler(allergySvc),
		inventoryHandler.NewHandler(inventorySvc),
		episodeHandler.NewHandler(episodeSvc),
		auditHandler.NewHandler(auditSvc),
		dispenseHandler.NewHandler(dispenseSvc, auditMW, appLogger),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), appLogger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	outboxProcessor := worker.NewOutboxProcessor(
		outboxRepo,
		broker,
		inventorySvc,
		notificationSvc,
		cfg.Outbox.ToWorkerConfig(),
		appLogger,
		m,
	)
	go outboxProcessor.Start(workerCtx)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	appLogger.Info("server started", map[string]interface{}{"port": cfg.Server.Port})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down server", nil)

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	appLogger.Info("server exited", nil)
}
