package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ColdChainAPI/internal/config"
	"ColdChainAPI/internal/database"
	"ColdChainAPI/internal/handler"
	"ColdChainAPI/internal/logger"
	"ColdChainAPI/internal/mqtt"
	"ColdChainAPI/internal/notify"
	redisx "ColdChainAPI/internal/redis"
	"ColdChainAPI/internal/repository"
	"ColdChainAPI/internal/server"
	"ColdChainAPI/internal/service"
	"ColdChainAPI/internal/websocket"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger since main logger isn't ready
		panic("Failed to load configuration: " + err.Error())
	}

	// 2. Initialize Logger
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Mode:        cfg.Logging.Mode,
		LogFilePath: cfg.Logging.FilePath,
		UseColors:   cfg.Logging.UseColors,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer log.Close()

	if err := cfg.Validate(); err != nil {
		log.Fatal("Configuration validation failed: %v", err)
	}

	cfg.Print()
	log.Info("Starting ColdChain Monitor API")

	// 3. Database Connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Health(ctx); err != nil {
		log.Fatal("Database health check failed: %v", err)
	}
	log.Info("Database connected successfully")

	// 4. Redis Connection
	cache := redisx.NewClient(&cfg.Redis)
	defer cache.Close()

	if err := redisx.Ping(ctx, cache); err != nil {
		log.Fatal("Redis health check failed: %v", err)
	}
	log.Info("Redis connected successfully")

	// 5. Initialize Repositories
	readingRepo := repository.NewReadingRepository(db.DB)
	unitRepo := repository.NewUnitRepository(db.DB)
	ruleRepo := repository.NewRuleRepository(db.DB)
	alertRepo := repository.NewAlertRepository(db.DB)
	contactRepo := repository.NewContactRepository(db.DB)
	deliveryRepo := repository.NewDeliveryRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)
	tenantRepo := repository.NewTenantRepository(db.DB)

	// 6. Realtime Hub
	hub := websocket.NewHub(log)
	hubCtx, hubCancel := context.WithCancel(ctx)
	defer hubCancel()
	go hub.Run(hubCtx)

	// 7. Initialize Services
	auditService := service.NewAuditService(auditRepo, log)
	resolver := service.NewRuleResolver(ruleRepo, log)
	evaluator := service.NewAlertEvaluator(alertRepo, resolver, auditService, cfg.Escalation, log)
	tracker := service.NewStateTracker(db.DB, unitRepo, alertRepo, evaluator, auditService, cache, hub, log)

	notifyService := service.NewNotifyService(
		db.DB, cache, contactRepo, deliveryRepo, auditService,
		notify.Providers(cfg.Notify), cfg.Notify, log,
	)
	tracker.SetNotifier(notifyService)

	ingestService := service.NewIngestService(cache, readingRepo, unitRepo, tracker, hub, cfg.Redis.DedupTTL, log)
	alertService := service.NewAlertService(db.DB, alertRepo, unitRepo, deliveryRepo, auditService, tracker, hub, log)
	escalationService := service.NewEscalationService(db.DB, alertRepo, unitRepo, auditService, notifyService, hub, cfg.Escalation, log)

	// 8. Background Workers
	if err := notifyService.StartWorkers(); err != nil {
		log.Fatal("Failed to start notification workers: %v", err)
	}
	defer notifyService.Shutdown()

	escalationService.Start()
	defer escalationService.Shutdown()

	// 9. MQTT Bridge
	mqttConnected := func() bool { return true }
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
			MQTT:   &cfg.MQTT,
			Logger: log,
		})
		if err != nil {
			log.Fatal("Failed to create MQTT client: %v", err)
		}
		defer func() {
			if err := mqttClient.Disconnect(); err != nil {
				log.Error("Failed to disconnect MQTT: %v", err)
			}
		}()

		if err := mqttClient.Connect(); err != nil {
			log.Fatal("Failed to connect to MQTT broker: %v", err)
		}

		if err := mqttClient.SubscribeUplinks(ingestService); err != nil {
			log.Fatal("Failed to subscribe to uplink topic: %v", err)
		}

		mqttConnected = mqttClient.IsConnected
		log.Info("MQTT uplink subscription active on %s", cfg.MQTT.UplinkTopic)
	} else {
		log.Warn("MQTT bridge disabled")
	}

	// 10. Initialize Handlers
	ingestHandler := handler.NewIngestHandler(ingestService, log)
	uplinkHandler := handler.NewUplinkHandler(ingestService, log)
	alertHandler := handler.NewAlertHandler(alertService, log)
	unitHandler := handler.NewUnitHandler(unitRepo, readingRepo, tracker, log)
	auditHandler := handler.NewAuditHandler(auditService, auditRepo, log)
	callbackHandler := handler.NewCallbackHandler(notifyService, log)
	healthHandler := handler.NewHealthHandler(db, cache, mqttConnected, log)

	// 11. Start HTTP Server
	srv := server.New(cfg, log)
	srv.RegisterHandlers(
		tenantRepo, hub,
		ingestHandler, uplinkHandler, alertHandler, unitHandler,
		auditHandler, callbackHandler, healthHandler,
	)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Server failed: %v", err)
		}
	}()

	log.Info("API server ready on http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	// 12. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error: %v", err)
	}

	log.Info("Shutdown complete")
}
