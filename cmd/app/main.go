package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skyfare/ticketing/config"
	"github.com/skyfare/ticketing/internal/bootstrap"
	"github.com/skyfare/ticketing/internal/cache"
	"github.com/skyfare/ticketing/internal/gds"
	"github.com/skyfare/ticketing/internal/kafka"
	"github.com/skyfare/ticketing/internal/repository"
	"github.com/skyfare/ticketing/internal/rules"
	"github.com/skyfare/ticketing/internal/service/orchestrator"
	"github.com/skyfare/ticketing/internal/service/search"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	redisCache := cache.NewRedisCache(cfg.Redis,
		time.Duration(cfg.Orchestrator.FareRulesCacheTTL)*time.Second,
		time.Duration(cfg.Orchestrator.SearchCacheTTL)*time.Second,
	)
	producer := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	defer producer.Close()

	registry := gds.NewRegistry()
	for vendor, vendorCfg := range cfg.GDS.Vendors {
		client := gds.NewClient(vendor, vendorCfg, logger)
		switch vendor {
		case "galileo":
			registry.Register(vendor, client, gds.NewGalileoAdapter)
		case "amadeus":
			registry.Register(vendor, client, gds.NewAmadeusAdapter)
		default:
			logger.Warn("no adapter for configured vendor", zap.String("vendor", vendor))
		}
	}

	bookingRepo := repository.NewBookingRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)

	ruleEngine := rules.NewEngine(ruleRepo, logger)
	searchService := search.New(registry, redisCache, logger)
	orchestratorService := orchestrator.New(
		bookingRepo,
		ticketRepo,
		ledgerRepo,
		auditRepo,
		agentRepo,
		registry,
		ruleEngine,
		redisCache,
		producer,
		cfg.Kafka.TicketEventsTopic,
		logger,
		orchestrator.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		orchestrator.WithVoidWindow(cfg.Orchestrator.VoidWindow()),
		orchestrator.WithRefundDeadline(cfg.Orchestrator.RefundDeadline()),
		orchestrator.WithInFlightTTL(cfg.Orchestrator.InFlightTTL()),
		orchestrator.WithIdempotencyTTL(cfg.Orchestrator.IdempotencyTTL()),
		orchestrator.WithReadRetryMax(cfg.Orchestrator.ReadRetryMax),
	)

	if err := bootstrap.Run(ctx, cfg, orchestratorService, searchService, ledgerRepo, auditRepo); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
