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
	"github.com/skyfare/ticketing/internal/cache"
	"github.com/skyfare/ticketing/internal/gds"
	"github.com/skyfare/ticketing/internal/kafka"
	"github.com/skyfare/ticketing/internal/notify"
	"github.com/skyfare/ticketing/internal/repository"
	"github.com/skyfare/ticketing/internal/rules"
	"github.com/skyfare/ticketing/internal/service/orchestrator"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		}
	}

	bookingRepo := repository.NewBookingRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)
	ruleRepo := repository.NewRuleRepository(pool)

	orchestratorService := orchestrator.New(
		bookingRepo,
		ticketRepo,
		ledgerRepo,
		auditRepo,
		agentRepo,
		registry,
		rules.NewEngine(ruleRepo, logger),
		redisCache,
		producer,
		cfg.Kafka.TicketEventsTopic,
		logger,
		orchestrator.WithVoidWindow(cfg.Orchestrator.VoidWindow()),
		orchestrator.WithRefundDeadline(cfg.Orchestrator.RefundDeadline()),
		orchestrator.WithInFlightTTL(cfg.Orchestrator.InFlightTTL()),
		orchestrator.WithIdempotencyTTL(cfg.Orchestrator.IdempotencyTTL()),
		orchestrator.WithReadRetryMax(cfg.Orchestrator.ReadRetryMax),
	)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer consumer.Close()

	sender := notify.NewSender(logger)

	go func() {
		if err := consumer.Consume(ctx, func(ctx context.Context, event kafka.TicketEvent) error {
			if err := sender.Send(ctx, event); err != nil {
				logger.Error("notification failed", zap.Error(err))
			}
			return nil
		}); err != nil {
			logger.Warn("consumer stopped", zap.Error(err))
		}
	}()

	sweepInterval := time.Duration(cfg.Worker.ReconcileSweepMinutes) * time.Minute
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	sweepTicker := time.NewTicker(sweepInterval)
	defer sweepTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.C:
			// Entities parked more recently than one sweep interval may
			// still have a request in flight; leave them for the next pass.
			if err := orchestratorService.Reconcile(ctx, sweepInterval); err != nil {
				logger.Error("reconcile sweep failed", zap.Error(err))
			}
		case s := <-sig:
			logger.Info("shutting down", zap.String("signal", s.String()))
			return
		}
	}
}
