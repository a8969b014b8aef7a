// README: Entry point; loads config, wires services, starts HTTP server and the offer scheduler.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"marketpace/internal/config"
	httptransport "marketpace/internal/http"
	"marketpace/internal/infra"
	"marketpace/internal/maps"
	"marketpace/internal/modules/location"
	"marketpace/internal/modules/matching"
	"marketpace/internal/modules/notify"
	"marketpace/internal/modules/payment"
	"marketpace/internal/modules/route"
	"marketpace/internal/modules/settlement"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("marketpace-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		return err
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var (
		routeStore      route.Store
		settlementStore settlement.Store
	)
	if cfg.DB.Memory {
		logger.Warn("using in-memory stores; data is lost on restart")
		routeStore = route.NewMemoryStore()
		settlementStore = settlement.NewMemoryStore()
	} else {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer dbPool.Close()
		routeStore = route.NewPGStore(dbPool)
		settlementStore = settlement.NewPGStore(dbPool)
	}

	notifiers := notify.Multi{notify.NewLog(logger), notify.NewFCMNotifier(fb.Messaging)}
	if cfg.MQ.URL != "" {
		mq, err := infra.NewRabbitMQ(ctx, cfg.MQ.URL, cfg.MQ.Exchange, logger)
		if err != nil {
			return err
		}
		defer mq.Close()
		notifiers = append(notifiers, notify.NewRabbitNotifier(mq, cfg.MQ.Exchange))
	}

	mileage, err := maps.NewMileageService(cfg.Maps.APIKey, logger)
	if err != nil {
		return err
	}

	processor := payment.NewClient(payment.Config{
		BaseURL: cfg.Payment.BaseURL,
		APIKey:  cfg.Payment.APIKey,
		Timeout: cfg.PaymentTimeout(),
	})
	lockTTL := cfg.LockTTL()
	if floor := settlement.MinLockTTL(processor.MaxCallDuration()); lockTTL < floor {
		logger.Warn("settlement lock ttl raised to cover payment retries",
			zap.Duration("configured", lockTTL), zap.Duration("ttl", floor))
		lockTTL = floor
	}
	settlementSvc := settlement.NewService(
		settlementStore,
		processor,
		settlement.NewRedisLocker(redisClient, lockTTL),
		logger.Named("settlement"),
	)

	matchingSvc := matching.NewService(
		matching.NewRedisStore(redisClient),
		matching.NewFCMOfferSender(fb.Messaging),
		matching.Config{TickSeconds: cfg.Matching.TickSeconds, RadiusKm: cfg.Matching.RadiusKm},
		logger.Named("matching"),
	)

	routeSvc := route.NewService(routeStore, route.Deps{
		Settler:    settlementSvc,
		Notifier:   notifiers,
		Index:      location.NewRouteIndex(redisClient),
		Dispatcher: matchingSvc,
		Mileage:    mileage,
		Log:        logger.Named("route"),
	})
	matchingSvc.SetRoutes(routeSvc)

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Routes:     routeSvc,
		Settlement: settlementSvc,
		Matching:   matchingSvc,
		Verifier:   fb.Verifier,
		Log:        logger.Named("http"),
		RadiusKm:   cfg.Matching.RadiusKm,
	})

	go matchingSvc.RunScheduler(ctx)

	server := httptransport.NewServer(cfg.HTTP.Addr, router, cfg.ShutdownTimeout(), logger)
	return server.Run(ctx)
}
