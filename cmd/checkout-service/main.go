package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-checkout/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/checkout"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/config"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/db"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/events"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/metrics"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/order"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/storage/memory"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/transport"
	"github.com/vasiliy-maslov/ecommerce-checkout/internal/user"
)

// storage is everything the service needs from the selected driver.
type storage struct {
	catalog catalog.Repository
	users   user.Repository
	orders  order.Repository
	outbox  events.Store
	uow     checkout.UnitOfWorkFactory
	close   func()
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg.App)

	log.Info().Str("storage_driver", cfg.App.StorageDriver).Msg("Checkout service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	catalogSvc := catalog.NewService(store.catalog)
	userSvc := user.NewService(store.users)
	orderSvc := order.NewService(store.orders, userSvc)
	checkoutSvc := checkout.NewService(catalogSvc, store.orders, store.uow,
		checkout.WithTimeout(cfg.App.CheckoutTimeout),
		checkout.WithRecorder(m),
	)

	deps := transport.Deps{
		Catalog:  catalogSvc,
		Checkout: checkoutSvc,
		Orders:   orderSvc,
		Metrics:  m,
		Gatherer: reg,
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
		}
		deps.Cart = cart.NewService(cart.NewRedisStore(rdb, cfg.Redis.CartTTL), catalogSvc, checkoutSvc)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Cart enabled")
	} else {
		log.Warn().Msg("REDIS_ADDR not set, cart endpoints disabled")
	}

	var publisher events.Publisher = events.LogPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing events to Kafka")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}()

	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		events.NewRelay(store.outbox, publisher, cfg.Kafka.RelayInterval, cfg.Kafka.RelayBatchSize).Run(relayCtx)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	stopRelay()
	<-relayDone

	log.Info().Msg("Checkout service stopped")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.Name).Logger()
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.App.StorageDriver == config.StorageDriverMemory {
		store := memory.NewStore()
		memory.SeedDemoCatalog(store)
		log.Info().Msg("Using in-memory storage with demo catalog")
		return &storage{
			catalog: store.Catalog(),
			users:   store.Users(),
			orders:  store.Orders(),
			outbox:  store.Outbox(),
			uow:     store,
			close:   func() {},
		}, nil
	}

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}

	if cfg.Postgres.MigrateOnStart {
		if err := db.ApplyMigrations(pg.Pool); err != nil {
			pg.Close()
			return nil, err
		}
	}

	sqlDB := sqlx.NewDb(stdlib.OpenDBFromPool(pg.Pool), "pgx")

	return &storage{
		catalog: catalog.NewRepository(sqlDB),
		users:   user.NewRepository(pg.Pool),
		orders:  order.NewRepository(pg.Pool),
		outbox:  events.NewOutbox(pg.Pool),
		uow:     checkout.NewPgUnitOfWorkFactory(pg.Pool),
		close: func() {
			if err := sqlDB.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close sql handle")
			}
			pg.Close()
		},
	}, nil
}
