package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/eaglebank/ledger/ledger-service/internal/command"
	"github.com/eaglebank/ledger/ledger-service/internal/config"
	"github.com/eaglebank/ledger/ledger-service/internal/domain"
	"github.com/eaglebank/ledger/ledger-service/internal/eventstore"
	"github.com/eaglebank/ledger/ledger-service/internal/feed"
	"github.com/eaglebank/ledger/ledger-service/internal/handler"
	"github.com/eaglebank/ledger/ledger-service/internal/metrics"
	"github.com/eaglebank/ledger/ledger-service/internal/projection"
	"github.com/eaglebank/ledger/ledger-service/internal/query"
	"github.com/eaglebank/ledger/ledger-service/internal/readstore"
	"github.com/eaglebank/ledger/ledger-service/internal/saga"
	"github.com/eaglebank/ledger/shared/events"
	"github.com/eaglebank/ledger/shared/logger"
	"github.com/eaglebank/ledger/shared/middleware"
	redisClient "github.com/eaglebank/ledger/shared/redis"
)

// eventLog is what the service needs from the configured log backend.
type eventLog interface {
	eventstore.Log
	eventstore.Outbox
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Fatal("Ledger service stopped", "error", err)
	}
	logg.Info("Ledger service stopped")
}

func run(ctx context.Context, cfg config.Config, logg *logger.Logger) error {
	m := metrics.New()

	// Event log (write store + outbox)
	var (
		eventLogBackend eventLog
		wake            <-chan struct{}
	)
	switch cfg.EventLogDriver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		pg := eventstore.NewPostgresLog(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		eventLogBackend = pg
	default:
		mem := eventstore.NewMemoryLog()
		eventLogBackend, wake = mem, mem.Appended()
	}

	// Read models and notifications
	views := readstore.NewMemoryStores()
	var bus events.Bus = events.NewMemoryBus()
	var rdb *redisClient.Client
	if cfg.UseRedis() {
		var err error
		rdb, err = redisClient.NewClient(ctx, redisClient.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		views = readstore.NewRedisStores(rdb.Client)
		bus = events.NewRedisBus(rdb.Client, logg)
	}

	// --- Event sourcing wiring ---
	codec := eventstore.NewCodec()
	store := eventstore.NewStore(eventLogBackend, codec)
	repos := eventstore.NewRepositories(store)

	commandSvc := command.NewService(repos, logg.With("component", "commands"), m)
	querySvc := query.NewService(views, repos, logg.With("component", "queries"))
	projections := projection.NewEngine(bus, logg.With("component", "projections"), m, projection.Handlers(views, store)...)
	transferSaga := saga.NewTransferSaga(repos, logg.With("component", "saga"), m)
	dispatcher := feed.NewDispatcher(codec, logg.With("component", "dispatcher"), m, cfg.DispatchParallelism, projections, transferSaga)

	if err := commandSvc.EnsureSettlementAccount(ctx); err != nil {
		return err
	}
	logg.Info("Settlement account ready", "accountId", domain.SettlementAccountID)

	g, ctx := errgroup.WithContext(ctx)

	// Change feed: with Redis between the relay and the dispatcher any
	// instance may deliver; without it the relay dispatches in process.
	sink := events.BatchHandler(dispatcher.Handle)
	if cfg.EventLogDriver == config.DriverPostgres {
		sink = events.NewPublisher(rdb.Client, cfg.FeedStream).Handle
		subscriber := events.NewSubscriber(rdb.Client, logg, events.SubscriberConfig{
			Group:    cfg.FeedGroup,
			Consumer: cfg.FeedConsumer,
			Stream:   cfg.FeedStream,
			Handler:  dispatcher.Handle,
		})
		g.Go(func() error { return ignoreCanceled(subscriber.Start(ctx)) })
	}
	relay := feed.NewRelay(eventLogBackend, sink, logg.With("component", "relay"), m, feed.RelayConfig{
		Interval:    cfg.RelayInterval,
		BatchSize:   cfg.RelayBatch,
		MaxAttempts: cfg.RelayMaxAttempts,
		Wake:        wake,
	})
	g.Go(func() error { return ignoreCanceled(relay.Run(ctx)) })

	// HTTP
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(logg, m, bus, cfg.SubscribeTimeout, commandSvc, querySvc),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logg.Info("Ledger service starting", "port", cfg.Port, "eventLog", cfg.EventLogDriver, "redis", cfg.UseRedis())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logg.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newRouter(
	logg *logger.Logger,
	m *metrics.Collector,
	bus events.Bus,
	subscribeTimeout time.Duration,
	commands *command.Service,
	queries *query.Service,
) *gin.Engine {
	accountHandler := handler.NewAccountHandler(commands, queries)
	customerHandler := handler.NewCustomerHandler(commands, queries)
	transferHandler := handler.NewTransferHandler(commands, queries)
	ledgerHandler := handler.NewLedgerHandler(queries)
	eventsHandler := handler.NewEventsHandler(bus, logg, subscribeTimeout)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.LoggingMiddleware(logg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	customers := router.Group("/v1/customers")
	{
		customers.POST("", customerHandler.CreateCustomer)
		customers.GET("/:customerId", customerHandler.GetCustomer)
		customers.PATCH("/:customerId", customerHandler.UpdateCustomer)
		customers.GET("/:customerId/accounts", customerHandler.ListAccounts)
		customers.GET("/:customerId/events", eventsHandler.Wait(domain.TypeCustomer, "customerId"))
	}

	accounts := router.Group("/v1/accounts")
	{
		accounts.POST("", accountHandler.OpenAccount)
		accounts.GET("/:accountId", accountHandler.GetAccount)
		accounts.DELETE("/:accountId", accountHandler.CloseAccount)
		accounts.POST("/:accountId/deposits", accountHandler.Deposit)
		accounts.POST("/:accountId/withdrawals", accountHandler.Withdraw)
		accounts.GET("/:accountId/transactions", accountHandler.ListTransactions)
		accounts.GET("/:accountId/ledger", ledgerHandler.ListEntries)
		accounts.GET("/:accountId/events", eventsHandler.Wait(domain.TypeAccount, "accountId"))
	}

	transfers := router.Group("/v1/transfers")
	{
		transfers.POST("", transferHandler.InitiateTransfer)
		transfers.GET("/:transferId", transferHandler.GetTransfer)
		transfers.GET("/:transferId/events", eventsHandler.Wait(domain.TypeTransfer, "transferId"))
	}

	router.GET("/v1/settlement", ledgerHandler.GetSettlement)
	return router
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
