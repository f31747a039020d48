package main

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"canteen/server/internal/api"
	"canteen/server/internal/config"
	"canteen/server/internal/database"
	"canteen/server/internal/events"
	"canteen/server/internal/models"
	"canteen/server/internal/notify"
	"canteen/server/internal/services"
	"canteen/server/internal/store"
)

type backend interface {
	store.Store
	Ping(ctx context.Context) error
}

// core is the wired domain: stores, repositories and services shared by
// every command.
type core struct {
	cfg       *config.Config
	store     backend
	orders    *store.OrderRepository
	signals   *store.SignalRepository
	cache     *store.CachedOrders
	eta       *services.ETAService
	sessions  *services.SessionService
	owners    *services.OwnerService
	service   *services.OrderService
	lifecycle *services.Lifecycle
	events    events.Publisher

	closers []func()
}

func (c *core) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	if !cfg.UseRedis() {
		log.Warn("REDIS_URL not set, orders are kept in process memory")
		return store.NewMemoryStore(), func() {}, nil
	}
	client, err := database.ConnectRedis(ctx, cfg.RedisURL, cfg.RedisSentinelAddrs, cfg.RedisMasterName)
	if err != nil {
		return nil, nil, err
	}
	return store.NewRedisStore(client), func() { _ = database.CloseRedis(client) }, nil
}

func buildCore(ctx context.Context, cfg *config.Config) (*core, error) {
	c := &core{cfg: cfg, events: events.NopPublisher{}}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.store = st
	c.closers = append(c.closers, closeStore)

	c.orders = store.NewOrderRepository(st)
	c.signals = store.NewSignalRepository(st)
	c.cache = store.NewCachedOrders(c.orders)
	if n, err := c.orders.MigrateLegacy(ctx); err != nil {
		log.WithError(err).Warn("legacy orders not migrated")
	} else if n > 0 {
		log.WithField("orders", n).Info("legacy orders migrated")
	}

	timing := models.DefaultMenuTiming()
	if cfg.MenuTimingFile != "" {
		if timing, err = models.LoadMenuTiming(cfg.MenuTimingFile); err != nil {
			c.Close()
			return nil, err
		}
		log.WithField("file", cfg.MenuTimingFile).Info("menu timing loaded")
	}
	c.eta = services.NewETAService(timing)

	ownerRepo, err := c.ownerRepository(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	clock := services.SystemClock
	c.owners = services.NewOwnerService(ownerRepo, st, cfg.PrimaryOwner, clock)
	if cfg.PrimaryOwnerPassword != "" {
		if _, err := c.owners.EnsurePrimary(ctx, cfg.PrimaryOwnerPassword); err != nil {
			c.Close()
			return nil, errors.Wrap(err, "seed primary owner")
		}
	}

	c.sessions = services.NewSessionService(st, clock)
	c.service = services.NewOrderService(c.orders, c.cache, services.NewOrderBuilder(c.eta, clock), c.eta, c.sessions, clock)
	c.lifecycle = services.NewLifecycle(c.orders, c.signals, c.cache, c.owners, clock)

	if cfg.StatusLogURL != "" {
		statusLog, err := database.OpenStatusLog(ctx, cfg.StatusLogURL)
		if err != nil {
			log.WithError(err).Warn("status log unavailable, transitions are not archived")
		} else {
			c.service.WithStatusLog(statusLog)
			c.lifecycle.WithStatusLog(statusLog)
			c.closers = append(c.closers, statusLog.Close)
		}
	}

	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		dialer := events.NewDialer(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		pub := events.NewKafkaPublisher(brokers, cfg.KafkaTopic, dialer)
		c.events = pub
		c.service.WithEvents(pub)
		c.lifecycle.WithEvents(pub)
		c.closers = append(c.closers, func() {
			if err := pub.Close(); err != nil {
				log.WithError(err).Warn("close kafka publisher")
			}
		})
		log.WithFields(log.Fields{"brokers": brokers, "topic": cfg.KafkaTopic}).Info("order events enabled")
	}

	return c, nil
}

func (c *core) ownerRepository(ctx context.Context) (services.OwnerRepository, error) {
	if c.cfg.DatabaseURL != "" {
		db, err := database.ConnectPostgres(c.cfg.DatabaseURL)
		if err == nil {
			repo, err := services.NewGormOwnerRepository(db)
			if err != nil {
				_ = database.ClosePostgres(db)
				return nil, err
			}
			c.closers = append(c.closers, func() { _ = database.ClosePostgres(db) })
			return repo, nil
		}
		log.WithError(err).Warn("postgres unavailable, owners are kept in the order store")
	}

	repo := store.NewOwnerRepository(c.store)
	n, err := repo.MigrateLegacy(ctx, c.cfg.PrimaryOwner)
	if err != nil {
		log.WithError(err).Warn("legacy owners not migrated")
	} else if n > 0 {
		log.WithField("owners", n).Info("legacy owners migrated")
	}
	return repo, nil
}

// notificationSink is the delivery every ready notice also goes through
// besides the browser: the log, plus the RabbitMQ fanout when configured.
func notificationSink(cfg *config.Config) (notify.Sink, func()) {
	logSink := notify.LogSink{Logger: log.WithField("component", "notifications")}
	if cfg.RabbitMQURL == "" {
		return logSink, func() {}
	}
	rc, err := notify.DialRabbit(cfg.RabbitMQURL)
	if err == nil {
		err = rc.DeclareFanout(notify.NotificationsExchange)
	}
	if err != nil {
		log.WithError(err).Warn("rabbitmq unavailable, notices are only pushed to browsers")
		if rc != nil {
			rc.Close()
		}
		return logSink, func() {}
	}
	log.WithField("exchange", notify.NotificationsExchange).Info("rabbitmq notifications enabled")
	return notify.MultiSink{logSink, notify.NewRabbitSink(rc, notify.NotificationsExchange)}, rc.Close
}

func runServe(_ *cli.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := buildCore(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	extra, closeSink := notificationSink(cfg)
	defer closeSink()

	customers := notify.NewHub("customers")
	dashboard := notify.NewHub("dashboard")
	dispatcher := services.NewDispatcher(c.lifecycle, services.SystemClock, cfg.CountdownTick)
	health := api.NewHealthMonitor(c.store, 10*time.Second)

	watchers := func(sink notify.Sink) services.ReadyWatcher {
		if cfg.ReadyWatchMode == "subscribe" {
			return services.NewSubscribeWatcher(c.store, c.signals, c.orders, sink)
		}
		return services.NewReadyPoller(c.signals, c.orders, sink, services.SystemClock, cfg.ReadyPollInterval)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Handlers{
		Orders:    api.NewOrderController(c.service),
		Carts:     api.NewCartController(c.sessions),
		Dashboard: api.NewDashboardController(c.service, c.lifecycle, c.owners, dispatcher),
		WS:        api.NewWSController(ctx, customers, dashboard, c.service, c.sessions, dispatcher, watchers, extra),
		Health:    health,
		Timing:    c.eta.Timing(),
		Tokens:    c.owners,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := grpc.NewServer()
	health.Register(grpcSrv)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { customers.Run(gctx); return nil })
	g.Go(func() error { dashboard.Run(gctx); return nil })
	g.Go(func() error { health.Run(gctx); return nil })
	g.Go(func() error { logMemoryStats(gctx, 30*time.Second); return nil })

	if brokers := events.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		dialer := events.NewDialer(cfg.KafkaUsername, cfg.KafkaPassword, cfg.KafkaCACert)
		consumer := events.NewConsumer(brokers, cfg.KafkaTopic, cfg.KafkaGroupID, dialer, dashboard)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	g.Go(func() error {
		log.WithField("port", cfg.ServerPort).Info("http server starting")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return errors.Wrap(err, "listen grpc")
		}
		log.WithField("port", cfg.GRPCPort).Info("grpc health server starting")
		return errors.Wrap(grpcSrv.Serve(lis), "grpc server")
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		dispatcher.StopAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
		grpcSrv.GracefulStop()
		return nil
	})

	return g.Wait()
}

func logMemoryStats(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		entry := log.WithFields(log.Fields{
			"heap_alloc_mb": float64(m.HeapAlloc) / 1024 / 1024,
			"sys_mb":        float64(m.Sys) / 1024 / 1024,
			"gc":            m.NumGC,
			"goroutines":    runtime.NumGoroutine(),
		})
		// Each open countdown or session channel holds a few goroutines.
		if runtime.NumGoroutine() > 1000 {
			entry.Warn("memory stats, goroutine count is high")
			continue
		}
		entry.Debug("memory stats")
	}
}
