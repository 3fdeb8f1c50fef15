// Package app собирает агент витрины: клиент корзины, store, поверхности,
// HTTP API, метрики и фоновые паблишеры.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/storefront/internal/cart"
	"github.com/vladislavdragonenkov/storefront/internal/cartclient"
	"github.com/vladislavdragonenkov/storefront/internal/drawer"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/notice"
	"github.com/vladislavdragonenkov/storefront/internal/projector"
	"github.com/vladislavdragonenkov/storefront/internal/service/refresh"
	"github.com/vladislavdragonenkov/storefront/internal/variant"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const shutdownTimeout = 5 * time.Second

// runtime: собранные компоненты одного запуска.
type runtime struct {
	client      *cartclient.Client
	store       *cart.Store
	badge       *projector.Badge
	drawer      *drawer.Controller
	notices     *notice.Board
	producer    *kafka.Producer
	publisher   *kafka.CartPublisher
	refresher   *refresh.Worker
	preferences preferenceBackend
	health      *healthcheck.Handler
	router      http.Handler
	// ops: /metrics и health-эндпоинты для отдельного порта.
	ops http.Handler

	unsubscribe []func()
}

func newRuntime(ctx context.Context, cfg Config, logger *log.Entry, registerer prometheus.Registerer) (*runtime, error) {
	cartMetrics := metrics.NewCartMetricsWithRegisterer(registerer)

	clientOpts := []cartclient.Option{
		cartclient.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		cartclient.WithRecorder(cartMetrics),
		cartclient.WithLogger(logger.WithField("component", "cart-client")),
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		clientOpts = append(clientOpts, cartclient.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
	}
	client := cartclient.New(cfg.ShopURL, clientOpts...)

	catalogs, err := variant.LoadDir(cfg.CatalogDir)
	if err != nil {
		return nil, err
	}

	prefs, err := initPreferences(ctx, cfg, logger.WithField("component", "preferences"))
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		client:      client,
		badge:       &projector.Badge{},
		preferences: prefs,
	}
	rt.store = cart.NewStore(client,
		cart.WithRecorder(cartMetrics),
		cart.WithLogger(logger.WithField("component", "cart-store")),
	)

	rt.subscribe(projector.NewCount(rt.badge).Listen)

	rt.notices = notice.NewBoard(
		notice.WithTTL(cfg.NoticeTTL),
		notice.WithLogger(logger.WithField("component", "notices")),
	)
	rt.subscribe(rt.notices.Listen)

	rt.drawer = drawer.New(rt.store, &drawer.Frame{},
		drawer.WithFreshness(cfg.DrawerFreshness),
		drawer.WithLogger(logger.WithField("component", "cart-drawer")),
	)
	rt.unsubscribe = append(rt.unsubscribe, rt.drawer.Detach)

	if producer, err := initKafkaProducer(cfg.KafkaBrokerList(), logger); err == nil && producer != nil {
		rt.producer = producer
		rt.publisher = kafka.NewCartPublisher(producer, uuid.NewString(),
			kafka.WithQueueSize(cfg.EventQueueSize),
			kafka.WithMaxAttempts(uint(cfg.EventMaxAttempts)),
			kafka.WithPublisherLogger(logger.WithField("component", "kafka-cart-publisher")),
		)
		rt.subscribe(rt.publisher.Listen)
	}

	if cfg.RefreshInterval > 0 {
		rt.refresher = refresh.NewWorker(rt.store,
			refresh.WithInterval(cfg.RefreshInterval),
			refresh.WithMaxAge(cfg.DrawerFreshness),
			refresh.WithLogger(logger.WithField("component", "cart-refresh-worker")),
		)
	}

	rt.health = healthcheck.NewHandler(version.Current().Version)
	rt.health.RegisterChecker("cart", healthcheck.CartChecker(rt.store))
	rt.health.RegisterChecker("cart-backend", healthcheck.BreakerChecker(client.BreakerState))
	if prefs.pg != nil {
		rt.health.RegisterChecker("postgres", healthcheck.PingChecker("postgres", 2*time.Second, prefs.pg.Ready))
	}
	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	rt.ops = opsHandler(rt.health, gatherer)

	rt.router = httpapi.NewRouter(httpapi.Dependencies{
		Store:          rt.store,
		Drawer:         rt.drawer,
		Badge:          rt.badge,
		Catalogs:       catalogs,
		Notices:        rt.notices,
		Preferences:    prefs.repo,
		Logger:         logger.WithField("component", "http-api"),
		RequestTimeout: cfg.RequestTimeout + shutdownTimeout,
	})

	return rt, nil
}

func (rt *runtime) subscribe(listener cart.Listener) {
	rt.unsubscribe = append(rt.unsubscribe, rt.store.Subscribe(listener))
}

func (rt *runtime) close(logger *log.Entry) {
	for i := len(rt.unsubscribe) - 1; i >= 0; i-- {
		rt.unsubscribe[i]()
	}
	closeKafka(rt.producer, logger)
	rt.preferences.close(logger)
}

// Run запускает агент и блокируется до отмены ctx или отказа HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	rt, err := newRuntime(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	// Недоступная витрина не мешает старту: поверхности показывают ноль,
	// пока очередной Refresh не загрузит корзину.
	if err := rt.store.Initialize(ctx); err != nil {
		logger.WithError(err).Warn("initial cart load failed, starting with unknown cart")
	}

	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	var wg conc.WaitGroup
	if rt.publisher != nil {
		wg.Go(func() {
			_ = rt.publisher.Run(workCtx)
		})
	}
	if rt.refresher != nil {
		wg.Go(func() {
			rt.refresher.Run(workCtx)
		})
	}

	metricsSrv := startMetricsServer(workCtx, cfg.MetricsAddr, logger, rt.ops)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           rt.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	wg.Go(func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
	}

	shutdownHTTP(apiSrv, logger)
	shutdownHTTP(metricsSrv, logger)
	cancelWork()
	wg.Wait()

	return runErr
}

// opsHandler отдаёт метрики корзины из gatherer и health-эндпоинты.
func opsHandler(healthHandler *healthcheck.Handler, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	return mux
}

// startMetricsServer запускает ops-обработчик на отдельном адресе и
// останавливает его при отмене ctx.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
