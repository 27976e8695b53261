package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	drepo "PriceBand/internal/domain/repository"
	"PriceBand/internal/handler/api"
	"PriceBand/internal/handler/ws"
	apimetrics "PriceBand/internal/service/metrics"
	"PriceBand/internal/usecase"
	pkgch "PriceBand/pkg/clickhouse"
	"PriceBand/pkg/config"
	xhttp "PriceBand/pkg/http"
	applogger "PriceBand/pkg/logger"
	"PriceBand/pkg/queue"
)

// App owns the forecast pipeline and the infrastructure around it.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	refresher *usecase.Refresher
	query     *usecase.BandQuery
	hub       *ws.Hub
	publisher drepo.BandPublisher
	queue     *queue.RedisQueue
	redis     *redis.Client
	chClient  *pkgch.Client

	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies. queue, redis client,
// clickhouse client and publisher may be nil when disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	refresher *usecase.Refresher,
	query *usecase.BandQuery,
	hub *ws.Hub,
	publisher drepo.BandPublisher,
	q *queue.RedisQueue,
	redisClient *redis.Client,
	chClient *pkgch.Client,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:       cfg,
		log:       log,
		refresher: refresher,
		query:     query,
		hub:       hub,
		publisher: publisher,
		queue:     q,
		redis:     redisClient,
		chClient:  chClient,
	}
}

// Build recomputes every configured instrument from scratch.
func (a *App) Build(ctx context.Context) error {
	return a.runOnce(ctx, usecase.ModeBuild)
}

// Update extends every configured instrument with the latest minute bar,
// building those that have no usable stored series.
func (a *App) Update(ctx context.Context) error {
	return a.runOnce(ctx, usecase.ModeUpdate)
}

func (a *App) runOnce(ctx context.Context, mode string) error {
	defer a.Close()

	started := time.Now()
	latest, err := a.refresher.Refresh(ctx, mode, nil)
	if err != nil {
		return err
	}
	a.log.Info("run complete",
		applogger.String("mode", mode),
		applogger.Date("as_of", latest.AsOf),
		applogger.Int("rows", len(latest.Rows)),
		applogger.Duration("took", time.Since(started)))
	return nil
}

// Serve builds the serving state, then exposes it over HTTP and websocket,
// refreshing on a timer and on queued requests until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	defer a.Close()

	if _, err := a.refresher.Refresh(ctx, usecase.ModeUpdate, nil); err != nil {
		// keep serving; the stored summary is still readable and the
		// scheduled refresh may recover
		a.log.Error("initial refresh failed", applogger.Error(err))
	}
	a.refresher.AddListener(a.hub)

	var refreshQueue api.RefreshQueue
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return fmt.Errorf("start refresh queue: %w", err)
		}
		refreshQueue = a.queue
	}

	if a.cfg.Metrics.Enabled {
		apimetrics.Register()
	}
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	handlers := xhttp.Handlers{
		api.NewForecastEchoHandler(a.log, a.query, a.refresher, refreshQueue),
		a.hub,
	}
	a.httpServer = xhttp.NewServer(handlers,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(a.log),
	)
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.refresher.Run(loopCtx, a.cfg.Forecast.RefreshInterval)
	}()
	a.log.Info("serving",
		applogger.Int("port", a.cfg.Server.Port),
		applogger.Duration("refresh_interval", a.cfg.Forecast.RefreshInterval))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	<-done
	return a.shutdown()
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}
	a.hub.Close()
	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("refresh queue stop error", applogger.Error(err))
		}
	}
	a.log.Info("shutdown complete")
	return nil
}

// Close releases infrastructure clients. It is safe to call more than once.
func (a *App) Close() {
	// flushes aggregated logs while the redis client is still open
	a.log.RemoveCollector()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("band publisher close error", applogger.Error(err))
		}
		a.publisher = nil
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
		a.chClient = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
		a.redis = nil
	}
}
