package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"PriceBand/internal/domain/repository"
	"PriceBand/internal/handler/ws"
	internalrepo "PriceBand/internal/repository"
	"PriceBand/internal/service/fmp"
	"PriceBand/internal/service/ratelimit"
	"PriceBand/internal/usecase"
	"PriceBand/pkg/cache"
	pkgch "PriceBand/pkg/clickhouse"
	"PriceBand/pkg/config"
	xhttp "PriceBand/pkg/http"
	pkgkafka "PriceBand/pkg/kafka"
	applogger "PriceBand/pkg/logger"
	"PriceBand/pkg/metrics"
	"PriceBand/pkg/queue"
	"PriceBand/pkg/server"
	"PriceBand/pkg/util"
)

const refreshJobTimeout = 10 * time.Minute

// ProvideRedisClient connects to Redis, or returns nil when it is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideLogger builds the root logger. With log collection on, warnings and
// errors are aggregated onto a Redis list next to the refresh queue.
func ProvideLogger(cfg *config.Config, rdb *redis.Client) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collect && rdb != nil {
		pub := queue.NewRedisPublisher(l, rdb, queue.WithKeyPrefix(cfg.Redis.QueueKey+":logs"))
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval: cfg.Log.CollectInterval,
			Topic:        cfg.Log.CollectTopic,
			Publisher:    pub,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder, or nil when metrics
// are disabled.
func ProvideMetrics(cfg *config.Config) repository.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse and creates the schema, or
// returns nil when it is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideMarketData selects the daily bar source.
func ProvideMarketData(cfg *config.Config, ch *pkgch.Client, m repository.Metrics, l *applogger.Logger) (repository.MarketData, error) {
	switch cfg.Market.Source {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("market source clickhouse: client not configured")
		}
		return internalrepo.NewCHBarSource(ch.DB(), cfg.ClickHouse.Database, l), nil
	case "fmp":
		return fmp.New(cfg.Market.APIKey,
			fmp.WithBaseURL(cfg.Market.BaseURL),
			fmp.WithHTTPClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Market.Timeout), xhttp.WithUserAgent("priceband"))),
			fmp.WithLimiter(ratelimit.New(cfg.Market.RPS, cfg.Market.Burst)),
			fmp.WithBreaker(cfg.Market.BreakerFailures, cfg.Market.BreakerCooldown),
			fmp.WithMetrics(m),
			fmp.WithLogger(l),
		), nil
	default:
		return nil, fmt.Errorf("unknown market source %q", cfg.Market.Source)
	}
}

// ProvideSeriesStore creates the per-instrument CSV store.
func ProvideSeriesStore(cfg *config.Config, l *applogger.Logger) repository.SeriesStore {
	return internalrepo.NewFileSeriesStore(cfg.Storage.SeriesDir, l)
}

// ProvideSummaryCache keeps recent summaries in memory, backed by Redis when
// it is enabled.
func ProvideSummaryCache(cfg *config.Config, rdb *redis.Client, l *applogger.Logger) *internalrepo.SummaryCache {
	var svc cache.Service
	if rdb != nil {
		svc = cache.NewLayeredCache(
			cache.NewRedisCacheFromClient(rdb, "priceband"),
			cache.WithLayeredMemoryTTL(time.Minute),
		)
	} else {
		svc = cache.NewMemoryCache(cache.WithMemoryDefaultTTL(cfg.Redis.SummaryTTL))
	}
	return internalrepo.NewSummaryCache(svc, cfg.Redis.SummaryTTL, l)
}

// ProvideSummarySinks lists every destination a summary table is written to.
func ProvideSummarySinks(cfg *config.Config, ch *pkgch.Client, sc *internalrepo.SummaryCache, l *applogger.Logger) []repository.SummarySink {
	sinks := []repository.SummarySink{
		internalrepo.NewFileSummaryExporter(cfg.Storage.SummaryDir, l),
		sc,
	}
	if ch != nil {
		sinks = append(sinks, internalrepo.NewCHSummaryStore(ch.DB(), cfg.ClickHouse.Database, l))
	}
	return sinks
}

// ProvideSummaryReader reads the last stored summary when nothing has been
// computed in this process yet. ClickHouse wins over the cache.
func ProvideSummaryReader(cfg *config.Config, ch *pkgch.Client, sc *internalrepo.SummaryCache, l *applogger.Logger) repository.SummaryReader {
	if ch != nil {
		return internalrepo.NewCHSummaryStore(ch.DB(), cfg.ClickHouse.Database, l)
	}
	return sc
}

// ProvideBandPublisher streams band rows to Kafka, or returns nil when Kafka
// is disabled.
func ProvideBandPublisher(cfg *config.Config, l *applogger.Logger) (repository.BandPublisher, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaBandPublisher(producer, cfg.Kafka.Topic, l), nil
}

// ForecastOptions maps the forecast section onto the pipeline options.
func ForecastOptions(cfg *config.Config) usecase.ForecastOptions {
	return usecase.ForecastOptions{
		Start:           cfg.Forecast.StartDate.Time,
		End:             cfg.Forecast.EndDate.Time,
		Horizons:        cfg.Forecast.Horizons,
		Lookback:        cfg.Forecast.Lookback,
		LowWindow:       cfg.Forecast.LowWindow,
		PriceColumn:     cfg.Forecast.PriceColumn,
		LowColumn:       cfg.Forecast.LowColumn,
		ReuseCache:      cfg.Forecast.ReuseCache,
		Workers:         cfg.Forecast.Workers,
		TaskTimeout:     cfg.Forecast.TaskTimeout,
		ProjectInWorker: cfg.Forecast.ProjectInWorker,
	}
}

// SummaryParams maps the summary section onto the date selection.
func SummaryParams(cfg *config.Config) (usecase.SummaryParams, error) {
	mode, err := repository.ParseMode(cfg.Summary.Mode)
	if err != nil {
		return usecase.SummaryParams{}, err
	}
	p := usecase.SummaryParams{
		Mode:  mode,
		Start: cfg.Summary.StartDate.Time,
		End:   cfg.Summary.EndDate.Time,
	}
	if mode == repository.ModeFrequency {
		if p.Frequency, err = repository.ParseFrequency(cfg.Summary.Frequency); err != nil {
			return usecase.SummaryParams{}, err
		}
	}
	return p, nil
}

// ProvideForecaster creates the per-instrument pipeline.
func ProvideForecaster(cfg *config.Config, market repository.MarketData, store repository.SeriesStore, m repository.Metrics, l *applogger.Logger) *usecase.Forecaster {
	gate := usecase.NewCacheGate(store, m, l)
	return usecase.NewForecaster(market, store, gate, m, ForecastOptions(cfg), l)
}

// ProvideReporter creates the summary reporter.
func ProvideReporter(cfg *config.Config, sinks []repository.SummarySink, m repository.Metrics, l *applogger.Logger) (*usecase.Reporter, error) {
	params, err := SummaryParams(cfg)
	if err != nil {
		return nil, fmt.Errorf("summary config: %w", err)
	}
	return usecase.NewReporter(sinks, params, cfg.Forecast.Horizons, m, l), nil
}

// ProvideForecastState creates the empty serving state.
func ProvideForecastState() *usecase.ForecastState {
	return usecase.NewForecastState()
}

// ProvideRefresher creates the refresh cycle over the configured tickers.
func ProvideRefresher(
	cfg *config.Config,
	f *usecase.Forecaster,
	r *usecase.Reporter,
	state *usecase.ForecastState,
	pub repository.BandPublisher,
	l *applogger.Logger,
) *usecase.Refresher {
	symbols := util.SplitSymbols(strings.Join(cfg.Forecast.Tickers, ","))
	return usecase.NewRefresher(f, r, state, pub, symbols, l)
}

// ProvideBandQuery creates the read side used by the API.
func ProvideBandQuery(state *usecase.ForecastState, reader repository.SummaryReader, l *applogger.Logger) *usecase.BandQuery {
	return usecase.NewBandQuery(state, reader, l)
}

// ProvideRefreshQueue creates the Redis refresh queue with the refresh job
// registered, or returns nil when Redis is disabled.
func ProvideRefreshQueue(cfg *config.Config, rdb *redis.Client, refresher *usecase.Refresher, l *applogger.Logger) *queue.RedisQueue {
	if rdb == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Redis.Workers,
		RetryLimit: 3,
		RetryDelay: 30 * time.Second,
		JobTimeout: refreshJobTimeout,
	}, rdb, queue.ModeProducerConsumer, queue.WithKeyPrefix(cfg.Redis.QueueKey))
	q.RegisterJob(usecase.NewRefreshJob(refresher, l))
	return q
}

// ProvideHub creates the band stream hub.
func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(l, 30*time.Second)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	refresher *usecase.Refresher,
	query *usecase.BandQuery,
	hub *ws.Hub,
	pub repository.BandPublisher,
	q *queue.RedisQueue,
	rdb *redis.Client,
	ch *pkgch.Client,
) *server.App {
	return server.New(cfg, l, refresher, query, hub, pub, q, rdb, ch)
}
