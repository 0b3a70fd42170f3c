package di

import (
	"context"
	"fmt"
	"time"

	"PivotScan/internal/domain/repository"
	domsvc "PivotScan/internal/domain/service"
	"PivotScan/internal/handler/api"
	mid "PivotScan/internal/middleware"
	internalrepo "PivotScan/internal/repository"
	icache "PivotScan/internal/service/cache"
	"PivotScan/internal/service/feedws"
	"PivotScan/internal/services/detector"
	"PivotScan/internal/services/fusion"
	"PivotScan/internal/services/tickdata"
	"PivotScan/internal/usecase"
	pkgcache "PivotScan/pkg/cache"
	pkgch "PivotScan/pkg/clickhouse"
	"PivotScan/pkg/config"
	xhttp "PivotScan/pkg/http"
	pkgkafka "PivotScan/pkg/kafka"
	applogger "PivotScan/pkg/logger"
	"PivotScan/pkg/metrics"
	pkgqueue "PivotScan/pkg/queue"
	"PivotScan/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the shared application logger. Unset fields
// fall back to environment-appropriate defaults.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if lc.Level == "" {
		lc.Level = "info"
		if cfg.Environment == "development" {
			lc.Level = "debug"
		}
	}
	if lc.Format == "" {
		lc.Format = "json"
		if cfg.Environment == "development" {
			lc.Format = "console"
		}
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	l, err := applogger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideMarketStore creates the ClickHouse market store and ensures its schema.
func ProvideMarketStore(chClient *pkgch.Client, l *applogger.Logger) (*internalrepo.CHMarketStore, error) {
	store := internalrepo.NewCHMarketStore(chClient)
	store.SetLogger(l)

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Init(ctx); err != nil {
		_ = chClient.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideTickStorage exposes the market store as tick storage.
func ProvideTickStorage(store *internalrepo.CHMarketStore) repository.TickStorage {
	return store
}

// ProvideMarketData wraps the market store with a short-lived bar cache so
// the evaluator does not rebuild the same minute bars every cycle. With
// Redis available the cache is layered, so a restarted replica finds warm
// bars in the shared tier.
func ProvideMarketData(
	store *internalrepo.CHMarketStore,
	rdb *redis.Client,
	l *applogger.Logger,
	cfg *config.Config,
) repository.MarketData {
	var barCache pkgcache.Service
	if rdb != nil {
		shared, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisClient(rdb),
			pkgcache.WithRedisPrefix("pivotscan:bars"),
		)
		if err != nil {
			l.Warn("bar cache falling back to process memory", applogger.Error(err))
		} else {
			barCache = pkgcache.NewLayeredCache(shared,
				pkgcache.WithLayeredMemorySize(4096),
				pkgcache.WithLayeredPromoteTTL(cfg.Engine.BarCacheTTL),
			)
		}
	}
	if barCache == nil {
		barCache = pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(4096),
			pkgcache.WithMemoryCleanup(time.Minute),
		)
	}
	return internalrepo.NewCachedMarketStore(store, barCache, cfg.Engine.BarCacheTTL)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideTickPublisher creates the Kafka tick publisher repository.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.TickPublisher {
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TickTopic)
}

// ProvideSignalSink creates the Kafka signal sink repository.
func ProvideSignalSink(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalSink {
	return internalrepo.NewKafkaSignalSink(producer, cfg.Kafka.SignalTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTickIngestHandler registers the handler for the tick topic.
func ProvideTickIngestHandler(
	storage repository.TickStorage,
	agg *tickdata.Aggregator,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TickIngestHandler {
	return usecase.NewTickIngestHandler(cfg.Kafka.TickTopic, storage, agg, metrics)
}

// ProvideFeedStream creates the upstream trade WebSocket stream.
func ProvideFeedStream(cfg *config.Config) repository.TickStream {
	reconnect := cfg.Feed.ReconnectDelay
	if reconnect <= 0 {
		reconnect = 5 * time.Second
	}
	ping := cfg.Feed.PingInterval
	if ping <= 0 {
		ping = 30 * time.Second
	}
	return feedws.New(feedws.Config{
		APIKey:         cfg.Feed.APIKey,
		URL:            cfg.Feed.WebSocketURL,
		Instruments:    cfg.Feed.Instruments,
		ReconnectDelay: reconnect,
		PingInterval:   ping,
	})
}

// ProvideTickProcessor creates the tick processor use case.
func ProvideTickProcessor(pub repository.TickPublisher, metrics repository.Metrics) *usecase.TickProcessor {
	return usecase.NewTickProcessor(pub, metrics)
}

// ProvideTickCollector creates the tick collector use case.
func ProvideTickCollector(
	stream repository.TickStream,
	processor *usecase.TickProcessor,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TickCollector {
	// Build middleware pipeline between WebSocket and Kafka
	pipe := mid.NewTickPipeline(processor, metrics,
		mid.WithMaxRPS(cfg.Pipeline.MaxRPS),
		mid.WithBufferSize(cfg.Pipeline.BufferSize),
	)
	return usecase.NewTickCollector(stream, processor, metrics, pipe)
}

// ProvideAggregator creates the in-memory second-level bucket aggregator.
func ProvideAggregator(cfg *config.Config) (*tickdata.Aggregator, error) {
	interval := cfg.Engine.Aggregation
	if interval <= 0 {
		interval = tickdata.DefaultInterval
	}
	agg, err := tickdata.NewAggregator(interval, tickdata.DefaultMaxBuckets, tickdata.DefaultMaxTicks)
	if err != nil {
		return nil, fmt.Errorf("aggregator: %w", err)
	}
	return agg, nil
}

// ProvideMicroAnalyzer creates the tick microstructure analyzer.
func ProvideMicroAnalyzer(cfg *config.Config) (domsvc.MicrostructureAnalyzer, error) {
	lookback := cfg.Engine.MicroLookback
	if lookback <= 0 {
		lookback = tickdata.DefaultMicroLookback
	}
	a, err := tickdata.NewAnalyzer(lookback)
	if err != nil {
		return nil, fmt.Errorf("micro analyzer: %w", err)
	}
	return a, nil
}

// ProvideEvaluator assembles the detection core: both detectors, the shared
// fine-path rate limiter, the fusion layer, and the evaluation driver.
// Zero config values fall back to the package defaults.
func ProvideEvaluator(
	market repository.MarketData,
	agg *tickdata.Aggregator,
	micro domsvc.MicrostructureAnalyzer,
	sink repository.SignalSink,
	metrics repository.Metrics,
	l *applogger.Logger,
	cfg *config.Config,
) (*usecase.Evaluator, error) {
	e := cfg.Engine

	cc := detector.DefaultCoarseConfig()
	if e.Coarse.RSIPeriod > 0 {
		cc.RSIPeriod = e.Coarse.RSIPeriod
	}
	if e.Coarse.RSIUpper > 0 {
		cc.RSIUpper = e.Coarse.RSIUpper
	}
	if e.Coarse.RSILower > 0 {
		cc.RSILower = e.Coarse.RSILower
	}
	if e.Coarse.Deviation > 0 {
		cc.DeviationThreshold = e.Coarse.Deviation
	}
	coarseEval, err := detector.NewCoarseEvaluator(cc)
	if err != nil {
		return nil, fmt.Errorf("coarse evaluator: %w", err)
	}
	coarseWindow := e.Coarse.Window
	if coarseWindow <= 0 {
		coarseWindow = detector.DefaultCoarseWindow
	}
	coarse, err := detector.New(coarseEval, coarseWindow)
	if err != nil {
		return nil, fmt.Errorf("coarse detector: %w", err)
	}

	cooldown := e.Limiter.Cooldown
	if cooldown <= 0 {
		cooldown = detector.DefaultCooldown
	}
	perMinute := e.Limiter.MaxPerMinute
	if perMinute <= 0 {
		perMinute = detector.DefaultMaxPerMinute
	}
	limiter, err := detector.NewRateLimiter(cooldown, perMinute)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	fc := detector.DefaultFineConfig()
	if e.Fine.RSIPeriod > 0 {
		fc.RSIPeriod = e.Fine.RSIPeriod
	}
	if e.Fine.RSIUpper > 0 {
		fc.RSIUpper = e.Fine.RSIUpper
	}
	if e.Fine.RSILower > 0 {
		fc.RSILower = e.Fine.RSILower
	}
	if e.Fine.VWAPDeviation > 0 {
		fc.VWAPDeviation = e.Fine.VWAPDeviation
	}
	if e.Fine.FireThreshold > 0 {
		fc.FireThreshold = e.Fine.FireThreshold
	}
	fineEval, err := detector.NewFineEvaluator(fc, limiter)
	if err != nil {
		return nil, fmt.Errorf("fine evaluator: %w", err)
	}
	// The fine detector gates on the same bucket count the evaluator waits
	// for, so a ready window is never rejected as too short.
	fineWindow := e.MinFineBuckets
	if fineWindow <= 0 {
		fineWindow = detector.DefaultFineWindow
	}
	fine, err := detector.New(fineEval, fineWindow)
	if err != nil {
		return nil, fmt.Errorf("fine detector: %w", err)
	}

	fus := fusion.DefaultConfig()
	if e.Fusion.CoarseWeight > 0 {
		fus.CoarseWeight = e.Fusion.CoarseWeight
	}
	if e.Fusion.FineWeight > 0 {
		fus.FineWeight = e.Fusion.FineWeight
	}
	if e.Fusion.ConfirmationThreshold > 0 {
		fus.ConfirmationThreshold = e.Fusion.ConfirmationThreshold
	}
	fuser, err := fusion.New(fus)
	if err != nil {
		return nil, fmt.Errorf("fusion: %w", err)
	}

	return usecase.NewEvaluator(
		market, agg, micro, coarse, fine, fuser, sink, metrics,
		cfg.Feed.Instruments,
		usecase.WithEvalInterval(e.EvalInterval),
		usecase.WithCoarseTimeframe(repository.NormalizeTimeframe(e.CoarseTimeframe)),
		usecase.WithBarHistory(e.BarHistory, e.MinBarHistory),
		usecase.WithFineWindow(e.FineWindow, e.MinFineBuckets),
		usecase.WithMicroLookback(e.MicroLookback),
		usecase.WithEvaluatorLogger(l),
	), nil
}

// ProvideBucketQueries creates read-side bucket and microstructure queries.
func ProvideBucketQueries(agg *tickdata.Aggregator) *usecase.BucketQueries {
	return usecase.NewBucketQueries(agg)
}

// ProvideRedisClient connects to Redis when enabled. A nil client disables
// the warmup queue and the response cache falls back to process memory.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideWarmupQueue creates the Redis-backed warmup job queue.
func ProvideWarmupQueue(
	client *redis.Client,
	market repository.MarketData,
	agg *tickdata.Aggregator,
	l *applogger.Logger,
	cfg *config.Config,
) *pkgqueue.RedisQueue {
	if client == nil || !cfg.Engine.Warmup.Enabled {
		return nil
	}
	job := usecase.NewWarmupJob(market, agg)
	job.SetLogger(l)

	q := pkgqueue.NewRedisQueue(l, &pkgqueue.QueueConfig{
		Workers:    2,
		RetryLimit: 3,
		RetryDelay: 5 * time.Second,
	}, client, pkgqueue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q
}

// ProvideHTTPHandler creates the read-side API handler. The response
// cache shares the Redis client when one is configured.
func ProvideHTTPHandler(
	l *applogger.Logger,
	eval *usecase.Evaluator,
	buckets *usecase.BucketQueries,
	storage repository.TickStorage,
	rdb *redis.Client,
) xhttp.Handler {
	h := api.NewSignalsHandler(l, eval, buckets)
	h.SetStorage(storage)
	if rdb != nil {
		h.UseResponseCache(icache.NewRedisCache(rdb))
	} else {
		h.UseResponseCache(icache.NewTTLCache())
	}
	return h
}

// ProvideApp creates the application server and attaches the pieces
// that cut across providers: the consumer delivery-lag hook and the
// error summary feed, which reuses the Kafka producer.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.TickIngestHandler,
	chClient *pkgch.Client,
	eval *usecase.Evaluator,
	warmup *pkgqueue.RedisQueue,
	handler xhttp.Handler,
	producer *pkgkafka.Producer,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NewConsumerLagHook())
	}
	if cfg.Logging.Summary.Enabled {
		l.AttachCollector(&applogger.CollectorConfig{
			FlushInterval: cfg.Logging.Summary.Interval,
			MaxUnique:     cfg.Logging.Summary.MaxUnique,
			Topic:         cfg.Logging.Summary.Topic,
			Publisher:     producer,
		})
	}
	app := server.New(cfg, l, collector, consumer, kh, chClient, eval, warmup, handler)
	// attach tick processor to app for closing resources via collector
	if collector != nil {
		app.TickProc = collector.Processor()
	}
	return app
}
