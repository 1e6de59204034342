package di

import (
	"context"
	"fmt"
	"time"

	"SignalDNA/internal/domain/repository"
	"SignalDNA/internal/handler/api"
	internalrepo "SignalDNA/internal/repository"
	"SignalDNA/internal/service/finnhub"
	"SignalDNA/internal/service/hub"
	"SignalDNA/internal/service/ratelimit"
	"SignalDNA/internal/services/rules"
	"SignalDNA/internal/usecase"
	"SignalDNA/pkg/cache"
	"SignalDNA/pkg/config"
	xhttp "SignalDNA/pkg/http"
	pkgkafka "SignalDNA/pkg/kafka"
	applogger "SignalDNA/pkg/logger"
	"SignalDNA/pkg/metrics"
	"SignalDNA/pkg/server"
	"SignalDNA/pkg/tracing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Version is stamped into traces; overridden at link time.
var Version = "dev"

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry shared by every collector.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideTracer creates the pipeline tracer; a no-op unless tracing is enabled.
func ProvideTracer(cfg *config.Config, l *applogger.Logger) (*tracing.Tracer, func(), error) {
	t, err := tracing.New(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
		PrettyPrint: cfg.Tracing.PrettyPrint,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}
	cleanup := func() {
		if err := t.Shutdown(context.Background()); err != nil {
			l.Warn("tracer shutdown error", applogger.Error(err))
		}
	}
	return t, cleanup, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
// With a logs topic configured, aggregated error logs are shipped through it.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.CollectInterval,
			CountThreshold: cfg.Log.CollectCount,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}

	cleanup := func() {
		l.RemoveCollector()
		if err := producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideRedisClient connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config, l *applogger.Logger) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(context.Background(),
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis client: %w", err)
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}
	return client, cleanup, nil
}

// ProvideDeduper builds the duplicate filter over the configured cache backend.
// It returns nil when dedupe is disabled.
func ProvideDeduper(cfg *config.Config, rc *redis.Client) (repository.Deduper, func(), error) {
	if !cfg.Dedupe.Enabled {
		return nil, func() {}, nil
	}
	var svc cache.Service
	switch cfg.Dedupe.Backend {
	case "redis":
		if rc == nil {
			return nil, nil, fmt.Errorf("dedupe: redis backend without redis client")
		}
		svc = cache.NewRedisCache(rc, cfg.Redis.Prefix)
	default:
		svc = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Dedupe.MaxSize),
			cache.WithMemoryCleanup(cfg.Dedupe.TTL),
		)
	}
	cleanup := func() { _ = svc.Close() }
	return internalrepo.NewCacheDeduper(svc, cfg.Dedupe.TTL), cleanup, nil
}

// ProvideHub creates the subscriber broadcast hub.
func ProvideHub(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*hub.Hub, func()) {
	h := hub.New(
		hub.WithSendBuffer(cfg.Hub.SendBuffer),
		hub.WithWriteWait(cfg.Hub.WriteWait),
		hub.WithPingPeriod(cfg.Hub.PingPeriod),
		hub.WithLogger(l),
		hub.WithMetrics(m),
	)
	cleanup := func() { _ = h.Close() }
	return h, cleanup
}

// ProvideRedisRelay creates the cross-instance relay, or nil when Redis is disabled.
func ProvideRedisRelay(cfg *config.Config, rc *redis.Client, h *hub.Hub, m repository.Metrics, l *applogger.Logger) *internalrepo.RedisRelay {
	if rc == nil {
		return nil
	}
	return internalrepo.NewRedisRelay(rc, cfg.Redis.RelayChannel, uuid.NewString(), h, m, l)
}

// ProvideSignalPublishers collects the enabled relay sinks.
func ProvideSignalPublishers(cfg *config.Config, producer *pkgkafka.Producer, relay *internalrepo.RedisRelay) []repository.SignalPublisher {
	var out []repository.SignalPublisher
	if producer != nil {
		out = append(out, internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalsTopic))
	}
	if relay != nil {
		out = append(out, relay)
	}
	return out
}

// ProvideRuleEngine creates the production rule table.
func ProvideRuleEngine() *rules.Engine {
	return rules.NewDefaultEngine()
}

// ProvideSignalPipeline creates the ingestion-to-broadcast pipeline.
func ProvideSignalPipeline(
	cfg *config.Config,
	engine *rules.Engine,
	h *hub.Hub,
	relays []repository.SignalPublisher,
	dedupe repository.Deduper,
	m repository.Metrics,
	tracer *tracing.Tracer,
	l *applogger.Logger,
) *usecase.SignalPipeline {
	opts := []usecase.PipelineOption{
		usecase.WithRelays(relays...),
		usecase.WithPipelineMetrics(m),
		usecase.WithTracer(tracer),
		usecase.WithPipelineLogger(l),
		usecase.WithRelayTimeout(cfg.Pipeline.RelayTimeout),
	}
	if dedupe != nil {
		opts = append(opts, usecase.WithDeduper(dedupe))
	}
	l.Info("rule table loaded", applogger.Strings("rules", engine.Rules()), applogger.Int("relays", len(relays)))
	return usecase.NewSignalPipeline(engine, h, opts...)
}

// ProvideNewsCollector creates the Finnhub stream collector, or nil when streaming is disabled.
func ProvideNewsCollector(cfg *config.Config, pipeline *usecase.SignalPipeline, m repository.Metrics, l *applogger.Logger) *usecase.NewsCollector {
	if !cfg.Finnhub.Stream.Enabled {
		return nil
	}
	stream := finnhub.New(cfg.Finnhub.APIKey,
		finnhub.WithStreamURL(cfg.Finnhub.WebSocketURL),
		finnhub.WithTopics(cfg.Finnhub.Topics...),
		finnhub.WithPingInterval(cfg.Finnhub.PingInterval),
		finnhub.WithLogger(l),
	)
	policy := usecase.ReconnectPolicy{
		Enabled:     cfg.Finnhub.Reconnect.Enabled,
		MinBackoff:  cfg.Finnhub.Reconnect.MinBackoff,
		MaxBackoff:  cfg.Finnhub.Reconnect.MaxBackoff,
		MaxAttempts: cfg.Finnhub.Reconnect.MaxAttempts,
	}
	return usecase.NewNewsCollector(stream, pipeline, m, policy, l)
}

// ProvideKafkaConsumer creates the news topic consumer, or nil when no news topic is set.
func ProvideKafkaConsumer(cfg *config.Config, reg *prometheus.Registry, pipeline *usecase.SignalPipeline, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || cfg.Kafka.NewsTopic == "" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerStartOffset(cfg.Kafka.Consumer.StartOffset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetchBytes(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerHook(pkgkafka.TraceHook()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaNewsHandler(cfg.Kafka.NewsTopic, pipeline, l))
	return consumer, nil
}

// ProvideHTTPHandlers assembles the routes served by the HTTP server.
func ProvideHTTPHandlers(
	cfg *config.Config,
	h *hub.Hub,
	pipeline *usecase.SignalPipeline,
	engine *rules.Engine,
	collector *usecase.NewsCollector,
	l *applogger.Logger,
) []xhttp.Handler {
	var limiter api.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.Burst, cfg.RateLimit.RefillPerSec)
	}
	health := api.NewHealthHandler(h, nil, engine)
	if collector != nil {
		health = api.NewHealthHandler(h, collector, engine)
	}
	return []xhttp.Handler{
		api.NewWebhookHandler(cfg.Finnhub.Webhook.Secret, cfg.Finnhub.Webhook.MaxBodyBytes, pipeline, l),
		api.NewRealtimeHandler(h, limiter, l),
		health,
	}
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, handlers []xhttp.Handler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(handlers,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadHeaderTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
		xhttp.WithMetrics(reg, cfg.Server.SlowThreshold),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	collector *usecase.NewsCollector,
	consumer *pkgkafka.Consumer,
	relay *internalrepo.RedisRelay,
) *server.App {
	if cfg.Dedupe.Enabled {
		l.Info("dedupe enabled", applogger.String("backend", cfg.Dedupe.Backend), applogger.Duration("ttl_ms", cfg.Dedupe.TTL))
	}
	return server.New(l, srv, collector, consumer, relay, cfg.Server.ShutdownTimeout)
}
