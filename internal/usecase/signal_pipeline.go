package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalDNA/internal/domain/models"
	drepo "SignalDNA/internal/domain/repository"
	domsvc "SignalDNA/internal/domain/service"
	"SignalDNA/internal/service/finnhub"
	applogger "SignalDNA/pkg/logger"
	"SignalDNA/pkg/metrics"
	"SignalDNA/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// SignalPipeline turns one raw provider payload into at most one broadcast.
// It is safe for concurrent use by every ingestion path.
type SignalPipeline struct {
	engine       domsvc.SignalEvaluator
	hub          drepo.Broadcaster
	relays       []drepo.SignalPublisher
	dedupe       drepo.Deduper
	metrics      drepo.Metrics
	tracer       *tracing.Tracer
	log          *applogger.Logger
	relayTimeout time.Duration
	now          func() time.Time
}

// PipelineOption configures SignalPipeline.
type PipelineOption func(*SignalPipeline)

// WithRelays adds best-effort sinks that receive every broadcast update.
func WithRelays(relays ...drepo.SignalPublisher) PipelineOption {
	return func(p *SignalPipeline) {
		for _, r := range relays {
			if r != nil {
				p.relays = append(p.relays, r)
			}
		}
	}
}

// WithDeduper drops events the deduper has already seen.
func WithDeduper(d drepo.Deduper) PipelineOption {
	return func(p *SignalPipeline) { p.dedupe = d }
}

func WithPipelineMetrics(m drepo.Metrics) PipelineOption {
	return func(p *SignalPipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithTracer(t *tracing.Tracer) PipelineOption {
	return func(p *SignalPipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *SignalPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithRelayTimeout bounds each relay publish.
func WithRelayTimeout(d time.Duration) PipelineOption {
	return func(p *SignalPipeline) {
		if d > 0 {
			p.relayTimeout = d
		}
	}
}

// NewSignalPipeline creates a pipeline over engine and hub.
func NewSignalPipeline(engine domsvc.SignalEvaluator, hub drepo.Broadcaster, opts ...PipelineOption) *SignalPipeline {
	p := &SignalPipeline{
		engine:       engine,
		hub:          hub,
		metrics:      metrics.Noop{},
		tracer:       tracing.Noop(),
		log:          applogger.NewNop(),
		relayTimeout: 2 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle runs decode, normalize, dedupe, evaluate, broadcast and relay for raw.
// The bool result is false when nothing was broadcast: an ignored frame, a duplicate,
// or no matching rule. Errors are decode or validation failures only.
func (p *SignalPipeline) Handle(ctx context.Context, origin string, raw []byte) (models.SignalUpdate, bool, error) {
	ctx, span := p.tracer.Start(ctx, "signal.pipeline", attribute.String("origin", origin))
	defer span.End()

	p.metrics.RecordEvent(origin)

	articles, err := finnhub.Decode(origin, raw)
	if err != nil {
		tracing.Fail(span, err)
		return models.SignalUpdate{}, false, err
	}
	if len(articles) == 0 {
		// stream control frames such as pings
		return models.SignalUpdate{}, false, nil
	}

	ev, err := finnhub.Normalize(articles, origin, p.now())
	if err != nil {
		tracing.Fail(span, err)
		return models.SignalUpdate{}, false, fmt.Errorf("normalize %s event: %w", origin, err)
	}
	if !ev.PublishedAt.IsZero() {
		p.metrics.RecordLatency("news_age", ev.ReceivedAt.Sub(ev.PublishedAt).Seconds())
	}

	if p.dedupe != nil {
		seen, derr := p.dedupe.Seen(ctx, ev)
		switch {
		case derr != nil:
			// fail open: a broken cache must not silence signals
			p.metrics.RecordError("dedupe")
			p.log.Warn("dedupe check failed", applogger.String("origin", origin), applogger.Error(derr))
		case seen:
			p.log.Debug("duplicate news event dropped", applogger.String("origin", origin), applogger.String("id", ev.ID))
			span.SetAttributes(attribute.Bool("duplicate", true))
			return models.SignalUpdate{}, false, nil
		}
	}

	update, ok := p.engine.Evaluate(ev)
	if !ok {
		p.log.Debug("no rule matched", applogger.String("origin", origin), applogger.String("headline", ev.Headline))
		return models.SignalUpdate{}, false, nil
	}

	delivered := p.hub.Broadcast(update)
	p.metrics.RecordSignal(string(update.Instrument), string(update.Signal))
	span.SetAttributes(
		attribute.String("instrument", string(update.Instrument)),
		attribute.Int("subscribers", delivered),
	)
	p.log.Info("signal broadcast",
		applogger.String("origin", origin),
		applogger.String("instrument", string(update.Instrument)),
		applogger.String("signal", string(update.Signal)),
		applogger.Int("conviction", update.Conviction),
		applogger.Int("subscribers", delivered),
		applogger.String("headline", ev.Headline),
	)

	p.relay(ctx, update)
	return update, true, nil
}

func (p *SignalPipeline) relay(ctx context.Context, u models.SignalUpdate) {
	for _, r := range p.relays {
		rctx, cancel := context.WithTimeout(ctx, p.relayTimeout)
		start := time.Now()
		err := r.Publish(rctx, u)
		cancel()
		p.metrics.RecordLatency("relay_"+r.Name(), time.Since(start).Seconds())
		if err != nil {
			p.metrics.RecordError("relay_" + r.Name())
			p.log.Warn("signal relay failed", applogger.String("sink", r.Name()), applogger.Error(err))
		}
	}
}

// Process is Handle for fire-and-forget callers: failures are logged and counted,
// panics are recovered, and nothing is returned.
func (p *SignalPipeline) Process(ctx context.Context, origin string, raw []byte) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordError("pipeline_panic")
			p.log.Error("signal pipeline panic", applogger.String("origin", origin), applogger.Any("panic", r))
		}
		p.metrics.RecordLatency("pipeline", time.Since(start).Seconds())
	}()

	if _, _, err := p.Handle(ctx, origin, raw); err != nil {
		p.metrics.RecordError(errorKind(err))
		p.log.Warn("news event dropped",
			applogger.String("origin", origin),
			applogger.Int("bytes", len(raw)),
			applogger.Error(err),
		)
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, finnhub.ErrMalformedPayload):
		return "decode"
	case errors.Is(err, finnhub.ErrEmptyBatch), errors.Is(err, finnhub.ErrMissingHeadline):
		return "validate"
	default:
		return "pipeline"
	}
}
