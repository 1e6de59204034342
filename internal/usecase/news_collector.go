package usecase

import (
	"context"
	"time"

	"SignalDNA/internal/domain/models"
	drepo "SignalDNA/internal/domain/repository"
	applogger "SignalDNA/pkg/logger"
	"SignalDNA/pkg/util"
)

// FrameProcessor consumes one raw payload; *SignalPipeline satisfies it.
type FrameProcessor interface {
	Process(ctx context.Context, origin string, raw []byte)
}

// ReconnectPolicy controls what happens after the stream drops.
// The zero value stops the collector on the first failure.
type ReconnectPolicy struct {
	Enabled     bool
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	MaxAttempts int // 0 = unlimited
}

// NewsCollector reads frames from the news stream and feeds the pipeline.
type NewsCollector struct {
	stream    drepo.NewsStream
	proc      FrameProcessor
	metrics   drepo.Metrics
	reconnect ReconnectPolicy
	log       *applogger.Logger
	done      chan struct{}
}

// NewNewsCollector creates a new NewsCollector instance.
func NewNewsCollector(stream drepo.NewsStream, proc FrameProcessor, metrics drepo.Metrics, policy ReconnectPolicy, l *applogger.Logger) *NewsCollector {
	if l == nil {
		l = applogger.NewNop()
	}
	return &NewsCollector{
		stream:    stream,
		proc:      proc,
		metrics:   metrics,
		reconnect: policy,
		log:       l.With(applogger.String("component", "news_collector")),
		done:      make(chan struct{}),
	}
}

// IsConnected returns true if the news stream is connected.
func (c *NewsCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Done is closed when the consume loop exits.
func (c *NewsCollector) Done() <-chan struct{} { return c.done }

// Start connects, subscribes and launches the consume loop.
// With reconnect enabled a failed first connect is retried in the background
// under the same backoff policy; otherwise the error is returned.
func (c *NewsCollector) Start(ctx context.Context) error {
	err := c.connect(ctx)
	if err == nil {
		go c.run(ctx, false)
		return nil
	}
	if !c.reconnect.Enabled {
		return err
	}
	c.metrics.RecordError("stream")
	c.log.Warn("news stream connect failed, retrying", applogger.Error(err))
	go c.run(ctx, true)
	return nil
}

func (c *NewsCollector) connect(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	return nil
}

func (c *NewsCollector) run(ctx context.Context, dial bool) {
	defer close(c.done)

	if dial && !c.reconnectWithBackoff(ctx) {
		return
	}
	for {
		frames, errs := c.stream.Read(ctx)
		err := c.consume(ctx, frames, errs)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Error("news stream disconnected", applogger.Error(err))

		if !c.reconnect.Enabled {
			c.log.Warn("news stream reconnect disabled; streaming ingestion stopped")
			return
		}
		if !c.reconnectWithBackoff(ctx) {
			return
		}
	}
}

// consume drains frames until the stream fails or ctx is done.
func (c *NewsCollector) consume(ctx context.Context, frames <-chan []byte, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if ok && err != nil {
				c.drain(ctx, frames)
				return err
			}
			errs = nil
		case f, ok := <-frames:
			if !ok {
				if errs == nil {
					return errStreamClosed
				}
				frames = nil
				continue
			}
			c.proc.Process(ctx, models.OriginStream, f)
		}
	}
}

// drain processes frames the reader buffered before it failed.
func (c *NewsCollector) drain(ctx context.Context, frames <-chan []byte) {
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			c.proc.Process(ctx, models.OriginStream, f)
		default:
			return
		}
	}
}

func (c *NewsCollector) reconnectWithBackoff(ctx context.Context) bool {
	for attempt := 1; c.reconnect.MaxAttempts == 0 || attempt <= c.reconnect.MaxAttempts; attempt++ {
		wait := util.Backoff(c.reconnect.MinBackoff, c.reconnect.MaxBackoff, attempt)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}

		err := c.stream.Reconnect(ctx)
		if err == nil {
			c.log.Info("news stream reconnected", applogger.Int("attempt", attempt))
			return true
		}
		c.metrics.RecordError("stream_reconnect")
		c.log.Warn("news stream reconnect failed",
			applogger.Int("attempt", attempt),
			applogger.Duration("backoff_ms", wait),
			applogger.Error(err),
		)
	}
	c.log.Error("news stream reconnect attempts exhausted", applogger.Int("attempts", c.reconnect.MaxAttempts))
	return false
}

// Shutdown closes the stream.
func (c *NewsCollector) Shutdown(ctx context.Context) error {
	return c.stream.Close()
}
