package server

import (
	"context"
	"time"

	"SignalDNA/internal/repository"
	"SignalDNA/internal/usecase"
	xhttp "SignalDNA/pkg/http"
	pkgkafka "SignalDNA/pkg/kafka"
	applogger "SignalDNA/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// App encapsulates the entire application lifecycle.
// collector, consumer and relay are nil when their ingestion path is disabled.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	collector       *usecase.NewsCollector
	consumer        *pkgkafka.Consumer
	relay           *repository.RedisRelay
	shutdownTimeout time.Duration
}

// New creates a new App instance with all dependencies.
func New(
	l *applogger.Logger,
	httpServer *xhttp.Server,
	collector *usecase.NewsCollector,
	consumer *pkgkafka.Consumer,
	relay *repository.RedisRelay,
	shutdownTimeout time.Duration,
) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &App{
		log:             l,
		httpServer:      httpServer,
		collector:       collector,
		consumer:        consumer,
		relay:           relay,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of them fails.
// Infrastructure owned by DI is released by the injector's cleanup, not here.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.httpServer.Run(gctx)
	})

	if a.collector != nil {
		g.Go(func() error {
			// losing the stream is not fatal; webhook ingestion keeps running
			if err := a.collector.Start(gctx); err != nil {
				a.log.Error("news stream start failed", applogger.Error(err))
				return nil
			}
			a.log.Info("news collector started")
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()
			if err := a.collector.Shutdown(sctx); err != nil {
				a.log.Warn("news collector stop error", applogger.Error(err))
			}
			return nil
		})
	}

	if a.consumer != nil {
		g.Go(func() error {
			if err := a.consumer.Start(); err != nil {
				return err
			}
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()
			if err := a.consumer.Stop(sctx); err != nil {
				a.log.Warn("kafka consumer stop error", applogger.Error(err))
			}
			return nil
		})
	}

	if a.relay != nil {
		g.Go(func() error {
			return a.relay.Run(gctx)
		})
	}

	a.log.Info("signaldna started")
	err := g.Wait()
	a.log.Info("signaldna stopped")
	return err
}
