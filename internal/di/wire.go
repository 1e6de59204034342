//go:build wireinject
// +build wireinject

package di

import (
	"SignalDNA/pkg/config"
	"SignalDNA/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideTracer,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideRedisClient,
		ProvideDeduper,

		// Fan-out
		ProvideHub,
		ProvideRedisRelay,
		ProvideSignalPublishers,

		// Use cases
		ProvideRuleEngine,
		ProvideSignalPipeline,
		ProvideNewsCollector,
		ProvideKafkaConsumer,

		// Transport
		ProvideHTTPHandlers,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
