//go:build wireinject
// +build wireinject

package di

import (
	"PivotScan/pkg/config"
	"PivotScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Logging and metrics
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,

		// Repositories (with business logic)
		ProvideMarketStore,
		ProvideTickStorage,
		ProvideMarketData,
		ProvideTickPublisher,
		ProvideSignalSink,
		ProvideFeedStream,

		// Detection core
		ProvideAggregator,
		ProvideMicroAnalyzer,
		ProvideEvaluator,

		// Use cases
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideTickIngestHandler,
		ProvideBucketQueries,
		ProvideWarmupQueue,

		// HTTP
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
