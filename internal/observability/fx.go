package observability

import (
	"github.com/smallbiznis/flightclub/internal/observability/logger"
	"github.com/smallbiznis/flightclub/internal/observability/metrics"
	"github.com/smallbiznis/flightclub/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// Installs the global tracer provider.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
