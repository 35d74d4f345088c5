package failover

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamward/failover/internal/logging"
	"github.com/streamward/failover/internal/metrics"
	"github.com/streamward/failover/types"
)

// Option configures a Leader with optional dependencies.
type Option func(*leaderOptions)

// leaderOptions holds optional Leader configuration.
type leaderOptions struct {
	logger  types.Logger
	hooks   *types.Hooks
	metrics types.MetricsCollector
}

func defaultLeaderOptions() *leaderOptions {
	return &leaderOptions{
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation (slog-backed loggers via
//     failover.NewSlogLogger)
//
// Returns:
//   - Option: Functional option for NewLeader
//
// Example:
//
//	logger := failover.NewSlogLogger(slog.Default())
//	leader, err := failover.NewLeader(ctx, &cfg, store, lead, group, sel,
//	    failover.WithLogger(logger))
func WithLogger(logger types.Logger) Option {
	return func(o *leaderOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHooks sets lifecycle event hooks.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for NewLeader
//
// Example:
//
//	hooks := &failover.Hooks{
//	    OnProducerSelected: func(ctx context.Context, p failover.ProducerID, execID []byte) error {
//	        return reconfigurePipeline(ctx, p, execID)
//	    },
//	}
//	leader, err := failover.NewLeader(ctx, &cfg, store, lead, group, sel,
//	    failover.WithHooks(hooks))
func WithHooks(hooks *types.Hooks) Option {
	return func(o *leaderOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for NewLeader
func WithMetrics(collector types.MetricsCollector) Option {
	return func(o *leaderOptions) {
		if collector != nil {
			o.metrics = collector
		}
	}
}

// WithPrometheusMetrics enables the built-in Prometheus metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer (prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace ("failover" if empty)
//
// Returns:
//   - Option: Functional option for NewLeader
func WithPrometheusMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(o *leaderOptions) {
		o.metrics = metrics.NewPrometheus(reg, namespace)
	}
}
