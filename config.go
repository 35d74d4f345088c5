package failover

import (
	"fmt"
	"strings"
	"time"

	"github.com/streamward/failover/types"
)

// Config is the configuration for a Leader.
//
// All duration fields accept standard Go duration values like 10*time.Second.
type Config struct {
	// Namespace is the key prefix under which all coordination keys live.
	// Multiple independent deployments can share one etcd cluster by using
	// distinct namespaces.
	Namespace string `yaml:"namespace"`

	// BarrierLeaseTTL is the lease TTL attached to rendezvous barrier keys.
	//
	// A barrier whose leader crashes mid-rendezvous is reaped by the store
	// after this TTL, which is what unblocks a successor from a stale
	// WaitingBarrier state. Must be at least one second; etcd lease TTLs
	// have second granularity.
	//
	// Default: 10 seconds
	BarrierLeaseTTL time.Duration `yaml:"barrierLeaseTtl"`

	// OpTimeout bounds individual coordination store operations (reads,
	// guarded writes, lease grants). It does not bound blocking waits such
	// as the dead-signal or barrier waits, which run until the Run context
	// is cancelled.
	//
	// Default: 5 seconds
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// DefaultConfig returns the production default configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:       "failover",
		BarrierLeaseTTL: 10 * time.Second,
		OpTimeout:       5 * time.Second,
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Namespace == "" {
		cfg.Namespace = defaults.Namespace
	}
	if cfg.BarrierLeaseTTL == 0 {
		cfg.BarrierLeaseTTL = defaults.BarrierLeaseTTL
	}
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = defaults.OpTimeout
	}
}

// Validate checks configuration constraints and returns an error for invalid
// values.
//
// Hard Validation Rules:
//   - Namespace must be non-empty and must not end with "/" (key paths
//     append their own separators)
//   - BarrierLeaseTTL >= 1s (etcd lease granularity)
//   - OpTimeout > 0
//
// Returns:
//   - error: Validation error with clear explanation, nil if valid
func (cfg *Config) Validate() error {
	if cfg.Namespace == "" {
		return fmt.Errorf("Namespace must not be empty")
	}
	if strings.HasSuffix(cfg.Namespace, "/") {
		return fmt.Errorf("Namespace %q must not end with a slash", cfg.Namespace)
	}

	if cfg.BarrierLeaseTTL < time.Second {
		return fmt.Errorf(
			"BarrierLeaseTTL (%v) must be >= 1s, lease TTLs have second granularity",
			cfg.BarrierLeaseTTL,
		)
	}

	if cfg.OpTimeout <= 0 {
		return fmt.Errorf("OpTimeout must be > 0, got %v", cfg.OpTimeout)
	}

	return nil
}

// ValidateWithWarnings checks configuration and logs warnings for
// non-recommended values.
//
// This is called after Validate() in NewLeader() to provide operator
// guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger types.Logger) {
	// A rendezvous that outlives its barrier lease resolves as missing and
	// the successor proceeds without the stragglers.
	if cfg.BarrierLeaseTTL < 5*time.Second {
		logger.Warn(
			"BarrierLeaseTTL is very short, slow instances may miss the rendezvous",
			"barrierLeaseTTL", cfg.BarrierLeaseTTL,
			"recommended", "10s or higher",
		)
	}

	if cfg.OpTimeout > cfg.BarrierLeaseTTL {
		logger.Warn(
			"OpTimeout exceeds BarrierLeaseTTL, a single slow operation can outlive the rendezvous window",
			"opTimeout", cfg.OpTimeout,
			"barrierLeaseTTL", cfg.BarrierLeaseTTL,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with fast timings for tests
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.BarrierLeaseTTL = 1 * time.Second
	cfg.OpTimeout = 1 * time.Second

	return cfg
}
