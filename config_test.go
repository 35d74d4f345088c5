package failover

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	failovertest "github.com/streamward/failover/testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "failover", cfg.Namespace)
	require.Equal(t, 10*time.Second, cfg.BarrierLeaseTTL)
	require.Equal(t, 5*time.Second, cfg.OpTimeout)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaultsFillsZeroFields(t *testing.T) {
	cfg := Config{Namespace: "custom"}
	SetDefaults(&cfg)

	require.Equal(t, "custom", cfg.Namespace)
	require.Equal(t, 10*time.Second, cfg.BarrierLeaseTTL)
	require.Equal(t, 5*time.Second, cfg.OpTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty namespace", func(c *Config) { c.Namespace = "" }},
		{"trailing slash namespace", func(c *Config) { c.Namespace = "ns/" }},
		{"sub-second barrier TTL", func(c *Config) { c.BarrierLeaseTTL = 500 * time.Millisecond }},
		{"zero op timeout", func(c *Config) { c.OpTimeout = 0 }},
		{"negative op timeout", func(c *Config) { c.OpTimeout = -time.Second }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestTestConfigIsValid(t *testing.T) {
	cfg := TestConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateWithWarningsDoesNotPanic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BarrierLeaseTTL = time.Second
	cfg.OpTimeout = 2 * time.Second
	cfg.ValidateWithWarnings(failovertest.NewTestLogger(t))
}
