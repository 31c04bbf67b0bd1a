package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ninja0404/pump-bundler/pkg/config"
)

func newTestClient(retry config.RetryConfig) *Client {
	cfg := config.DefaultRPCConfig()
	cfg.Retry = retry
	return NewClient(cfg)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	c := newTestClient(config.RetryConfig{
		Enabled:        true,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
	})
	assert.Equal(t, 100*time.Millisecond, c.backoff(0))
	assert.Equal(t, 400*time.Millisecond, c.backoff(2))
	assert.Equal(t, time.Second, c.backoff(10))
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	c := newTestClient(config.RetryConfig{
		Enabled:        true,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		Jitter:         true,
	})
	for range 50 {
		d := c.backoff(1)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
}

func TestBackoffJitterWithTinyDelay(t *testing.T) {
	c := newTestClient(config.RetryConfig{
		Enabled:        true,
		InitialBackoff: time.Nanosecond,
		MaxBackoff:     time.Nanosecond,
		Jitter:         true,
	})
	assert.NotPanics(t, func() {
		assert.Equal(t, time.Nanosecond, c.backoff(0))
		assert.Equal(t, time.Nanosecond, c.backoff(3))
	})
}
