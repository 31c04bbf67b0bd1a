package config

import (
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Network names a Solana cluster.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
	// NetworkCustom has no public endpoint; rpc.url must be set.
	NetworkCustom Network = "custom"
)

var publicEndpoints = map[Network]string{
	NetworkMainnet: "https://api.mainnet-beta.solana.com",
	NetworkDevnet:  "https://api.devnet.solana.com",
}

// Public reports whether the cluster has a public RPC endpoint.
func (n Network) Public() bool {
	_, ok := publicEndpoints[n]
	return ok
}

// PublicRPCURL is the cluster's public endpoint, empty for custom networks.
func (n Network) PublicRPCURL() string {
	return publicEndpoints[n]
}

// RetryConfig bounds retries of failed RPC calls.
type RetryConfig struct {
	Enabled        bool
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         bool
}

// RateLimitConfig caps outbound RPC requests per second.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// RPCConfig is what pkg/rpc needs to reach a node over HTTP and websocket.
type RPCConfig struct {
	Network    Network
	RPCURL     string
	WSURL      string
	Commitment string
	Timeout    time.Duration
	Retry      RetryConfig
	RateLimit  RateLimitConfig
	Logger     zerolog.Logger
}

// DefaultRPCConfig targets mainnet's public endpoint at confirmed commitment.
func DefaultRPCConfig() RPCConfig {
	cfg := RPCConfig{
		Network:    NetworkMainnet,
		Commitment: "confirmed",
		Timeout:    20 * time.Second,
		RateLimit:  RateLimitConfig{RPS: 8, Burst: 16},
		Logger:     zerolog.New(io.Discard),
	}
	cfg.RPCURL = cfg.Network.PublicRPCURL()
	cfg.Retry = RetryConfig{
		Enabled:        true,
		MaxAttempts:    3,
		InitialBackoff: 150 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Jitter:         true,
	}
	return cfg
}

// ResolveRPCURL prefers the explicit URL over the network's public one.
func (c RPCConfig) ResolveRPCURL() string {
	if c.RPCURL == "" {
		return c.Network.PublicRPCURL()
	}
	return c.RPCURL
}

// ResolveWSURL prefers the explicit websocket URL, else derives it from ResolveRPCURL.
func (c RPCConfig) ResolveWSURL() string {
	if c.WSURL == "" {
		return DeriveWSURL(c.ResolveRPCURL())
	}
	return c.WSURL
}

// DeriveWSURL swaps an http(s) scheme for ws(s). Other inputs are returned as is.
func DeriveWSURL(httpURL string) string {
	u, err := url.Parse(httpURL)
	if err != nil {
		return httpURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return httpURL
	}
	return u.String()
}
