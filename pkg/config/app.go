package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ninja0404/pump-bundler/pkg/logging"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

// EnvPrefix namespaces environment overrides, e.g. PUMPB_RPC_URL.
const EnvPrefix = "PUMPB"

// AppConfig is the full runtime configuration of the bundler.
type AppConfig struct {
	Network string         `mapstructure:"network"`
	RPC     RPCSettings    `mapstructure:"rpc"`
	Jito    JitoSettings   `mapstructure:"jito"`
	Wallet  WalletConfig   `mapstructure:"wallet"`
	Trading TradingConfig  `mapstructure:"trading"`
	Log     logging.Config `mapstructure:"log"`
	Journal JournalConfig  `mapstructure:"journal"`
}

// RPCSettings is the file/env shape of RPCConfig.
type RPCSettings struct {
	URL         string        `mapstructure:"url"`
	WSURL       string        `mapstructure:"ws_url"`
	Commitment  string        `mapstructure:"commitment"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RPS         float64       `mapstructure:"rps"`
	Burst       int           `mapstructure:"burst"`
}

// JitoSettings configures the block engine relay.
type JitoSettings struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	UUID           string        `mapstructure:"uuid"`
	TipLamports    uint64        `mapstructure:"tip_lamports"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxRetries     int           `mapstructure:"max_retries"`
	// SimulateBundle simulates whole bundles through the RPC node's
	// simulateBundle method instead of one transaction at a time.
	SimulateBundle bool `mapstructure:"simulate_bundle"`
	// SendDirect routes single trade transactions through the block engine
	// instead of the RPC node.
	SendDirect bool `mapstructure:"send_direct"`
}

// WalletConfig locates the encrypted wallet collection.
type WalletConfig struct {
	Path     string `mapstructure:"path"`
	Password string `mapstructure:"password"`
}

// TradingConfig holds defaults shared by launch, sell and strategy commands.
type TradingConfig struct {
	SlippageBps  uint64 `mapstructure:"slippage_bps"`
	FeeRecipient string `mapstructure:"fee_recipient"`
}

// JournalConfig locates the sqlite bundle journal. Empty disables it.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

var defaults = map[string]interface{}{
	"network":               string(NetworkMainnet),
	"rpc.url":               "",
	"rpc.ws_url":            "",
	"rpc.commitment":        "confirmed",
	"rpc.timeout":           20 * time.Second,
	"rpc.max_attempts":      3,
	"rpc.rps":               8.0,
	"rpc.burst":             16,
	"jito.endpoints":        []string{"https://mainnet.block-engine.jito.wtf/api/v1"},
	"jito.uuid":             "",
	"jito.tip_lamports":     uint64(1_000_000),
	"jito.confirm_timeout":  60 * time.Second,
	"jito.poll_interval":    2 * time.Second,
	"jito.max_retries":      5,
	"jito.simulate_bundle":  false,
	"jito.send_direct":      false,
	"wallet.path":           "./wallets/wallets.json",
	"wallet.password":       "",
	"trading.slippage_bps":  uint64(500),
	"trading.fee_recipient": "",
	"log.level":             "info",
	"log.file":              "",
	"log.max_size_mb":       50,
	"log.max_backups":       5,
	"log.max_age_days":      14,
	"log.compress":          false,
	"log.json":              false,
	"journal.path":          "./data/journal.db",
}

// NewViper returns a viper instance primed with defaults and env binding.
func NewViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env, an optional config file, and environment overrides into
// an AppConfig. Validation failures are reported as types.ValidationError.
func Load(path string, v *viper.Viper) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if v == nil {
		v = NewViper()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Jito.Endpoints = splitList(cfg.Jito.Endpoints)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot work before anything dials out.
func (c *AppConfig) Validate() error {
	switch n := Network(c.Network); {
	case n == NetworkCustom:
		if c.RPC.URL == "" {
			return types.NewValidationError("rpc.url", "required for custom network")
		}
	case !n.Public():
		return types.NewValidationError("network", fmt.Sprintf("unknown network %q", c.Network))
	}
	if c.RPC.URL != "" {
		if err := validateURL(c.RPC.URL, "http"); err != nil {
			return types.NewValidationError("rpc.url", err.Error())
		}
	}
	if c.RPC.WSURL != "" {
		if err := validateURL(c.RPC.WSURL, "ws"); err != nil {
			return types.NewValidationError("rpc.ws_url", err.Error())
		}
	}
	for _, ep := range c.Jito.Endpoints {
		if err := validateURL(ep, "http"); err != nil {
			return types.NewValidationError("jito.endpoints", err.Error())
		}
	}
	if c.RPC.Timeout <= 0 {
		return types.NewValidationError("rpc.timeout", "must be positive")
	}
	if c.Jito.ConfirmTimeout <= 0 {
		return types.NewValidationError("jito.confirm_timeout", "must be positive")
	}
	if c.Jito.PollInterval <= 0 {
		return types.NewValidationError("jito.poll_interval", "must be positive")
	}
	if err := types.ValidateSlippage(c.Trading.SlippageBps); err != nil {
		return err
	}
	if c.Trading.FeeRecipient != "" {
		if _, err := solana.PublicKeyFromBase58(c.Trading.FeeRecipient); err != nil {
			return types.NewValidationError("trading.fee_recipient", "invalid address")
		}
	}
	return nil
}

// RPCConfig converts the loaded settings into the client configuration.
func (c *AppConfig) RPCConfig(log zerolog.Logger) RPCConfig {
	rc := DefaultRPCConfig()
	rc.Network = Network(c.Network)
	if c.RPC.URL != "" {
		rc.RPCURL = c.RPC.URL
	} else {
		rc.RPCURL = rc.Network.PublicRPCURL()
	}
	rc.WSURL = c.RPC.WSURL
	if c.RPC.Commitment != "" {
		rc.Commitment = c.RPC.Commitment
	}
	rc.Timeout = c.RPC.Timeout
	if c.RPC.MaxAttempts > 0 {
		rc.Retry.MaxAttempts = c.RPC.MaxAttempts
	}
	rc.RateLimit = RateLimitConfig{RPS: c.RPC.RPS, Burst: c.RPC.Burst}
	rc.Logger = log
	return rc
}

// FeeRecipient returns the configured override, or the zero key when unset.
func (c *AppConfig) FeeRecipient() solana.PublicKey {
	if c.Trading.FeeRecipient == "" {
		return solana.PublicKey{}
	}
	return solana.MustPublicKeyFromBase58(c.Trading.FeeRecipient)
}

func validateURL(raw, scheme string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, scheme) {
		return fmt.Errorf("expected %s(s) URL, got %q", scheme, parsed.Scheme)
	}
	return nil
}

// splitList flattens comma separated entries coming from env vars.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
