// Package launch creates a token and its first buys as one atomic bundle.
package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/ninja0404/pump-bundler/pkg/bundle"
	"github.com/ninja0404/pump-bundler/pkg/constants"
	"github.com/ninja0404/pump-bundler/pkg/funding"
	"github.com/ninja0404/pump-bundler/pkg/jito"
	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/quote"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/vanity"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// DefaultConfirmTimeout bounds the wait for the bundle to land.
const DefaultConfirmTimeout = 60 * time.Second

// Config describes one launch.
type Config struct {
	Name   string
	Symbol string
	URI    string

	BuyerCount   int
	BuyAmountSol float64
	TipSol       float64
	SlippageBps  uint64

	// Vanity constrains the mint address. Empty means a random mint.
	Vanity vanity.Pattern
}

// Validate checks cfg against the wallets it will use. It never touches the network.
func (cfg Config) Validate(c *wallet.Collection) error {
	meta := cfg.metadata()
	if err := meta.Validate(); err != nil {
		return err
	}
	if cfg.BuyerCount < 0 {
		return types.NewValidationError("buyerCount", "must not be negative")
	}
	if cfg.BuyerCount > 0 && cfg.BuyAmountSol <= 0 {
		return types.NewValidationError("buyAmount", "must be greater than 0")
	}
	if cfg.TipSol <= 0 {
		return types.NewValidationError("tip", "must be greater than 0")
	}
	// create + buys + tip
	if n := cfg.BuyerCount + 2; n > constants.MaxBundleTransactions {
		return fmt.Errorf("%w: %w", types.NewValidationError("buyerCount",
			fmt.Sprintf("%d buyers need %d transactions, limit is %d", cfg.BuyerCount, n, constants.MaxBundleTransactions)),
			types.ErrBundleTooLarge)
	}
	if err := types.ValidateSlippage(cfg.SlippageBps); err != nil {
		return err
	}
	if cfg.Vanity != (vanity.Pattern{}) {
		if err := cfg.Vanity.Validate(); err != nil {
			return err
		}
	}
	if c == nil {
		return types.NewValidationError("wallets", "collection is required")
	}
	if c.Dev.Key == nil {
		return types.NewValidationError("wallets", "dev wallet has no key")
	}
	if cfg.BuyerCount > len(c.Buyers) {
		return types.NewValidationError("buyerCount",
			fmt.Sprintf("%d requested, collection has %d buyers", cfg.BuyerCount, len(c.Buyers)))
	}
	return nil
}

func (cfg Config) metadata() pump.Metadata {
	return pump.Metadata{Name: cfg.Name, Symbol: cfg.Symbol, URI: cfg.URI}
}

// Result is the outcome of a launch. Success is true only once the bundle
// is confirmed; a pending bundle may still land later.
type Result struct {
	Success    bool
	Mint       solana.PublicKey
	BundleID   string
	Status     jito.Status
	Signatures []string
	Elapsed    time.Duration
	Err        error
}

// Relay is the part of the relay client a launch needs.
type Relay interface {
	Submit(ctx context.Context, b *bundle.Bundle) (string, error)
	AwaitConfirmation(ctx context.Context, bundleID string, timeout time.Duration) jito.Status
	RandomTipAccount(ctx context.Context) solana.PublicKey
}

// MintKeySource produces the key of the mint to create.
type MintKeySource interface {
	MintKey(ctx context.Context, p vanity.Pattern) (solana.PrivateKey, error)
}

// Launcher runs launches.
type Launcher struct {
	adapter        *pump.Adapter
	builder        *bundle.Builder
	relay          Relay
	mintKeys       MintKeySource
	confirmTimeout time.Duration
	log            zerolog.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithMintKeys overrides the vanity searcher used for mint keys.
func WithMintKeys(src MintKeySource) Option {
	return func(l *Launcher) { l.mintKeys = src }
}

// WithConfirmTimeout overrides DefaultConfirmTimeout.
func WithConfirmTimeout(d time.Duration) Option {
	return func(l *Launcher) {
		if d > 0 {
			l.confirmTimeout = d
		}
	}
}

// New returns a launcher.
func New(adapter *pump.Adapter, builder *bundle.Builder, relay Relay, log zerolog.Logger, opts ...Option) *Launcher {
	l := &Launcher{
		adapter:        adapter,
		builder:        builder,
		relay:          relay,
		mintKeys:       vanity.Searcher{Log: log},
		confirmTimeout: DefaultConfirmTimeout,
		log:            log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch creates the token and buys with cfg.BuyerCount buyers in one
// bundle. It never retries; any failure ends the launch.
func (l *Launcher) Launch(ctx context.Context, cfg Config, c *wallet.Collection) Result {
	start := time.Now()
	res := l.launch(ctx, cfg, c)
	res.Elapsed = time.Since(start)

	ev := l.log.Info()
	if !res.Success {
		ev = l.log.Error().Err(res.Err)
	}
	ev.Str("mint", res.Mint.String()).
		Str("bundle_id", res.BundleID).
		Str("state", string(res.Status.State)).
		Dur("elapsed", res.Elapsed).
		Msg("launch finished")
	return res
}

func (l *Launcher) launch(ctx context.Context, cfg Config, c *wallet.Collection) Result {
	bun, mint, err := l.prepare(ctx, cfg, c)
	if err != nil {
		return Result{Mint: mint, Err: err}
	}
	res := Result{Mint: mint, Signatures: signatureStrings(bun)}

	id, err := l.relay.Submit(ctx, bun)
	if err != nil {
		res.Err = fmt.Errorf("submit bundle: %w", err)
		return res
	}
	res.BundleID = id
	l.log.Info().Str("bundle_id", id).Str("mint", mint.String()).Msg("launch bundle submitted")

	st := l.relay.AwaitConfirmation(ctx, id, l.confirmTimeout)
	st.Signatures = res.Signatures
	res.Status = st
	switch st.State {
	case jito.StateConfirmed:
		res.Success = true
	case jito.StateFailed:
		res.Err = st.Err
		if res.Err == nil {
			res.Err = errors.New(st.Error)
		}
	default:
		res.Err = fmt.Errorf("bundle %s still %s after %s", id, st.State, l.confirmTimeout)
	}
	return res
}

// DryRun runs every launch step up to simulation and never submits.
func (l *Launcher) DryRun(ctx context.Context, cfg Config, c *wallet.Collection) (bool, error) {
	_, mint, err := l.prepare(ctx, cfg, c)
	if err != nil {
		l.log.Error().Err(err).Msg("dry run failed")
		return false, err
	}
	l.log.Info().Str("mint", mint.String()).Msg("dry run passed")
	return true, nil
}

// prepare validates, builds, tips and simulates the launch bundle.
func (l *Launcher) prepare(ctx context.Context, cfg Config, c *wallet.Collection) (*bundle.Bundle, solana.PublicKey, error) {
	if err := cfg.Validate(c); err != nil {
		return nil, solana.PublicKey{}, err
	}
	if l.builder == nil {
		return nil, solana.PublicKey{}, types.ErrNilRPC
	}
	if l.relay == nil {
		return nil, solana.PublicKey{}, types.ErrNilRelay
	}

	mintKey, err := l.mintKeys.MintKey(ctx, cfg.Vanity)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("mint key: %w", err)
	}
	dev := c.Dev
	createIx, mint, err := l.adapter.BuildCreate(dev.Address, cfg.metadata(), mintKey)
	if err != nil {
		return nil, mint, fmt.Errorf("build create: %w", err)
	}
	l.log.Info().Str("mint", mint.String()).Str("name", cfg.Name).Str("symbol", cfg.Symbol).
		Int("buyers", cfg.BuyerCount).Msg("building launch bundle")

	reqs := []bundle.Request{{
		Payer:        dev.Signer(),
		Instructions: []solana.Instruction{createIx},
		CoSigners:    []wallet.Signer{wallet.NewLocalFromPrivateKey(mintKey)},
	}}
	buys, err := l.buildBuys(cfg, mint, dev.Address, c.Buyers[:cfg.BuyerCount])
	if err != nil {
		return nil, mint, err
	}
	reqs = append(reqs, buys...)

	txs, err := l.builder.BuildMany(ctx, reqs)
	if err != nil {
		return nil, mint, fmt.Errorf("build transactions: %w", err)
	}
	tipAccount := l.relay.RandomTipAccount(ctx)
	bun, err := l.builder.AddTip(ctx, txs, dev.Signer(), funding.ToLamports(cfg.TipSol), tipAccount)
	if err != nil {
		return nil, mint, err
	}
	if err := l.builder.Simulate(ctx, bun); err != nil {
		return nil, mint, err
	}
	return bun, mint, nil
}

// buildBuys quotes each buy against the curve as left by the buys before
// it, starting from a freshly created curve.
func (l *Launcher) buildBuys(cfg Config, mint, creator solana.PublicKey, buyers []wallet.Wallet) ([]bundle.Request, error) {
	lamports := funding.ToLamports(cfg.BuyAmountSol)
	curve := pump.InitialBondingCurve(creator)
	reqs := make([]bundle.Request, 0, len(buyers))
	for _, b := range buyers {
		q := quote.Buy(curve, lamports, cfg.SlippageBps)
		if q.ExpectedOut == 0 {
			return nil, types.NewValidationError("buyAmount", "buy would receive no tokens")
		}
		ixs, err := l.adapter.BuildBuy(b.Address, pump.BuyParams{
			Mint:        mint,
			Creator:     creator,
			TokenAmount: q.ExpectedOut,
			MaxSolCost:  q.Limit,
			CreateATA:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("build buy for %s: %w", b.Label(), err)
		}
		l.log.Debug().Str("buyer", b.Label()).Uint64("tokens", q.ExpectedOut).
			Uint64("max_sol_cost", q.Limit).Msg("buy quoted")
		reqs = append(reqs, bundle.Request{Payer: b.Signer(), Instructions: ixs})
		curve = quote.AfterBuy(curve, q)
	}
	return reqs, nil
}

func signatureStrings(b *bundle.Bundle) []string {
	sigs := b.Signatures()
	out := make([]string, len(sigs))
	for i, s := range sigs {
		out[i] = s.String()
	}
	return out
}
