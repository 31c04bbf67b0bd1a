package strategy

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
	"github.com/ninja0404/pump-bundler/pkg/txbuilder"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// MaxGroup is the most trades one bundle carries, leaving room for the tip.
const MaxGroup = constants.MaxBundleTransactions - 1

// Side is the direction of a trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Leg is one wallet's trade. Buys spend SolAmount; sells spend Tokens.
type Leg struct {
	Wallet    wallet.Wallet
	Side      Side
	SolAmount float64
	Tokens    uint64
}

// Fill summarizes executed legs.
type Fill struct {
	BundleID   string
	Signatures []string
	Executed   int
	Sells      int
	SolVolume  float64
	TokensSold uint64
}

func (f *Fill) add(o Fill) {
	f.Signatures = append(f.Signatures, o.Signatures...)
	f.Executed += o.Executed
	f.Sells += o.Sells
	f.SolVolume += o.SolVolume
	f.TokensSold += o.TokensSold
	if o.BundleID != "" {
		f.BundleID = o.BundleID
	}
}

// Chain is what the executor reads from the node.
type Chain interface {
	GetAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
	GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
}

// Relay submits bundles. *jito.Client satisfies it.
type Relay interface {
	Submit(ctx context.Context, b *bundle.Bundle) (string, error)
	AwaitConfirmation(ctx context.Context, bundleID string, timeout time.Duration) jito.Status
	RandomTipAccount(ctx context.Context) solana.PublicKey
}

// Direct sends single transactions. *txbuilder.Builder satisfies it.
type Direct interface {
	BuildSignSendAndConfirm(ctx context.Context, feePayer wallet.Signer, cosigners []wallet.Signer, level txbuilder.ConfirmationLevel, instructions ...solana.Instruction) (solana.Signature, error)
}

// Executor turns legs into transactions. Groups of more than one leg go
// out as a tipped bundle when a relay is set; everything else is sent
// directly, one transaction per leg.
type Executor struct {
	Chain          Chain
	Adapter        *pump.Adapter
	Bundles        *bundle.Builder
	Relay          Relay
	Direct         Direct
	TipSol         float64
	SlippageBps    uint64
	ConfirmTimeout time.Duration
	Log            zerolog.Logger
}

// Execute runs legs against the current curve of mint. Quotes are chained
// so later legs see the curve as moved by earlier ones.
func (x *Executor) Execute(ctx context.Context, mint solana.PublicKey, legs []Leg) (Fill, error) {
	if len(legs) == 0 {
		return Fill{}, nil
	}
	if len(legs) > MaxGroup {
		return Fill{}, fmt.Errorf("%w: %d trades, limit is %d", types.ErrBundleTooLarge, len(legs), MaxGroup)
	}
	curve, err := quote.FetchBondingCurve(ctx, x.Chain, mint)
	if err != nil {
		return Fill{}, err
	}
	if curve.Complete {
		return Fill{}, fmt.Errorf("mint %s: %w", mint, types.ErrCurveComplete)
	}

	reqs := make([]bundle.Request, 0, len(legs))
	per := make([]Fill, 0, len(legs))
	for _, leg := range legs {
		req, q, err := x.order(mint, curve, leg)
		if err != nil {
			return Fill{}, fmt.Errorf("%s %s: %w", leg.Side, leg.Wallet.Label(), err)
		}
		reqs = append(reqs, req)
		f := Fill{Executed: 1}
		if leg.Side == Buy {
			f.SolVolume = funding.ToSOL(q.In)
			curve = quote.AfterBuy(curve, q)
		} else {
			f.Sells = 1
			f.TokensSold = q.In
			f.SolVolume = funding.ToSOL(q.ExpectedOut)
			curve = quote.AfterSell(curve, q)
		}
		per = append(per, f)
	}

	if len(reqs) > 1 && x.Relay != nil {
		id, sigs, err := x.sendBundle(ctx, reqs)
		if err != nil {
			return Fill{BundleID: id}, err
		}
		fill := sumFills(per)
		fill.BundleID = id
		fill.Signatures = sigs
		return fill, nil
	}

	// Direct sends confirm one by one; a failure leaves the earlier legs landed.
	sigs, err := x.sendDirect(ctx, reqs)
	fill := sumFills(per[:len(sigs)])
	fill.Signatures = sigs
	return fill, err
}

func sumFills(fills []Fill) Fill {
	var out Fill
	for _, f := range fills {
		out.add(f)
	}
	return out
}

func (x *Executor) order(mint solana.PublicKey, curve pump.BondingCurve, leg Leg) (bundle.Request, quote.QuoteResult, error) {
	owner := leg.Wallet.Address
	switch leg.Side {
	case Buy:
		q := quote.Buy(curve, funding.ToLamports(leg.SolAmount), x.SlippageBps)
		if q.ExpectedOut == 0 {
			return bundle.Request{}, q, types.ErrZeroAmount
		}
		ixs, err := x.Adapter.BuildBuy(owner, pump.BuyParams{
			Mint:        mint,
			Creator:     curve.Creator,
			TokenAmount: q.ExpectedOut,
			MaxSolCost:  q.Limit,
			CreateATA:   true,
		})
		if err != nil {
			return bundle.Request{}, q, err
		}
		return bundle.Request{Payer: leg.Wallet.Signer(), Instructions: ixs}, q, nil
	case Sell:
		q := quote.Sell(curve, leg.Tokens, x.SlippageBps)
		ix, err := x.Adapter.BuildSell(owner, pump.SellParams{
			Mint:         mint,
			Creator:      curve.Creator,
			TokenAmount:  leg.Tokens,
			MinSolOutput: q.Limit,
		})
		if err != nil {
			return bundle.Request{}, q, err
		}
		return bundle.Request{Payer: leg.Wallet.Signer(), Instructions: []solana.Instruction{ix}}, q, nil
	default:
		return bundle.Request{}, quote.QuoteResult{}, fmt.Errorf("unknown side %q", leg.Side)
	}
}

func (x *Executor) sendBundle(ctx context.Context, reqs []bundle.Request) (string, []string, error) {
	if x.Bundles == nil {
		return "", nil, types.ErrNilRPC
	}
	txs, err := x.Bundles.BuildMany(ctx, reqs)
	if err != nil {
		return "", nil, err
	}
	bun, err := x.Bundles.AddTip(ctx, txs, reqs[0].Payer, funding.ToLamports(x.TipSol), x.Relay.RandomTipAccount(ctx))
	if err != nil {
		return "", nil, err
	}
	if err := x.Bundles.Simulate(ctx, bun); err != nil {
		return "", nil, err
	}
	id, err := x.Relay.Submit(ctx, bun)
	if err != nil {
		return "", nil, err
	}
	timeout := x.ConfirmTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	st := x.Relay.AwaitConfirmation(ctx, id, timeout)
	switch st.State {
	case jito.StateConfirmed:
	case jito.StateFailed:
		if st.Err != nil {
			return id, nil, st.Err
		}
		return id, nil, errors.New(st.Error)
	default:
		return id, nil, fmt.Errorf("bundle %s still %s", id, st.State)
	}
	sigs := make([]string, 0, bun.Len())
	for _, s := range bun.Signatures() {
		sigs = append(sigs, s.String())
	}
	x.Log.Info().Str("bundle_id", id).Int("trades", len(reqs)).Msg("trade bundle landed")
	return id, sigs, nil
}

func (x *Executor) sendDirect(ctx context.Context, reqs []bundle.Request) ([]string, error) {
	if x.Direct == nil {
		return nil, types.ErrNilRPC
	}
	sigs := make([]string, 0, len(reqs))
	for _, r := range reqs {
		sig, err := x.Direct.BuildSignSendAndConfirm(ctx, r.Payer, nil, txbuilder.ConfirmationConfirmed, r.Instructions...)
		if err != nil {
			return sigs, err
		}
		sigs = append(sigs, sig.String())
		x.Log.Info().Str("signature", sig.String()).Str("payer", r.Payer.PublicKey().String()).Msg("trade confirmed")
	}
	return sigs, nil
}

// TokenBalance returns the wallet's raw balance of mint; a missing token
// account counts as zero.
func (x *Executor) TokenBalance(ctx context.Context, mint solana.PublicKey, w wallet.Wallet) (uint64, error) {
	ata, err := pump.AssociatedTokenAddress(w.Address, mint)
	if err != nil {
		return 0, err
	}
	bal, err := x.Chain.GetTokenBalance(ctx, ata)
	if errors.Is(err, types.ErrTokenAccountNotFound) {
		return 0, nil
	}
	return bal, err
}

// SellPercent sells pct percent of every wallet's holdings, MaxGroup
// wallets per bundle. Wallets without tokens are skipped. A failed group
// does not stop the remaining ones; all failures are joined.
func (x *Executor) SellPercent(ctx context.Context, mint solana.PublicKey, wallets []wallet.Wallet, pct float64) (Fill, error) {
	if err := types.ValidatePercentage("percent", pct); err != nil {
		return Fill{}, err
	}
	bps := uint64(pct*100 + 0.5)

	var legs []Leg
	var errs []error
	for _, w := range wallets {
		bal, err := x.TokenBalance(ctx, mint, w)
		if err != nil {
			errs = append(errs, fmt.Errorf("balance %s: %w", w.Label(), err))
			continue
		}
		amount := bal/10_000*bps + bal%10_000*bps/10_000
		if amount == 0 {
			x.Log.Debug().Str("wallet", w.Label()).Msg("nothing to sell")
			continue
		}
		legs = append(legs, Leg{Wallet: w, Side: Sell, Tokens: amount})
	}

	var total Fill
	for start := 0; start < len(legs); start += MaxGroup {
		end := min(start+MaxGroup, len(legs))
		f, err := x.Execute(ctx, mint, legs[start:end])
		total.add(f)
		if err != nil {
			errs = append(errs, err)
		}
	}
	x.Log.Info().Str("mint", mint.String()).Float64("percent", pct).Int("sells", total.Sells).
		Uint64("tokens", total.TokensSold).Msg("sell finished")
	return total, errors.Join(errs...)
}
