package strategy

import (
	"context"
	"math/rand/v2"

	"github.com/gagliardetto/solana-go"

	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// Trader executes grouped legs. *Executor satisfies it.
type Trader interface {
	Execute(ctx context.Context, mint solana.PublicKey, legs []Leg) (Fill, error)
	TokenBalance(ctx context.Context, mint solana.PublicKey, w wallet.Wallet) (uint64, error)
}

// Volume replays a generated plan against a mint.
type Volume struct {
	Trader Trader
	Buyers []wallet.Wallet
	Mint   solana.PublicKey
	Config VolumeConfig
	Plan   []Trade
	Rand   *rand.Rand
}

// Run executes the plan in order, honoring each delay. Consecutive
// zero-delay trades are grouped up to Config.Simultaneous. A failed group
// is counted and skipped.
func (v *Volume) Run(ctx context.Context, s *Session) error {
	rng := v.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	limit := min(max(v.Config.Simultaneous, 1), MaxGroup)
	s.Log().Info().Int("trades", len(v.Plan)).Str("pattern", string(v.Config.Pattern)).Msg("volume plan ready")

	for i := 0; i < len(v.Plan); {
		if !s.Sleep(ctx, v.Plan[i].Delay) {
			return nil
		}
		group := []Trade{v.Plan[i]}
		for j := i + 1; j < len(v.Plan) && len(group) < limit && v.Plan[j].Delay == 0; j++ {
			group = append(group, v.Plan[j])
		}
		i += len(group)

		legs := v.legs(ctx, s, group, rng)
		if len(legs) == 0 {
			continue
		}
		fill, err := v.Trader.Execute(ctx, v.Mint, legs)
		if err != nil {
			s.fail(err)
			continue
		}
		s.Update(func(st *Status) {
			st.TradesExecuted += fill.Executed
			st.SellsExecuted += fill.Sells
			st.Volume += fill.SolVolume
			st.TokensSold += fill.TokensSold
		})
		st := s.Status()
		s.Log().Info().Int("executed", st.TradesExecuted).Int("planned", len(v.Plan)).
			Float64("volume_sol", st.Volume).Msg("volume trades executed")
	}
	return nil
}

// legs resolves planned trades to wallets. Sells take 10-30% of what the
// wallet holds and are dropped when it holds nothing.
func (v *Volume) legs(ctx context.Context, s *Session, group []Trade, rng *rand.Rand) []Leg {
	legs := make([]Leg, 0, len(group))
	for _, t := range group {
		if t.WalletIndex < 0 || t.WalletIndex >= len(v.Buyers) {
			s.Log().Warn().Int("wallet", t.WalletIndex).Msg("planned wallet missing")
			continue
		}
		w := v.Buyers[t.WalletIndex]
		if t.Side == Buy {
			legs = append(legs, Leg{Wallet: w, Side: Buy, SolAmount: t.AmountSol})
			continue
		}
		bal, err := v.Trader.TokenBalance(ctx, v.Mint, w)
		if err != nil {
			s.fail(err)
			continue
		}
		pct := 10 + rng.Float64()*20
		amount := uint64(float64(bal) * pct / 100)
		if amount == 0 {
			continue
		}
		legs = append(legs, Leg{Wallet: w, Side: Sell, Tokens: amount})
	}
	return legs
}
