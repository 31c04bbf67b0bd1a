// Package funding moves SOL from the main wallet to the dev and buyer
// wallets ahead of a launch.
package funding

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ninja0404/pump-bundler/pkg/constants"
	"github.com/ninja0404/pump-bundler/pkg/txbuilder"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// Plan is the lamport breakdown of one distribution.
type Plan struct {
	Dev           uint64
	PerBuyer      uint64
	BuyerCount    int
	EstimatedFees uint64
	TotalRequired uint64
}

// NewPlan computes the transfers needed to give the dev devSol and every
// buyer buyerSol, both in SOL.
func NewPlan(devSol, buyerSol float64, buyerCount int) (Plan, error) {
	if devSol < 0 || buyerSol < 0 {
		return Plan{}, types.NewValidationError("amount", "cannot be negative")
	}
	if buyerCount < 0 {
		return Plan{}, types.NewValidationError("buyerCount", "cannot be negative")
	}
	p := Plan{
		Dev:        ToLamports(devSol),
		PerBuyer:   ToLamports(buyerSol),
		BuyerCount: buyerCount,
	}
	transfers := uint64(buyerCount)
	if p.Dev > 0 {
		transfers++
	}
	p.EstimatedFees = transfers * constants.TransferFeeLamports
	p.TotalRequired = p.Dev + p.PerBuyer*uint64(buyerCount) + p.EstimatedFees
	return p, nil
}

// ToLamports converts SOL to lamports, rounding to the nearest lamport.
func ToLamports(sol float64) uint64 {
	return uint64(sol*float64(constants.LamportsPerSol) + 0.5)
}

// ToSOL converts lamports to SOL.
func ToSOL(lamports uint64) float64 {
	return float64(lamports) / float64(constants.LamportsPerSol)
}

// BalanceReader reads native balances.
type BalanceReader interface {
	GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error)
}

// Distributor executes funding plans.
type Distributor struct {
	balances BalanceReader
	tx       *txbuilder.Builder
	log      zerolog.Logger
}

// NewDistributor wires a distributor.
func NewDistributor(balances BalanceReader, tx *txbuilder.Builder, log zerolog.Logger) *Distributor {
	return &Distributor{balances: balances, tx: tx, log: log}
}

// CheckBalance fails with types.ErrInsufficientBalance when the main wallet
// cannot cover the plan.
func (d *Distributor) CheckBalance(ctx context.Context, main solana.PublicKey, p Plan) (uint64, error) {
	have, err := d.balances.GetBalance(ctx, main)
	if err != nil {
		return 0, fmt.Errorf("main balance: %w", err)
	}
	if have < p.TotalRequired {
		return have, fmt.Errorf("%w: have %.6f SOL, need %.6f SOL",
			types.ErrInsufficientBalance, ToSOL(have), ToSOL(p.TotalRequired))
	}
	return have, nil
}

// Transfer is one completed funding transfer.
type Transfer struct {
	To        string
	Lamports  uint64
	Signature solana.Signature
}

// Distribute sends main->dev and then main->buyer transfers one by one,
// waiting for each to confirm. It stops at the first failure and returns
// the transfers that completed.
func (d *Distributor) Distribute(ctx context.Context, c *wallet.Collection, p Plan) ([]Transfer, error) {
	if p.BuyerCount > len(c.Buyers) {
		return nil, types.NewValidationError("buyerCount", fmt.Sprintf("plan funds %d buyers, collection has %d", p.BuyerCount, len(c.Buyers)))
	}
	if _, err := d.CheckBalance(ctx, c.Main.Address, p); err != nil {
		return nil, err
	}

	type target struct {
		w        wallet.Wallet
		lamports uint64
	}
	var targets []target
	if p.Dev > 0 {
		targets = append(targets, target{c.Dev, p.Dev})
	}
	if p.PerBuyer > 0 {
		for _, b := range c.Buyers[:p.BuyerCount] {
			targets = append(targets, target{b, p.PerBuyer})
		}
	}

	payer := c.Main.Signer()
	done := make([]Transfer, 0, len(targets))
	for _, t := range targets {
		ix := system.NewTransferInstruction(t.lamports, c.Main.Address, t.w.Address).Build()
		sig, err := d.tx.BuildSignSendAndConfirm(ctx, payer, nil, txbuilder.ConfirmationConfirmed, ix)
		if err != nil {
			return done, fmt.Errorf("fund %s: %w", t.w.Label(), err)
		}
		d.log.Info().Str("wallet", t.w.Label()).Str("to", t.w.Address.String()).
			Float64("sol", ToSOL(t.lamports)).Str("signature", sig.String()).Msg("funded")
		done = append(done, Transfer{To: t.w.Address.String(), Lamports: t.lamports, Signature: sig})
	}
	return done, nil
}

// Balance is one wallet's native balance.
type Balance struct {
	Label    string
	Address  solana.PublicKey
	Lamports uint64
	Err      error
}

// Balances fetches every wallet's balance in parallel. A failed lookup is
// reported on its entry and does not fail the others.
func (d *Distributor) Balances(ctx context.Context, c *wallet.Collection) []Balance {
	all := c.All()
	out := make([]Balance, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, w := range all {
		g.Go(func() error {
			lamports, err := d.balances.GetBalance(gctx, w.Address)
			out[i] = Balance{Label: w.Label(), Address: w.Address, Lamports: lamports, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
