// Package bundle turns (signer, instructions) pairs into signed, relay-ready
// transaction bundles with a trailing tip transfer.
package bundle

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

// Bundle is an ordered set of signed transactions. The tip transaction is
// always last.
type Bundle struct {
	Transactions []*solana.Transaction
	TipIndex     int
	simulated    bool
}

// Len returns the number of transactions including the tip.
func (b *Bundle) Len() int {
	return len(b.Transactions)
}

// Simulated reports whether the bundle passed simulation.
func (b *Bundle) Simulated() bool {
	return b.simulated
}

// Signatures returns the first signature of every transaction in order.
func (b *Bundle) Signatures() []solana.Signature {
	out := make([]solana.Signature, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		if len(tx.Signatures) > 0 {
			out = append(out, tx.Signatures[0])
		}
	}
	return out
}

// Encode serializes every transaction to base64 for the relay.
func (b *Bundle) Encode() ([]string, error) {
	out := make([]string, 0, len(b.Transactions))
	for i, tx := range b.Transactions {
		enc, err := tx.ToBase64()
		if err != nil {
			return nil, fmt.Errorf("encode transaction %d: %w", i, err)
		}
		out = append(out, enc)
	}
	return out, nil
}

// Request is one transaction to build: Payer pays fees and signs, CoSigners
// add their signatures (e.g. a fresh mint key).
type Request struct {
	Payer        wallet.Signer
	Instructions []solana.Instruction
	CoSigners    []wallet.Signer
}

// Chain is what the builder needs from the RPC node.
type Chain interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// Simulator dry-runs a transaction batch. A failure is reported as an error
// matching types.ErrSimulationFailed.
type Simulator interface {
	Simulate(ctx context.Context, txs []*solana.Transaction) error
}

// Builder signs and packages bundles.
type Builder struct {
	chain     Chain
	simulator Simulator
	log       zerolog.Logger
}

// NewBuilder returns a builder using sim for pre-submission checks.
func NewBuilder(chain Chain, sim Simulator, log zerolog.Logger) *Builder {
	return &Builder{chain: chain, simulator: sim, log: log}
}

// Build compiles and signs one transaction with a fresh blockhash.
func (b *Builder) Build(ctx context.Context, payer wallet.Signer, ixs []solana.Instruction, additional ...wallet.Signer) (*solana.Transaction, error) {
	txs, err := b.BuildMany(ctx, []Request{{Payer: payer, Instructions: ixs, CoSigners: additional}})
	if err != nil {
		return nil, err
	}
	return txs[0], nil
}

// BuildMany compiles and signs independent requests in parallel against a
// single blockhash. Output order matches input order; every signer only
// signs its own transaction.
func (b *Builder) BuildMany(ctx context.Context, reqs []Request) ([]*solana.Transaction, error) {
	if b.chain == nil {
		return nil, types.ErrNilRPC
	}
	if len(reqs) == 0 {
		return nil, types.ErrBundleEmpty
	}
	for i, r := range reqs {
		if r.Payer == nil {
			return nil, fmt.Errorf("request %d: %w", i, types.ErrNilSigner)
		}
		if len(r.Instructions) == 0 {
			return nil, fmt.Errorf("request %d: %w", i, types.ErrNoInstructions)
		}
	}

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	out := make([]*solana.Transaction, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range reqs {
		g.Go(func() error {
			tx, err := compileAndSign(gctx, blockhash, r)
			if err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
			out[i] = tx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddTip appends a transfer of lamports from tipPayer to tipAccount and
// returns the bundle. The size limit is checked before anything else; the
// tip reuses the blockhash of the first transaction.
func (b *Builder) AddTip(ctx context.Context, txs []*solana.Transaction, tipPayer wallet.Signer, lamports uint64, tipAccount solana.PublicKey) (*Bundle, error) {
	if len(txs)+1 > constants.MaxBundleTransactions {
		return nil, fmt.Errorf("%w: %d transactions plus tip is %d, limit is %d",
			types.ErrBundleTooLarge, len(txs), len(txs)+1, constants.MaxBundleTransactions)
	}
	if len(txs) == 0 {
		return nil, types.ErrBundleEmpty
	}
	if tipPayer == nil {
		return nil, types.ErrNilSigner
	}
	if lamports == 0 {
		return nil, types.NewValidationError("tipLamports", "must be greater than 0")
	}
	if err := types.ValidatePublicKey("tipAccount", tipAccount); err != nil {
		return nil, err
	}

	tip := system.NewTransferInstruction(lamports, tipPayer.PublicKey(), tipAccount).Build()
	tipTx, err := compileAndSign(ctx, txs[0].Message.RecentBlockhash, Request{
		Payer:        tipPayer,
		Instructions: []solana.Instruction{tip},
	})
	if err != nil {
		return nil, fmt.Errorf("tip transaction: %w", err)
	}

	all := make([]*solana.Transaction, 0, len(txs)+1)
	all = append(all, txs...)
	all = append(all, tipTx)
	b.log.Debug().Int("transactions", len(all)).Uint64("tip_lamports", lamports).
		Str("tip_account", tipAccount.String()).Msg("bundle assembled")
	return &Bundle{Transactions: all, TipIndex: len(all) - 1}, nil
}

// Simulate dry-runs the bundle and marks it simulated on success.
func (b *Builder) Simulate(ctx context.Context, bundle *Bundle) error {
	if bundle == nil || len(bundle.Transactions) == 0 {
		return types.ErrBundleEmpty
	}
	if b.simulator == nil {
		return types.ErrNilRPC
	}
	if err := b.simulator.Simulate(ctx, bundle.Transactions); err != nil {
		return err
	}
	bundle.simulated = true
	b.log.Debug().Int("transactions", bundle.Len()).Msg("bundle simulation passed")
	return nil
}

func compileAndSign(ctx context.Context, blockhash solana.Hash, r Request) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(r.Instructions, blockhash, solana.TransactionPayer(r.Payer.PublicKey()))
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	signers := append([]wallet.Signer{r.Payer}, r.CoSigners...)
	if err := txbuilder.SignTransaction(ctx, tx, signers...); err != nil {
		return nil, err
	}
	return tx, nil
}
