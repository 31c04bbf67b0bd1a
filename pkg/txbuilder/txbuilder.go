// Package txbuilder compiles, signs and sends single transactions.
// Bundles reuse Build and SignTransaction; funding transfers and direct
// sells go through Send and SendAndConfirm.
package txbuilder

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// ConfirmationLevel represents transaction confirmation depth.
type ConfirmationLevel string

const (
	ConfirmationProcessed ConfirmationLevel = "processed"
	ConfirmationConfirmed ConfirmationLevel = "confirmed"
	ConfirmationFinalized ConfirmationLevel = "finalized"
)

// Chain is the subset of the RPC client the builder needs.
type Chain interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solanarpc.SignatureStatusesResult, error)
}

// Sender is an alternative submission path for single transactions,
// e.g. the block engine.
type Sender interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Builder ties together RPC, signing and submission.
type Builder struct {
	chain         Chain
	commitment    solanarpc.CommitmentType
	skipPreflight bool
	sender        Sender
	pollInterval  time.Duration
	log           zerolog.Logger
}

// NewBuilder constructs a builder with the provided chain and commitment.
func NewBuilder(chain Chain, commitment solanarpc.CommitmentType) *Builder {
	if commitment == "" {
		commitment = solanarpc.CommitmentConfirmed
	}
	return &Builder{
		chain:        chain,
		commitment:   commitment,
		pollInterval: 500 * time.Millisecond,
		log:          zerolog.Nop(),
	}
}

// WithSkipPreflight configures whether to skip preflight.
func (b *Builder) WithSkipPreflight(skip bool) *Builder {
	b.skipPreflight = skip
	return b
}

// WithSender routes Send through s instead of the RPC node. Pass nil to reset.
func (b *Builder) WithSender(s Sender) *Builder {
	b.sender = s
	return b
}

// WithLogger attaches a logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithPollInterval sets the confirmation polling interval.
func (b *Builder) WithPollInterval(d time.Duration) *Builder {
	if d > 0 {
		b.pollInterval = d
	}
	return b
}

// Build compiles an unsigned transaction with a fresh blockhash.
func (b *Builder) Build(ctx context.Context, feePayer solana.PublicKey, instructions ...solana.Instruction) (*solana.Transaction, error) {
	if b.chain == nil {
		return nil, types.ErrNilRPC
	}
	if len(instructions) == 0 {
		return nil, types.ErrNoInstructions
	}

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// SignTransaction signs using the provided signers in account-key order.
// Every required signer must be present.
func SignTransaction(ctx context.Context, tx *solana.Transaction, signers ...wallet.Signer) error {
	if tx == nil {
		return fmt.Errorf("transaction is nil")
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 {
		return nil
	}
	if len(tx.Message.AccountKeys) < required {
		return fmt.Errorf("not enough account keys for required signatures")
	}

	byKey := make(map[solana.PublicKey]wallet.Signer, len(signers))
	for _, s := range signers {
		if s == nil {
			return types.ErrNilSigner
		}
		byKey[s.PublicKey()] = s
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	tx.Signatures = make([]solana.Signature, required)
	for i := 0; i < required; i++ {
		pk := tx.Message.AccountKeys[i]
		signer, ok := byKey[pk]
		if !ok {
			return fmt.Errorf("missing signer for %s", pk)
		}
		sig, err := signer.SignMessage(ctx, message)
		if err != nil {
			return fmt.Errorf("sign message for %s: %w", pk, err)
		}
		tx.Signatures[i] = sig
	}
	return nil
}

// BuildAndSign compiles a transaction paid by feePayer and signs it with
// feePayer plus any co-signers.
func (b *Builder) BuildAndSign(ctx context.Context, feePayer wallet.Signer, cosigners []wallet.Signer, instructions ...solana.Instruction) (*solana.Transaction, error) {
	if feePayer == nil {
		return nil, types.ErrNilSigner
	}
	tx, err := b.Build(ctx, feePayer.PublicKey(), instructions...)
	if err != nil {
		return nil, err
	}
	all := append([]wallet.Signer{feePayer}, cosigners...)
	if err := SignTransaction(ctx, tx, all...); err != nil {
		return nil, err
	}
	return tx, nil
}

// Send sends a signed transaction through the configured sender, or the
// RPC node when none is set.
func (b *Builder) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if b.sender != nil {
		sig, err := b.sender.SendTransaction(ctx, tx)
		if err != nil {
			return solana.Signature{}, fmt.Errorf("send via block engine: %w", err)
		}
		return sig, nil
	}
	if b.chain == nil {
		return solana.Signature{}, types.ErrNilRPC
	}
	sig, err := b.chain.SendTransaction(ctx, tx, solanarpc.TransactionOpts{
		SkipPreflight:       b.skipPreflight,
		PreflightCommitment: b.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// SendAndConfirm sends a signed transaction and waits for confirmation.
// Confirmation always goes through the RPC node.
func (b *Builder) SendAndConfirm(ctx context.Context, tx *solana.Transaction, level ConfirmationLevel) (solana.Signature, error) {
	sig, err := b.Send(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if err = b.WaitForConfirmation(ctx, sig, level); err != nil {
		return sig, fmt.Errorf("confirm %s: %w", sig, err)
	}
	b.log.Debug().Str("signature", sig.String()).Str("level", string(level)).Msg("transaction confirmed")
	return sig, nil
}

// BuildSignSendAndConfirm builds, signs, sends, and waits for confirmation.
func (b *Builder) BuildSignSendAndConfirm(ctx context.Context, feePayer wallet.Signer, cosigners []wallet.Signer, level ConfirmationLevel, instructions ...solana.Instruction) (solana.Signature, error) {
	tx, err := b.BuildAndSign(ctx, feePayer, cosigners, instructions...)
	if err != nil {
		return solana.Signature{}, err
	}
	return b.SendAndConfirm(ctx, tx, level)
}

// WaitForConfirmation polls transaction status until the level is reached,
// the transaction fails, or ctx ends.
func (b *Builder) WaitForConfirmation(ctx context.Context, sig solana.Signature, level ConfirmationLevel) error {
	if b.chain == nil {
		return types.ErrNilRPC
	}

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status, err := b.chain.GetSignatureStatus(ctx, sig)
			if err != nil {
				b.log.Debug().Err(err).Str("signature", sig.String()).Msg("status poll failed")
				continue
			}
			if status == nil {
				continue
			}
			if status.Err != nil {
				return fmt.Errorf("transaction failed: %v", status.Err)
			}
			if reached(status.ConfirmationStatus, level) {
				return nil
			}
		}
	}
}

func reached(got solanarpc.ConfirmationStatusType, level ConfirmationLevel) bool {
	switch level {
	case ConfirmationConfirmed:
		return got == solanarpc.ConfirmationStatusConfirmed || got == solanarpc.ConfirmationStatusFinalized
	case ConfirmationFinalized:
		return got == solanarpc.ConfirmationStatusFinalized
	default:
		return true
	}
}
