package txbuilder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

type fakeChain struct {
	mu       sync.Mutex
	sent     []*solana.Transaction
	polls    int
	statuses []*solanarpc.SignatureStatusesResult
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{1, 2, 3}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction, _ solanarpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeChain) GetSignatureStatus(context.Context, solana.Signature) (*solanarpc.SignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.polls >= len(f.statuses) {
		return f.statuses[len(f.statuses)-1], nil
	}
	s := f.statuses[f.polls]
	f.polls++
	return s, nil
}

func transfer(from, to solana.PublicKey) solana.Instruction {
	return system.NewTransferInstruction(1000, from, to).Build()
}

func TestBuildRequiresInstructions(t *testing.T) {
	b := NewBuilder(&fakeChain{}, "")
	_, err := b.Build(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, types.ErrNoInstructions)
}

func TestBuildAndSign(t *testing.T) {
	payer := wallet.NewLocalFromPrivateKey(solana.NewWallet().PrivateKey)
	b := NewBuilder(&fakeChain{}, "")

	tx, err := b.BuildAndSign(context.Background(), payer, nil, transfer(payer.PublicKey(), solana.NewWallet().PublicKey()))
	require.NoError(t, err)
	require.Len(t, tx.Signatures, 1)
	assert.Equal(t, payer.PublicKey(), tx.Message.AccountKeys[0])
	assert.Equal(t, solana.Hash{1, 2, 3}, tx.Message.RecentBlockhash)
	assert.NoError(t, tx.VerifySignatures())
}

func TestSignTransactionMissingSigner(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tx, err := NewBuilder(&fakeChain{}, "").Build(context.Background(), payer, transfer(payer, solana.NewWallet().PublicKey()))
	require.NoError(t, err)

	other := wallet.NewLocalFromPrivateKey(solana.NewWallet().PrivateKey)
	err = SignTransaction(context.Background(), tx, other)
	assert.ErrorContains(t, err, "missing signer")
}

func TestSendAndConfirm(t *testing.T) {
	chain := &fakeChain{statuses: []*solanarpc.SignatureStatusesResult{
		nil,
		{ConfirmationStatus: solanarpc.ConfirmationStatusProcessed},
		{ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed},
	}}
	payer := wallet.NewLocalFromPrivateKey(solana.NewWallet().PrivateKey)
	b := NewBuilder(chain, "").WithPollInterval(time.Millisecond)

	sig, err := b.BuildSignSendAndConfirm(context.Background(), payer, nil, ConfirmationConfirmed,
		transfer(payer.PublicKey(), solana.NewWallet().PublicKey()))
	require.NoError(t, err)
	assert.False(t, sig.IsZero())
	assert.Len(t, chain.sent, 1)
	assert.Equal(t, 3, chain.polls)
}

func TestWaitForConfirmationFailure(t *testing.T) {
	chain := &fakeChain{statuses: []*solanarpc.SignatureStatusesResult{
		{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
	}}
	b := NewBuilder(chain, "").WithPollInterval(time.Millisecond)
	err := b.WaitForConfirmation(context.Background(), solana.Signature{}, ConfirmationConfirmed)
	assert.ErrorContains(t, err, "transaction failed")
}

type fakeSender struct{ called bool }

func (s *fakeSender) SendTransaction(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	s.called = true
	return tx.Signatures[0], nil
}

func TestSendUsesSender(t *testing.T) {
	chain := &fakeChain{}
	sender := &fakeSender{}
	payer := wallet.NewLocalFromPrivateKey(solana.NewWallet().PrivateKey)
	b := NewBuilder(chain, "").WithSender(sender)

	tx, err := b.BuildAndSign(context.Background(), payer, nil, transfer(payer.PublicKey(), solana.NewWallet().PublicKey()))
	require.NoError(t, err)
	_, err = b.Send(context.Background(), tx)
	require.NoError(t, err)
	assert.True(t, sender.called)
	assert.Empty(t, chain.sent)
}
