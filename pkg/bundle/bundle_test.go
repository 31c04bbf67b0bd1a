package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/rpc"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

type fakeChain struct {
	blockhashCalls atomic.Int32
	simulated      atomic.Int32
	failAt         int
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	f.blockhashCalls.Add(1)
	return solana.Hash{7}, nil
}

func (f *fakeChain) SimulateTransaction(_ context.Context, _ *solana.Transaction) (*solanarpc.SimulateTransactionResult, error) {
	n := int(f.simulated.Add(1))
	if f.failAt > 0 && n == f.failAt {
		return &solanarpc.SimulateTransactionResult{
			Err:  map[string]interface{}{"InstructionError": []interface{}{float64(0), map[string]interface{}{"Custom": float64(6002)}}},
			Logs: []string{"Program log: slippage"},
		}, nil
	}
	return &solanarpc.SimulateTransactionResult{}, nil
}

func signer() wallet.Signer {
	return wallet.NewLocalFromPrivateKey(solana.NewWallet().PrivateKey)
}

func request(s wallet.Signer) Request {
	ix := system.NewTransferInstruction(1, s.PublicKey(), solana.NewWallet().PublicKey()).Build()
	return Request{Payer: s, Instructions: []solana.Instruction{ix}}
}

func newBuilder(chain *fakeChain) *Builder {
	return NewBuilder(chain, Sequential{Chain: chain, Log: zerolog.Nop()}, zerolog.Nop())
}

func TestBuildManyPreservesOrderAndSigners(t *testing.T) {
	chain := &fakeChain{}
	b := newBuilder(chain)
	signers := []wallet.Signer{signer(), signer(), signer()}
	reqs := make([]Request, len(signers))
	for i, s := range signers {
		reqs[i] = request(s)
	}

	txs, err := b.BuildMany(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for i, tx := range txs {
		assert.Equal(t, signers[i].PublicKey(), tx.Message.AccountKeys[0])
		require.Len(t, tx.Signatures, 1)
		assert.NoError(t, tx.VerifySignatures())
	}
	assert.Equal(t, int32(1), chain.blockhashCalls.Load())
}

func TestBuildWithCoSigner(t *testing.T) {
	chain := &fakeChain{}
	payer, co := signer(), signer()
	ix := system.NewTransferInstruction(1, co.PublicKey(), payer.PublicKey()).Build()

	tx, err := newBuilder(chain).Build(context.Background(), payer, []solana.Instruction{ix}, co)
	require.NoError(t, err)
	assert.Len(t, tx.Signatures, 2)
	assert.NoError(t, tx.VerifySignatures())

	_, err = newBuilder(chain).Build(context.Background(), payer, []solana.Instruction{ix})
	assert.ErrorContains(t, err, "missing signer")
}

func TestAddTipAppendsLast(t *testing.T) {
	chain := &fakeChain{}
	b := newBuilder(chain)
	txs, err := b.BuildMany(context.Background(), []Request{request(signer()), request(signer())})
	require.NoError(t, err)

	tipAccount := solana.NewWallet().PublicKey()
	tipper := signer()
	bundle, err := b.AddTip(context.Background(), txs, tipper, 1_000_000, tipAccount)
	require.NoError(t, err)
	require.Equal(t, 3, bundle.Len())
	assert.Equal(t, 2, bundle.TipIndex)
	tip := bundle.Transactions[2]
	assert.Equal(t, tipper.PublicKey(), tip.Message.AccountKeys[0])
	assert.Contains(t, tip.Message.AccountKeys, tipAccount)
	assert.Equal(t, txs[0].Message.RecentBlockhash, tip.Message.RecentBlockhash)
	assert.Len(t, bundle.Signatures(), 3)
	assert.False(t, bundle.Simulated())
}

func TestAddTipRejectsOversizedBeforeNetwork(t *testing.T) {
	chain := &fakeChain{}
	b := newBuilder(chain)
	five := make([]*solana.Transaction, 5)

	_, err := b.AddTip(context.Background(), five, nil, 0, solana.PublicKey{})
	require.ErrorIs(t, err, types.ErrBundleTooLarge)
	assert.Contains(t, err.Error(), "plus tip is 6, limit is 5")
	assert.Zero(t, chain.blockhashCalls.Load())
}

func TestAddTipFourFits(t *testing.T) {
	chain := &fakeChain{}
	b := newBuilder(chain)
	reqs := []Request{request(signer()), request(signer()), request(signer()), request(signer())}
	txs, err := b.BuildMany(context.Background(), reqs)
	require.NoError(t, err)
	bundle, err := b.AddTip(context.Background(), txs, signer(), 1, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, 5, bundle.Len())
}

func TestSimulateMarksBundle(t *testing.T) {
	chain := &fakeChain{}
	b := newBuilder(chain)
	txs, err := b.BuildMany(context.Background(), []Request{request(signer())})
	require.NoError(t, err)
	bundle, err := b.AddTip(context.Background(), txs, signer(), 1, solana.NewWallet().PublicKey())
	require.NoError(t, err)

	require.NoError(t, b.Simulate(context.Background(), bundle))
	assert.True(t, bundle.Simulated())
	assert.Equal(t, int32(2), chain.simulated.Load())
}

func TestSimulateShortCircuits(t *testing.T) {
	chain := &fakeChain{failAt: 1}
	b := newBuilder(chain)
	txs, err := b.BuildMany(context.Background(), []Request{request(signer()), request(signer())})
	require.NoError(t, err)
	bundle := &Bundle{Transactions: txs}

	err = b.Simulate(context.Background(), bundle)
	require.ErrorIs(t, err, types.ErrSimulationFailed)
	var simErr *types.SimulationError
	require.True(t, errors.As(err, &simErr))
	assert.Equal(t, 0, simErr.Index)
	assert.False(t, bundle.Simulated())
	assert.Equal(t, int32(1), chain.simulated.Load())
}

type fakeBundleRPC struct {
	res *rpc.BundleSimulation
	got []string
}

func (f *fakeBundleRPC) SimulateBundle(_ context.Context, encoded []string) (*rpc.BundleSimulation, error) {
	f.got = encoded
	return f.res, nil
}

func TestAtomicSimulator(t *testing.T) {
	chain := &fakeChain{}
	txs, err := newBuilder(chain).BuildMany(context.Background(), []Request{request(signer()), request(signer())})
	require.NoError(t, err)

	ok := &fakeBundleRPC{res: &rpc.BundleSimulation{Summary: json.RawMessage(`"succeeded"`)}}
	require.NoError(t, Atomic{Chain: ok, Log: zerolog.Nop()}.Simulate(context.Background(), txs))
	assert.Len(t, ok.got, 2)

	failed := &fakeBundleRPC{res: &rpc.BundleSimulation{
		Summary: json.RawMessage(`{"failed":{"error":{"TransactionFailure":[[1],"insufficient funds"]}}}`),
		TransactionResults: []rpc.BundleTxResult{
			{},
			{Err: "InsufficientFundsForRent", Logs: []string{"log"}},
		},
	}}
	err = Atomic{Chain: failed, Log: zerolog.Nop()}.Simulate(context.Background(), txs)
	var simErr *types.SimulationError
	require.True(t, errors.As(err, &simErr))
	assert.Equal(t, 1, simErr.Index)
	assert.Equal(t, []string{"log"}, simErr.Logs)
}
