package funding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/txbuilder"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

type fakeChain struct {
	mu       sync.Mutex
	balances map[solana.PublicKey]uint64
	sent     int
	failAt   int
}

func (f *fakeChain) GetBalance(_ context.Context, addr solana.PublicKey) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[addr]
	if !ok {
		return 0, errors.New("boom")
	}
	return b, nil
}

func (f *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{9}, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *solana.Transaction, _ solanarpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent++
	if f.failAt > 0 && f.sent == f.failAt {
		return solana.Signature{}, errors.New("send rejected")
	}
	return tx.Signatures[0], nil
}

func (f *fakeChain) GetSignatureStatus(context.Context, solana.Signature) (*solanarpc.SignatureStatusesResult, error) {
	return &solanarpc.SignatureStatusesResult{ConfirmationStatus: solanarpc.ConfirmationStatusFinalized}, nil
}

func TestNewPlan(t *testing.T) {
	p, err := NewPlan(0.5, 0.1, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), p.Dev)
	assert.Equal(t, uint64(100_000_000), p.PerBuyer)
	assert.Equal(t, uint64(4*5000), p.EstimatedFees)
	assert.Equal(t, uint64(800_000_000+20_000), p.TotalRequired)

	_, err = NewPlan(-1, 0, 1)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func newDistributor(chain *fakeChain) *Distributor {
	tx := txbuilder.NewBuilder(chain, "").WithPollInterval(time.Millisecond)
	return NewDistributor(chain, tx, zerolog.Nop())
}

func TestDistribute(t *testing.T) {
	c, err := wallet.GenerateCollection(2)
	require.NoError(t, err)
	chain := &fakeChain{balances: map[solana.PublicKey]uint64{c.Main.Address: 2_000_000_000}}
	p, err := NewPlan(0.5, 0.1, 2)
	require.NoError(t, err)

	done, err := newDistributor(chain).Distribute(context.Background(), c, p)
	require.NoError(t, err)
	require.Len(t, done, 3)
	assert.Equal(t, c.Dev.Address.String(), done[0].To)
	assert.Equal(t, c.Buyers[1].Address.String(), done[2].To)
}

func TestDistributeInsufficient(t *testing.T) {
	c, err := wallet.GenerateCollection(1)
	require.NoError(t, err)
	chain := &fakeChain{balances: map[solana.PublicKey]uint64{c.Main.Address: 1000}}
	p, err := NewPlan(1, 1, 1)
	require.NoError(t, err)

	_, err = newDistributor(chain).Distribute(context.Background(), c, p)
	assert.ErrorIs(t, err, types.ErrInsufficientBalance)
	assert.Zero(t, chain.sent)
}

func TestDistributeStopsOnFirstFailure(t *testing.T) {
	c, err := wallet.GenerateCollection(3)
	require.NoError(t, err)
	chain := &fakeChain{balances: map[solana.PublicKey]uint64{c.Main.Address: 10_000_000_000}, failAt: 2}
	p, err := NewPlan(0.1, 0.1, 3)
	require.NoError(t, err)

	done, err := newDistributor(chain).Distribute(context.Background(), c, p)
	require.Error(t, err)
	assert.Len(t, done, 1)
	assert.Equal(t, 2, chain.sent)
}

func TestBalances(t *testing.T) {
	c, err := wallet.GenerateCollection(2)
	require.NoError(t, err)
	chain := &fakeChain{balances: map[solana.PublicKey]uint64{
		c.Main.Address:      1,
		c.Dev.Address:       2,
		c.Buyers[0].Address: 3,
	}}
	out := newDistributor(chain).Balances(context.Background(), c)
	require.Len(t, out, 4)
	assert.Equal(t, uint64(3), out[2].Lamports)
	assert.Error(t, out[3].Err)
	assert.Equal(t, "buyer#1", out[3].Label)
}
