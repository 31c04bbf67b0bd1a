package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/bundle"
	"github.com/ninja0404/pump-bundler/pkg/jito"
	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/txbuilder"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

type fakeChain struct {
	accounts map[solana.PublicKey][]byte
	balances map[solana.PublicKey]uint64
}

func (c *fakeChain) GetAccountData(_ context.Context, addr solana.PublicKey) ([]byte, error) {
	return c.accounts[addr], nil
}

func (c *fakeChain) GetTokenBalance(_ context.Context, ata solana.PublicKey) (uint64, error) {
	bal, ok := c.balances[ata]
	if !ok {
		return 0, fmt.Errorf("%s: %w", ata, types.ErrTokenAccountNotFound)
	}
	return bal, nil
}

func (c *fakeChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{3}, nil
}

type passSimulator struct{}

func (passSimulator) Simulate(context.Context, []*solana.Transaction) error { return nil }

type fakeRelay struct {
	mu      sync.Mutex
	bundles []*bundle.Bundle
	state   jito.State
}

func (r *fakeRelay) Submit(_ context.Context, b *bundle.Bundle) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles = append(r.bundles, b)
	return fmt.Sprintf("bundle-%d", len(r.bundles)), nil
}

func (r *fakeRelay) AwaitConfirmation(_ context.Context, id string, _ time.Duration) jito.Status {
	return jito.Status{BundleID: id, State: r.state}
}

func (r *fakeRelay) RandomTipAccount(context.Context) solana.PublicKey {
	return jito.MainnetTipAccounts[1]
}

type fakeDirect struct {
	mu     sync.Mutex
	payers []solana.PublicKey
	// failAt makes the n-th send (1-based) fail; zero never fails.
	failAt int
}

var errSendFailed = errors.New("send failed")

func (d *fakeDirect) BuildSignSendAndConfirm(_ context.Context, payer wallet.Signer, _ []wallet.Signer, _ txbuilder.ConfirmationLevel, _ ...solana.Instruction) (solana.Signature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.payers = append(d.payers, payer.PublicKey())
	if d.failAt == len(d.payers) {
		return solana.Signature{}, errSendFailed
	}
	return solana.Signature{byte(len(d.payers))}, nil
}

type execHarness struct {
	mint   solana.PublicKey
	chain  *fakeChain
	relay  *fakeRelay
	direct *fakeDirect
	exec   *Executor
}

func newExecHarness(t *testing.T, complete bool) *execHarness {
	t.Helper()
	mint := solana.NewWallet().PublicKey()
	curveAddr, err := pump.BondingCurvePDA(mint)
	require.NoError(t, err)
	curve := pump.InitialBondingCurve(solana.NewWallet().PublicKey())
	curve.Complete = complete

	h := &execHarness{
		mint: mint,
		chain: &fakeChain{
			accounts: map[solana.PublicKey][]byte{curveAddr: curve.Encode()},
			balances: map[solana.PublicKey]uint64{},
		},
		relay:  &fakeRelay{state: jito.StateConfirmed},
		direct: &fakeDirect{},
	}
	h.exec = &Executor{
		Chain:       h.chain,
		Adapter:     pump.NewAdapter(solana.PublicKey{}),
		Bundles:     bundle.NewBuilder(h.chain, passSimulator{}, zerolog.Nop()),
		Relay:       h.relay,
		Direct:      h.direct,
		TipSol:      0.001,
		SlippageBps: 500,
		Log:         zerolog.Nop(),
	}
	return h
}

func (h *execHarness) hold(t *testing.T, w wallet.Wallet, amount uint64) {
	t.Helper()
	ata, err := pump.AssociatedTokenAddress(w.Address, h.mint)
	require.NoError(t, err)
	h.chain.balances[ata] = amount
}

func TestExecuteSingleLegGoesDirect(t *testing.T) {
	h := newExecHarness(t, false)
	c := buyers(t, 1)

	fill, err := h.exec.Execute(context.Background(), h.mint, []Leg{{Wallet: c.Buyers[0], Side: Buy, SolAmount: 0.1}})
	require.NoError(t, err)
	assert.Equal(t, 1, fill.Executed)
	assert.InDelta(t, 0.1, fill.SolVolume, 1e-9)
	assert.Len(t, fill.Signatures, 1)
	assert.Empty(t, h.relay.bundles)
	assert.Equal(t, []solana.PublicKey{c.Buyers[0].Address}, h.direct.payers)
}

func TestExecuteGroupGoesAsBundle(t *testing.T) {
	h := newExecHarness(t, false)
	c := buyers(t, 3)
	h.hold(t, c.Buyers[2], 5_000_000)

	fill, err := h.exec.Execute(context.Background(), h.mint, []Leg{
		{Wallet: c.Buyers[0], Side: Buy, SolAmount: 0.1},
		{Wallet: c.Buyers[1], Side: Buy, SolAmount: 0.1},
		{Wallet: c.Buyers[2], Side: Sell, Tokens: 1_000_000},
	})
	require.NoError(t, err)
	assert.Equal(t, "bundle-1", fill.BundleID)
	assert.Equal(t, 3, fill.Executed)
	assert.Equal(t, 1, fill.Sells)
	assert.Equal(t, uint64(1_000_000), fill.TokensSold)
	assert.Empty(t, h.direct.payers)

	require.Len(t, h.relay.bundles, 1)
	bun := h.relay.bundles[0]
	assert.Equal(t, 4, bun.Len())
	assert.True(t, bun.Simulated())
	assert.Equal(t, c.Buyers[0].Address, bun.Transactions[bun.TipIndex].Message.AccountKeys[0])
	assert.Len(t, fill.Signatures, 4)
}

func TestExecuteFailedBundle(t *testing.T) {
	h := newExecHarness(t, false)
	h.relay.state = jito.StateFailed
	c := buyers(t, 2)

	fill, err := h.exec.Execute(context.Background(), h.mint, []Leg{
		{Wallet: c.Buyers[0], Side: Buy, SolAmount: 0.1},
		{Wallet: c.Buyers[1], Side: Buy, SolAmount: 0.1},
	})
	assert.Error(t, err)
	assert.Equal(t, "bundle-1", fill.BundleID)
	assert.Zero(t, fill.Executed)
}

func TestExecuteDirectFailureCountsLandedLegs(t *testing.T) {
	h := newExecHarness(t, false)
	h.exec.Relay = nil
	h.direct.failAt = 3
	c := buyers(t, 3)
	h.hold(t, c.Buyers[1], 4_000_000)

	fill, err := h.exec.Execute(context.Background(), h.mint, []Leg{
		{Wallet: c.Buyers[0], Side: Buy, SolAmount: 0.1},
		{Wallet: c.Buyers[1], Side: Sell, Tokens: 2_000_000},
		{Wallet: c.Buyers[2], Side: Buy, SolAmount: 0.1},
	})
	require.ErrorIs(t, err, errSendFailed)
	assert.Equal(t, 2, fill.Executed)
	assert.Equal(t, 1, fill.Sells)
	assert.Equal(t, uint64(2_000_000), fill.TokensSold)
	assert.Greater(t, fill.SolVolume, 0.1)
	assert.Len(t, fill.Signatures, 2)
	assert.Len(t, h.direct.payers, 3)
}

func TestExecuteRejectsCompleteCurve(t *testing.T) {
	h := newExecHarness(t, true)
	c := buyers(t, 1)
	_, err := h.exec.Execute(context.Background(), h.mint, []Leg{{Wallet: c.Buyers[0], Side: Buy, SolAmount: 0.1}})
	assert.ErrorIs(t, err, types.ErrCurveComplete)
}

func TestExecuteRejectsOversizeGroup(t *testing.T) {
	h := newExecHarness(t, false)
	c := buyers(t, 5)
	legs := make([]Leg, 0, 5)
	for _, w := range c.Buyers {
		legs = append(legs, Leg{Wallet: w, Side: Buy, SolAmount: 0.01})
	}
	_, err := h.exec.Execute(context.Background(), h.mint, legs)
	assert.ErrorIs(t, err, types.ErrBundleTooLarge)
}

func TestSellPercentChunksAndSkipsEmpty(t *testing.T) {
	h := newExecHarness(t, false)
	c := buyers(t, 6)
	for i, w := range c.Buyers[:5] {
		h.hold(t, w, uint64(1_000_000*(i+1)))
	}

	fill, err := h.exec.SellPercent(context.Background(), h.mint, c.Buyers, 50)
	require.NoError(t, err)
	assert.Equal(t, 5, fill.Sells)
	assert.Equal(t, uint64(500_000+1_000_000+1_500_000+2_000_000+2_500_000), fill.TokensSold)

	require.Len(t, h.relay.bundles, 1)
	assert.Equal(t, 5, h.relay.bundles[0].Len(), "four sells plus tip")
	assert.Equal(t, []solana.PublicKey{c.Buyers[4].Address}, h.direct.payers)
}

func TestSellPercentValidates(t *testing.T) {
	h := newExecHarness(t, false)
	_, err := h.exec.SellPercent(context.Background(), h.mint, nil, 0)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}
