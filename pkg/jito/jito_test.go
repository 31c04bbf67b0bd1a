package jito

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/bundle"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

type fakeTransport struct {
	mu        sync.Mutex
	sendErrs  []error
	sends     int
	inflight  []InflightStatus
	final     []FinalStatus
	tips      []string
	tipErr    error
	pollCount int
}

func (f *fakeTransport) SendBundle(_ context.Context, encoded []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("bundle-%d", len(encoded)), nil
}

func (f *fakeTransport) TipAccounts(context.Context) ([]string, error) {
	return f.tips, f.tipErr
}

func (f *fakeTransport) InflightStatuses(context.Context, []string) ([]InflightStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCount++
	return f.inflight, nil
}

func (f *fakeTransport) FinalStatuses(context.Context, []string) ([]FinalStatus, error) {
	return f.final, nil
}

type okSimulator struct{}

func (okSimulator) Simulate(context.Context, []*solana.Transaction) error { return nil }

type hashChain struct{}

func (hashChain) GetLatestBlockhash(context.Context) (solana.Hash, error) { return solana.Hash{4}, nil }

func newBundle(t *testing.T, simulate bool) *bundle.Bundle {
	t.Helper()
	b := bundle.NewBuilder(hashChain{}, okSimulator{}, zerolog.Nop())
	payer := wallet.NewLocalFromPrivateKey(solana.NewWallet().PrivateKey)
	ix := system.NewTransferInstruction(1, payer.PublicKey(), solana.NewWallet().PublicKey()).Build()
	txs, err := b.BuildMany(context.Background(), []bundle.Request{{Payer: payer, Instructions: []solana.Instruction{ix}}})
	require.NoError(t, err)
	bun, err := b.AddTip(context.Background(), txs, payer, 1000, MainnetTipAccounts[0])
	require.NoError(t, err)
	if simulate {
		require.NoError(t, b.Simulate(context.Background(), bun))
	}
	return bun
}

func newClient(t *fakeTransport) *Client {
	return NewClient(t, Options{MaxRetries: 3, RetryDelay: time.Millisecond, PollInterval: 5 * time.Millisecond, Log: zerolog.Nop()})
}

func TestSubmitRefusesUnsimulated(t *testing.T) {
	tr := &fakeTransport{}
	_, err := newClient(tr).Submit(context.Background(), newBundle(t, false))
	assert.ErrorIs(t, err, types.ErrBundleNotSimulated)
	assert.Zero(t, tr.sends)
}

func TestSubmitRetriesRateLimit(t *testing.T) {
	tr := &fakeTransport{sendErrs: []error{
		fmt.Errorf("sendBundle: %w", ErrRateLimited),
		nil,
	}}
	id, err := newClient(tr).Submit(context.Background(), newBundle(t, true))
	require.NoError(t, err)
	assert.Equal(t, "bundle-2", id)
	assert.Equal(t, 2, tr.sends)
}

func TestSubmitDoesNotRetryRejection(t *testing.T) {
	tr := &fakeTransport{sendErrs: []error{errors.New("bundle simulation failed: custom program error")}}
	_, err := newClient(tr).Submit(context.Background(), newBundle(t, true))
	require.ErrorIs(t, err, types.ErrRelayRejected)
	var rej *types.RelayRejection
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, types.RejectSimulationFailure, rej.Reason)
	assert.Equal(t, 1, tr.sends)
}

func TestAwaitConfirmationTimeoutIsPending(t *testing.T) {
	tr := &fakeTransport{inflight: []InflightStatus{{Status: "Invalid"}}}
	timeout := 40 * time.Millisecond

	start := time.Now()
	st := newClient(tr).AwaitConfirmation(context.Background(), "abc", timeout)
	elapsed := time.Since(start)

	assert.Equal(t, StatePending, st.State)
	assert.Equal(t, "abc", st.BundleID)
	assert.Empty(t, st.Error)
	assert.Less(t, elapsed, timeout+200*time.Millisecond)
	assert.GreaterOrEqual(t, tr.pollCount, 2)
}

func TestAwaitConfirmationLanded(t *testing.T) {
	tr := &fakeTransport{
		inflight: []InflightStatus{{BundleID: "abc", Status: "Landed", LandedSlot: 321}},
		final:    []FinalStatus{{ConfirmationStatus: "confirmed"}},
	}
	st := newClient(tr).AwaitConfirmation(context.Background(), "abc", time.Second)
	assert.Equal(t, StateConfirmed, st.State)
	assert.Equal(t, uint64(321), st.LandedSlot)
}

func TestAwaitConfirmationFailed(t *testing.T) {
	tr := &fakeTransport{inflight: []InflightStatus{{BundleID: "abc", Status: "Failed"}}}
	st := newClient(tr).AwaitConfirmation(context.Background(), "abc", time.Second)
	assert.Equal(t, StateFailed, st.State)
	assert.ErrorIs(t, st.Err, types.ErrRelayRejected)
	assert.Contains(t, st.Error, "dropped")
}

func TestMapResult(t *testing.T) {
	cases := []struct {
		in    Result
		state State
	}{
		{Result{Outcome: OutcomeFinalized, Slot: 9}, StateConfirmed},
		{Result{Outcome: OutcomeProcessed, Slot: 9}, StateConfirmed},
		{Result{Outcome: OutcomeAccepted}, StateProcessing},
		{Result{Outcome: OutcomeRejected, Reason: types.RejectBidTooLow}, StateFailed},
		{Result{Outcome: OutcomeRejected, Reason: types.RejectInternalError}, StateFailed},
		{Result{}, StatePending},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.state, MapResult(tc.in).State, "outcome %q", tc.in.Outcome)
	}
	assert.Equal(t, uint64(9), MapResult(Result{Outcome: OutcomeFinalized, Slot: 9}).LandedSlot)
	assert.Equal(t, "tip too low for auction", MapResult(Result{Outcome: OutcomeRejected, Reason: types.RejectBidTooLow}).Error)
}

func TestTipAccountsFallback(t *testing.T) {
	c := newClient(&fakeTransport{tipErr: errors.New("down")})
	assert.Equal(t, MainnetTipAccounts, c.TipAccounts(context.Background()))

	fresh := solana.NewWallet().PublicKey()
	c = newClient(&fakeTransport{tips: []string{fresh.String(), "garbage"}})
	assert.Equal(t, []solana.PublicKey{fresh}, c.TipAccounts(context.Background()))
	assert.Equal(t, fresh, c.RandomTipAccount(context.Background()))
}

func TestSendTransaction(t *testing.T) {
	tr := &fakeTransport{}
	bun := newBundle(t, false)
	sig, err := newClient(tr).SendTransaction(context.Background(), bun.Transactions[0])
	require.NoError(t, err)
	assert.Equal(t, bun.Transactions[0].Signatures[0], sig)
	assert.Equal(t, 1, tr.sends)
}
