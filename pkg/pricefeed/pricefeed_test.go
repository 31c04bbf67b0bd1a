package pricefeed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

type fakeSub struct {
	ch     chan []byte
	once   sync.Once
	closed chan struct{}
}

func newFakeSub() *fakeSub {
	return &fakeSub{ch: make(chan []byte, 8), closed: make(chan struct{})}
}

func (s *fakeSub) Updates() <-chan []byte { return s.ch }

func (s *fakeSub) Close() {
	s.once.Do(func() {
		close(s.closed)
		close(s.ch)
	})
}

type fakeSource struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey][]byte
	subs     map[solana.PublicKey][]*fakeSub
	opened   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		accounts: map[solana.PublicKey][]byte{},
		subs:     map[solana.PublicKey][]*fakeSub{},
	}
}

func (s *fakeSource) GetAccountData(_ context.Context, addr solana.PublicKey) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[addr], nil
}

func (s *fakeSource) Subscribe(_ context.Context, addr solana.PublicKey) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened++
	sub := newFakeSub()
	s.subs[addr] = append(s.subs[addr], sub)
	return sub, nil
}

func (s *fakeSource) sub(t *testing.T, mint solana.PublicKey) *fakeSub {
	t.Helper()
	curve, err := pump.BondingCurvePDA(mint)
	require.NoError(t, err)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.subs[curve])
	return s.subs[curve][len(s.subs[curve])-1]
}

func curveData(vSol, vToken uint64) []byte {
	return pump.BondingCurve{
		VirtualSolReserves:   vSol,
		VirtualTokenReserves: vToken,
		TokenTotalSupply:     1_000_000,
	}.Encode()
}

func TestComputePrice(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	bc := pump.BondingCurve{
		VirtualSolReserves:   1_000_000_000,
		VirtualTokenReserves: 500_000_000,
		RealSolReserves:      250_000_000,
		TokenTotalSupply:     1_000_000,
	}
	pd := Compute(mint, bc, 150, time.Unix(10, 0))
	assert.InDelta(t, 2.0, pd.Price, 1e-12)
	assert.InDelta(t, 2.0, pd.MarketCap, 1e-12)
	assert.InDelta(t, 0.002, pd.PriceSol, 1e-12)
	assert.InDelta(t, 0.3, pd.PriceFiat, 1e-9)
	assert.InDelta(t, 1.0, pd.VirtualLiquiditySol, 1e-12)
	assert.InDelta(t, 0.25, pd.RealLiquiditySol, 1e-12)

	empty := Compute(mint, pump.BondingCurve{VirtualSolReserves: 5}, 0, time.Now())
	assert.Zero(t, empty.Price)
	assert.Zero(t, empty.PriceFiat)
}

func TestDiff(t *testing.T) {
	ch := Diff(PriceData{Price: 2}, PriceData{Price: 3})
	assert.InDelta(t, 1.0, ch.Delta, 1e-12)
	assert.InDelta(t, 50.0, ch.PercentDelta, 1e-12)

	assert.Zero(t, Diff(PriceData{}, PriceData{Price: 3}).PercentDelta)
}

func TestGetCurrentPrice(t *testing.T) {
	src := newFakeSource()
	mint := solana.NewWallet().PublicKey()
	curve, err := pump.BondingCurvePDA(mint)
	require.NoError(t, err)
	src.accounts[curve] = curveData(1_000_000_000, 500_000_000)

	f := NewFeed(src, zerolog.Nop())
	pd, err := f.GetCurrentPrice(context.Background(), mint)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, pd.Price, 1e-12)

	_, err = f.GetCurrentPrice(context.Background(), solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSubscribeSharesStream(t *testing.T) {
	src := newFakeSource()
	f := NewFeed(src, zerolog.Nop())
	mint := solana.NewWallet().PublicKey()

	changes := make(chan PriceChange, 8)
	unsubA, err := f.Subscribe(context.Background(), mint, func(c PriceChange) { changes <- c })
	require.NoError(t, err)
	unsubB, err := f.Subscribe(context.Background(), mint, func(c PriceChange) { changes <- c })
	require.NoError(t, err)
	assert.Equal(t, 1, src.opened)
	assert.Equal(t, []solana.PublicKey{mint}, f.ActiveSubscriptions())

	sub := src.sub(t, mint)
	sub.ch <- curveData(1_000_000_000, 500_000_000)
	for range 2 {
		c := <-changes
		assert.Equal(t, c.Old.Price, c.New.Price)
		assert.Zero(t, c.PercentDelta)
	}

	sub.ch <- curveData(3_000_000_000, 1_000_000_000)
	for range 2 {
		c := <-changes
		assert.InDelta(t, 2.0, c.Old.Price, 1e-12)
		assert.InDelta(t, 3.0, c.New.Price, 1e-12)
		assert.InDelta(t, 50.0, c.PercentDelta, 1e-9)
	}

	unsubA()
	unsubA()
	assert.Len(t, f.ActiveSubscriptions(), 1)

	unsubB()
	assert.Empty(t, f.ActiveSubscriptions())
	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatal("stream not closed after last unsubscribe")
	}
	_, ok := f.LastPrice(mint)
	assert.False(t, ok)
}

func TestEndedStreamIsReplaced(t *testing.T) {
	src := newFakeSource()
	f := NewFeed(src, zerolog.Nop())
	mint := solana.NewWallet().PublicKey()

	changes := make(chan PriceChange, 8)
	_, err := f.Subscribe(context.Background(), mint, func(c PriceChange) { changes <- c })
	require.NoError(t, err)
	first := src.sub(t, mint)
	first.ch <- curveData(1_000_000_000, 500_000_000)
	<-changes

	first.Close()
	select {
	case c := <-changes:
		assert.ErrorIs(t, c.Err, ErrStreamEnded)
		assert.InDelta(t, 2.0, c.New.Price, 1e-12)
	case <-time.After(time.Second):
		t.Fatal("subscriber not told the stream ended")
	}
	require.Eventually(t, func() bool { return len(f.ActiveSubscriptions()) == 0 }, time.Second, 5*time.Millisecond)

	again := make(chan PriceChange, 1)
	_, err = f.Subscribe(context.Background(), mint, func(c PriceChange) { again <- c })
	require.NoError(t, err)
	assert.Equal(t, 2, src.opened)

	src.sub(t, mint).ch <- curveData(3_000_000_000, 1_000_000_000)
	select {
	case c := <-again:
		assert.NoError(t, c.Err)
		assert.InDelta(t, 3.0, c.New.Price, 1e-12)
	case <-time.After(time.Second):
		t.Fatal("new subscriber got no ticks")
	}
}

func TestCallbackPanicIsContained(t *testing.T) {
	src := newFakeSource()
	f := NewFeed(src, zerolog.Nop())
	mint := solana.NewWallet().PublicKey()

	got := make(chan PriceChange, 1)
	_, err := f.Subscribe(context.Background(), mint, func(PriceChange) { panic(errors.New("boom")) })
	require.NoError(t, err)
	_, err = f.Subscribe(context.Background(), mint, func(c PriceChange) { got <- c })
	require.NoError(t, err)

	src.sub(t, mint).ch <- curveData(1_000_000_000, 500_000_000)
	select {
	case c := <-got:
		assert.InDelta(t, 2.0, c.New.Price, 1e-12)
	case <-time.After(time.Second):
		t.Fatal("healthy callback starved by panicking one")
	}
}

func TestUnsubscribeAll(t *testing.T) {
	src := newFakeSource()
	f := NewFeed(src, zerolog.Nop())
	a, b := solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()
	_, err := f.Subscribe(context.Background(), a, func(PriceChange) {})
	require.NoError(t, err)
	unsubB, err := f.Subscribe(context.Background(), b, func(PriceChange) {})
	require.NoError(t, err)

	f.UnsubscribeAll()
	assert.Empty(t, f.ActiveSubscriptions())
	<-src.sub(t, a).closed
	<-src.sub(t, b).closed
	unsubB()
}

func TestSubscribeNilCallback(t *testing.T) {
	f := NewFeed(newFakeSource(), zerolog.Nop())
	_, err := f.Subscribe(context.Background(), solana.NewWallet().PublicKey(), nil)
	assert.Error(t, err)
}
