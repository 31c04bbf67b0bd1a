package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/bundle"
	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/strategy"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"config"},
		{"wallet", "create"}, {"wallet", "show"}, {"wallet", "fund"}, {"wallet", "balance"},
		{"launch", "run"}, {"launch", "dry-run"},
		{"price", "get"}, {"price", "watch"}, {"curve"},
		{"sell", "all"}, {"sell", "dev"}, {"sell", "wallet"},
		{"strategy", "delay"}, {"strategy", "smart"}, {"strategy", "auto"},
		{"volume", "start"},
		{"bundle", "status"}, {"bundle", "recent"},
	} {
		cmd, rest, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestParseLevels(t *testing.T) {
	levels, err := parseLevels([]string{"0.00004:50", "0.00002:25:dev"})
	require.NoError(t, err)
	assert.Equal(t, []strategy.SmartLevel{
		{Price: 0.00004, Percent: 50, Wallets: "all"},
		{Price: 0.00002, Percent: 25, Wallets: "dev"},
	}, levels)

	for _, bad := range []string{"0.1", "x:50", "0.1:y"} {
		_, err := parseLevels([]string{bad})
		assert.ErrorIs(t, err, types.ErrInvalidConfig, bad)
	}
}

func TestParsePubkey(t *testing.T) {
	pk := solana.NewWallet().PublicKey()
	got, err := parsePubkey("mint", pk.String())
	require.NoError(t, err)
	assert.Equal(t, pk, got)

	_, err = parsePubkey("mint", "")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
	_, err = parsePubkey("mint", "not-a-key")
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestRenderError(t *testing.T) {
	assert.Contains(t, renderError(types.NewValidationError("percent", "must be > 0")), "must be > 0")
	assert.Contains(t, renderError(errors.New("boom")), "boom")
}

func TestCurveProgress(t *testing.T) {
	bc := pump.InitialBondingCurve(solana.PublicKey{})
	assert.Zero(t, curveProgress(bc))

	bc.RealTokenReserves = pump.InitialRealTokenReserves / 4
	assert.InDelta(t, 75.0, curveProgress(bc), 1e-9)

	bc.Complete = true
	assert.Equal(t, 100.0, curveProgress(bc))

	v := newCurveView("m", "c", pump.InitialBondingCurve(solana.PublicKey{}))
	assert.InDelta(t, 2.8e-8, v.PriceSol, 1e-9)
	assert.False(t, v.Complete)
}

type blockhashChain struct{}

func (blockhashChain) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{7}, nil
}

func TestTradedMint(t *testing.T) {
	seller, err := wallet.Generate(wallet.RoleBuyer, nil)
	require.NoError(t, err)
	mint := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()

	ix, err := pump.NewAdapter(solana.PublicKey{}).BuildSell(seller.Address, pump.SellParams{
		Mint:         mint,
		Creator:      creator,
		TokenAmount:  1_000,
		MinSolOutput: 1,
	})
	require.NoError(t, err)

	b := bundle.NewBuilder(blockhashChain{}, nil, zerolog.Nop())
	txs, err := b.BuildMany(context.Background(), []bundle.Request{{Payer: seller.Signer(), Instructions: []solana.Instruction{ix}}})
	require.NoError(t, err)

	assert.Equal(t, mint.String(), tradedMint(&bundle.Bundle{Transactions: txs}))
}
