package pump

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/constants"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

func TestDecodeBondingCurve(t *testing.T) {
	creator := solana.NewWallet().PublicKey()
	want := BondingCurve{
		VirtualTokenReserves: 500_000_000,
		VirtualSolReserves:   1_000_000_000,
		RealTokenReserves:    400_000_000,
		RealSolReserves:      10,
		TokenTotalSupply:     InitialTokenTotalSupply,
		Complete:             true,
		Creator:              creator,
	}
	data := want.Encode()
	require.Len(t, data, bondingCurveSize)

	// token reserves come first on the wire
	assert.Equal(t, uint64(500_000_000), binary.LittleEndian.Uint64(data[8:16]))

	got, err := DecodeBondingCurve(append(data, 0xff, 0xff))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeBondingCurveShort(t *testing.T) {
	_, err := DecodeBondingCurve(make([]byte, 40))
	assert.Error(t, err)
}

func TestPDADeterminism(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	a, err := BondingCurvePDA(mint)
	require.NoError(t, err)
	b, err := BondingCurvePDA(mint)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other, err := BondingCurvePDA(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, a, other)
}

func TestBuildCreate(t *testing.T) {
	creator := solana.NewWallet().PublicKey()
	mintKey := solana.NewWallet().PrivateKey
	meta := Metadata{Name: "Test", Symbol: "TST", URI: "https://x/y.json"}

	ix, mint, err := NewAdapter(solana.PublicKey{}).BuildCreate(creator, meta, mintKey)
	require.NoError(t, err)
	assert.Equal(t, mintKey.PublicKey(), mint)
	assert.Equal(t, ProgramKey, ix.ProgramID())
	require.Len(t, ix.Accounts(), 14)
	assert.True(t, ix.Accounts()[0].IsSigner)
	assert.Equal(t, mint, ix.Accounts()[0].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, createDiscriminator[:], data[:8])
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(data[8:12]))
	assert.Equal(t, "Test", string(data[12:16]))
	assert.Equal(t, creator[:], data[len(data)-32:])
}

func TestBuildCreateRejectsBlankMetadata(t *testing.T) {
	_, _, err := (&Adapter{}).BuildCreate(solana.NewWallet().PublicKey(), Metadata{Symbol: "X", URI: "u"}, solana.NewWallet().PrivateKey)
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestBuildBuy(t *testing.T) {
	buyer := solana.NewWallet().PublicKey()
	p := BuyParams{
		Mint:        solana.NewWallet().PublicKey(),
		Creator:     solana.NewWallet().PublicKey(),
		TokenAmount: 1_000_000,
		MaxSolCost:  2_000_000,
		CreateATA:   true,
	}
	var a *Adapter
	ixs, err := a.BuildBuy(buyer, p)
	require.NoError(t, err)
	require.Len(t, ixs, 2)
	assert.Equal(t, constants.AssociatedTokenProgramID, ixs[0].ProgramID())

	buy := ixs[1]
	require.Len(t, buy.Accounts(), 16)
	assert.Equal(t, constants.DefaultFeeRecipient, buy.Accounts()[1].PublicKey)
	assert.True(t, buy.Accounts()[6].IsSigner)

	data, err := buy.Data()
	require.NoError(t, err)
	require.Len(t, data, 25)
	assert.Equal(t, buyDiscriminator[:], data[:8])
	assert.Equal(t, uint64(1_000_000), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(2_000_000), binary.LittleEndian.Uint64(data[16:24]))
	assert.Equal(t, byte(1), data[24])
}

func TestBuildBuyValidation(t *testing.T) {
	a := NewAdapter(solana.PublicKey{})
	_, err := a.BuildBuy(solana.NewWallet().PublicKey(), BuyParams{
		Mint:       solana.NewWallet().PublicKey(),
		Creator:    solana.NewWallet().PublicKey(),
		MaxSolCost: 1,
	})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)
}

func TestBuildSell(t *testing.T) {
	fee := solana.NewWallet().PublicKey()
	seller := solana.NewWallet().PublicKey()
	ix, err := NewAdapter(fee).BuildSell(seller, SellParams{
		Mint:         solana.NewWallet().PublicKey(),
		Creator:      solana.NewWallet().PublicKey(),
		TokenAmount:  42,
		MinSolOutput: 7,
	})
	require.NoError(t, err)
	require.Len(t, ix.Accounts(), 14)
	assert.Equal(t, fee, ix.Accounts()[1].PublicKey)
	assert.Equal(t, constants.TokenProgramID, ix.Accounts()[9].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	assert.Equal(t, sellDiscriminator[:], data[:8])
	assert.Equal(t, uint64(42), binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[16:24]))
}
