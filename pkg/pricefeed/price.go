// Package pricefeed derives live token prices from bonding curve accounts.
package pricefeed

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/ninja0404/pump-bundler/pkg/constants"
	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/quote"
)

// PriceData is a price snapshot derived from one curve state.
//
// Price is the raw reserve ratio vSol/vToken and MarketCap is whole-token
// supply times Price; price and market cap triggers compare against these.
// The Sol and Fiat fields are the same values in display units. Fiat
// fields are zero unless a fiat rate is set.
type PriceData struct {
	Mint                solana.PublicKey
	Price               float64
	MarketCap           float64
	PriceSol            float64
	MarketCapSol        float64
	PriceFiat           float64
	MarketCapFiat       float64
	VirtualLiquiditySol float64
	RealLiquiditySol    float64
	Complete            bool
	Timestamp           time.Time
}

// PriceChange is delivered to subscribers on every curve update.
type PriceChange struct {
	Mint         solana.PublicKey
	Old          PriceData
	New          PriceData
	Delta        float64
	PercentDelta float64
	Timestamp    time.Time
	// Err is set on the final change of a stream that ended on its own.
	// Old and New then both hold the last known price.
	Err error
}

// Compute derives prices from a curve snapshot. fiatRate is the SOL price
// in fiat, 0 when unknown.
func Compute(mint solana.PublicKey, bc pump.BondingCurve, fiatRate float64, at time.Time) PriceData {
	price := quote.Price(bc)
	supply := float64(bc.TokenTotalSupply) / float64(constants.TokenUnit)
	pd := PriceData{
		Mint:                mint,
		Price:               price,
		MarketCap:           quote.MarketCap(bc),
		PriceSol:            quote.SolPerToken(price),
		VirtualLiquiditySol: lamportsToSol(bc.VirtualSolReserves),
		RealLiquiditySol:    lamportsToSol(bc.RealSolReserves),
		Complete:            bc.Complete,
		Timestamp:           at,
	}
	pd.MarketCapSol = supply * pd.PriceSol
	if fiatRate > 0 {
		pd.PriceFiat = pd.PriceSol * fiatRate
		pd.MarketCapFiat = pd.MarketCapSol * fiatRate
	}
	return pd
}

// Diff builds the change event between two snapshots.
func Diff(old, cur PriceData) PriceChange {
	ch := PriceChange{
		Mint:      cur.Mint,
		Old:       old,
		New:       cur,
		Delta:     cur.Price - old.Price,
		Timestamp: cur.Timestamp,
	}
	if old.Price != 0 {
		ch.PercentDelta = ch.Delta / old.Price * 100
	}
	return ch
}

func lamportsToSol(v uint64) float64 {
	return float64(v) / float64(constants.LamportsPerSol)
}
