// Package quote provides bonding curve price calculation for pump.fun.
//
// Quotes are pure functions of a curve snapshot so a sequence of trades can
// be priced ahead of time, e.g. every buy inside one launch bundle:
//
//	curve := pump.InitialBondingCurve(dev)
//	for _, sol := range buys {
//	    q := quote.Buy(curve, sol, 500)
//	    curve = quote.AfterBuy(curve, q)
//	}
package quote

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"github.com/ninja0404/pump-bundler/pkg/constants"
	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

// FeeBps is the combined protocol and creator fee charged on every trade.
const FeeBps uint64 = 125

// QuoteResult contains the result of a price quote.
type QuoteResult struct {
	// In is the gross input (lamports for buy, tokens for sell).
	In uint64

	// ExpectedOut is the estimated output amount (tokens for buy, SOL for sell).
	ExpectedOut uint64

	// Limit is the slippage bound passed to the program:
	// max SOL cost for buy, min SOL output for sell.
	Limit uint64

	// PriceImpactBps is the estimated price impact in basis points.
	PriceImpactBps uint64

	// netSol is the SOL that reaches the curve after fees.
	netSol uint64
}

// Buy quotes spending solIn lamports against the curve.
func Buy(bc pump.BondingCurve, solIn, slippageBps uint64) QuoteResult {
	net := mulDiv(solIn, 10_000, 10_000+FeeBps)
	out := BuyTokensOut(bc, net)
	if out > bc.RealTokenReserves && bc.RealTokenReserves > 0 {
		out = bc.RealTokenReserves
	}
	return QuoteResult{
		In:             solIn,
		ExpectedOut:    out,
		Limit:          AddSlippage(solIn, slippageBps),
		PriceImpactBps: impactBps(bc.VirtualSolReserves, net),
		netSol:         net,
	}
}

// Sell quotes selling tokensIn against the curve.
func Sell(bc pump.BondingCurve, tokensIn, slippageBps uint64) QuoteResult {
	gross := SellSolOut(bc, tokensIn)
	out := gross - mulDiv(gross, FeeBps, 10_000)
	return QuoteResult{
		In:             tokensIn,
		ExpectedOut:    out,
		Limit:          ApplySlippage(out, slippageBps),
		PriceImpactBps: impactBps(bc.VirtualTokenReserves, tokensIn),
		netSol:         gross,
	}
}

// BuyTokensOut applies tokens_out = sol_in * vToken / (vSol + sol_in).
func BuyTokensOut(bc pump.BondingCurve, solIn uint64) uint64 {
	if solIn == 0 || bc.VirtualTokenReserves == 0 {
		return 0
	}
	solInB := new(big.Int).SetUint64(solIn)
	numerator := new(big.Int).Mul(solInB, new(big.Int).SetUint64(bc.VirtualTokenReserves))
	denominator := new(big.Int).Add(new(big.Int).SetUint64(bc.VirtualSolReserves), solInB)
	return new(big.Int).Div(numerator, denominator).Uint64()
}

// SellSolOut applies sol_out = tokens_in * vSol / (vToken + tokens_in).
func SellSolOut(bc pump.BondingCurve, tokensIn uint64) uint64 {
	if tokensIn == 0 || bc.VirtualSolReserves == 0 {
		return 0
	}
	tokIn := new(big.Int).SetUint64(tokensIn)
	numerator := new(big.Int).Mul(tokIn, new(big.Int).SetUint64(bc.VirtualSolReserves))
	denominator := new(big.Int).Add(new(big.Int).SetUint64(bc.VirtualTokenReserves), tokIn)
	return new(big.Int).Div(numerator, denominator).Uint64()
}

// AfterBuy returns the curve state once a quoted buy has executed.
func AfterBuy(bc pump.BondingCurve, q QuoteResult) pump.BondingCurve {
	bc.VirtualSolReserves += q.netSol
	bc.RealSolReserves += q.netSol
	bc.VirtualTokenReserves = subFloor(bc.VirtualTokenReserves, q.ExpectedOut)
	bc.RealTokenReserves = subFloor(bc.RealTokenReserves, q.ExpectedOut)
	return bc
}

// AfterSell returns the curve state once a quoted sell has executed.
func AfterSell(bc pump.BondingCurve, q QuoteResult) pump.BondingCurve {
	bc.VirtualSolReserves = subFloor(bc.VirtualSolReserves, q.netSol)
	bc.RealSolReserves = subFloor(bc.RealSolReserves, q.netSol)
	bc.VirtualTokenReserves += q.In
	bc.RealTokenReserves += q.In
	return bc
}

// ApplySlippage lowers amount by slippageBps basis points.
func ApplySlippage(amount, slippageBps uint64) uint64 {
	if slippageBps >= 10_000 {
		return 0
	}
	return mulDiv(amount, 10_000-slippageBps, 10_000)
}

// AddSlippage raises amount by slippageBps basis points.
func AddSlippage(amount, slippageBps uint64) uint64 {
	return mulDiv(amount, 10_000+slippageBps, 10_000)
}

// AccountFetcher reads raw account bytes; nil data means the account does not exist.
type AccountFetcher interface {
	GetAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error)
}

// FetchBondingCurve loads and decodes the curve of mint.
func FetchBondingCurve(ctx context.Context, rpc AccountFetcher, mint solana.PublicKey) (pump.BondingCurve, error) {
	if rpc == nil {
		return pump.BondingCurve{}, types.ErrNilRPC
	}
	addr, err := pump.BondingCurvePDA(mint)
	if err != nil {
		return pump.BondingCurve{}, fmt.Errorf("derive bonding curve: %w", err)
	}
	data, err := rpc.GetAccountData(ctx, addr)
	if err != nil {
		return pump.BondingCurve{}, fmt.Errorf("fetch bonding curve %s: %w", addr, err)
	}
	if data == nil {
		return pump.BondingCurve{}, fmt.Errorf("mint %s: %w", mint, types.ErrBondingCurveNotFound)
	}
	return pump.DecodeBondingCurve(data)
}

func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	r := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	return r.Div(r, new(big.Int).SetUint64(c)).Uint64()
}

func impactBps(reserve, in uint64) uint64 {
	if reserve == 0 {
		return 0
	}
	return mulDiv(in, 10_000, reserve+in)
}

func subFloor(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// Price returns the spot price as the raw reserve ratio vSol / vToken,
// i.e. lamports per token base unit. An empty token reserve yields 0.
func Price(bc pump.BondingCurve) float64 {
	if bc.VirtualTokenReserves == 0 {
		return 0
	}
	return float64(bc.VirtualSolReserves) / float64(bc.VirtualTokenReserves)
}

// MarketCap returns whole-token supply times Price.
func MarketCap(bc pump.BondingCurve) float64 {
	return float64(bc.TokenTotalSupply) / float64(constants.TokenUnit) * Price(bc)
}

// SolPerToken converts a raw Price into SOL per whole token.
func SolPerToken(price float64) float64 {
	return price * float64(constants.TokenUnit) / float64(constants.LamportsPerSol)
}
