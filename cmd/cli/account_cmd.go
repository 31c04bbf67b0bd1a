package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/quote"
)

// curveView is the JSON shape printed by `pumpb curve`.
type curveView struct {
	Mint                 string  `json:"mint"`
	BondingCurve         string  `json:"bondingCurve"`
	Creator              string  `json:"creator"`
	VirtualTokenReserves uint64  `json:"virtualTokenReserves"`
	VirtualSolReserves   uint64  `json:"virtualSolReserves"`
	RealTokenReserves    uint64  `json:"realTokenReserves"`
	RealSolReserves      uint64  `json:"realSolReserves"`
	TokenTotalSupply     uint64  `json:"tokenTotalSupply"`
	Complete             bool    `json:"complete"`
	Price                float64 `json:"price"`
	PriceSol             float64 `json:"priceSol"`
	MarketCap            float64 `json:"marketCap"`
	ProgressPct          float64 `json:"progressPct"`
}

func newCurveView(mint string, addr string, bc pump.BondingCurve) curveView {
	price := quote.Price(bc)
	return curveView{
		Mint:                 mint,
		BondingCurve:         addr,
		Creator:              bc.Creator.String(),
		VirtualTokenReserves: bc.VirtualTokenReserves,
		VirtualSolReserves:   bc.VirtualSolReserves,
		RealTokenReserves:    bc.RealTokenReserves,
		RealSolReserves:      bc.RealSolReserves,
		TokenTotalSupply:     bc.TokenTotalSupply,
		Complete:             bc.Complete,
		Price:                price,
		PriceSol:             quote.SolPerToken(price),
		MarketCap:            quote.MarketCap(bc),
		ProgressPct:          curveProgress(bc),
	}
}

// curveProgress is the share of the initially sellable tokens already bought.
func curveProgress(bc pump.BondingCurve) float64 {
	if bc.Complete {
		return 100
	}
	if bc.RealTokenReserves >= pump.InitialRealTokenReserves {
		return 0
	}
	sold := pump.InitialRealTokenReserves - bc.RealTokenReserves
	return float64(sold) / float64(pump.InitialRealTokenReserves) * 100
}

func newCurveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "curve <mint>",
		Short: "Decode the bonding curve account of a mint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parsePubkey("mint", args[0])
			if err != nil {
				return err
			}
			addr, err := pump.BondingCurvePDA(mint)
			if err != nil {
				return fmt.Errorf("derive bonding curve: %w", err)
			}
			bc, err := quote.FetchBondingCurve(cmd.Context(), a.rpcClient(), mint)
			if err != nil {
				return err
			}
			bz, _ := json.MarshalIndent(newCurveView(mint.String(), addr.String(), bc), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(bz))
			return nil
		},
	}
}
