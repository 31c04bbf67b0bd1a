package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ninja0404/pump-bundler/pkg/pricefeed"
)

func newPriceCmd(a *app) *cobra.Command {
	var fiatRate float64
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Read bonding curve prices",
	}
	cmd.PersistentFlags().Float64Var(&fiatRate, "fiat-rate", 0, "SOL price in fiat for fiat-denominated fields")

	get := &cobra.Command{
		Use:   "get <mint>",
		Short: "Print the current price of a mint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parsePubkey("mint", args[0])
			if err != nil {
				return err
			}
			feed := a.feed()
			feed.SetFiatRate(fiatRate)
			pd, err := feed.GetCurrentPrice(cmd.Context(), mint)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderPrice(pd))
			return nil
		},
	}

	watch := &cobra.Command{
		Use:   "watch <mint>",
		Short: "Stream price changes until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := parsePubkey("mint", args[0])
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			feed := a.feed()
			feed.SetFiatRate(fiatRate)
			pd, err := feed.GetCurrentPrice(ctx, mint)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderPrice(pd))

			unsub, err := feed.Subscribe(context.WithoutCancel(ctx), mint, func(ch pricefeed.PriceChange) {
				fmt.Fprintln(out, renderChange(ch))
			})
			if err != nil {
				return err
			}
			defer unsub()
			<-ctx.Done()
			fmt.Fprintln(out, mutedStyle.Render("stopped"))
			return nil
		},
	}

	cmd.AddCommand(get, watch)
	return cmd
}
