package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ninja0404/pump-bundler/pkg/launch"
	"github.com/ninja0404/pump-bundler/pkg/vanity"
)

type launchFlags struct {
	name, symbol, uri string
	buyers            int
	buySol            float64
	tipSol            float64
	slippageBps       uint64
	vanityPrefix      string
	vanitySuffix      string
	vanityIgnoreCase  bool
	confirmTimeout    time.Duration
}

func (f *launchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "token name")
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "token symbol")
	cmd.Flags().StringVar(&f.uri, "uri", "", "metadata URI")
	cmd.Flags().IntVar(&f.buyers, "buyers", 3, "buyer wallets in the launch bundle (max 3)")
	cmd.Flags().Float64Var(&f.buySol, "buy-sol", 0, "SOL each buyer spends")
	cmd.Flags().Float64Var(&f.tipSol, "tip-sol", 0, "bundle tip in SOL (default from config)")
	cmd.Flags().Uint64Var(&f.slippageBps, "slippage-bps", 0, "slippage in basis points (default from config)")
	cmd.Flags().StringVar(&f.vanityPrefix, "vanity-prefix", "", "mint address prefix to search for")
	cmd.Flags().StringVar(&f.vanitySuffix, "vanity-suffix", "", "mint address suffix to search for, e.g. pump")
	cmd.Flags().BoolVar(&f.vanityIgnoreCase, "vanity-ignore-case", false, "case-insensitive vanity match")
	cmd.Flags().DurationVar(&f.confirmTimeout, "confirm-timeout", 0, "wait for the bundle to land (default from config)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("uri")
	_ = cmd.MarkFlagRequired("buy-sol")
}

func (f *launchFlags) config(a *app) launch.Config {
	return launch.Config{
		Name:         f.name,
		Symbol:       f.symbol,
		URI:          f.uri,
		BuyerCount:   f.buyers,
		BuyAmountSol: f.buySol,
		TipSol:       a.tipSol(f.tipSol),
		SlippageBps:  a.slippage(f.slippageBps),
		Vanity: vanity.Pattern{
			Prefix:          f.vanityPrefix,
			Suffix:          f.vanitySuffix,
			CaseInsensitive: f.vanityIgnoreCase,
		},
	}
}

func newLaunchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Create a token and buy it in the same bundle",
	}
	cmd.AddCommand(newLaunchRunCmd(a), newLaunchDryRunCmd(a))
	return cmd
}

func newLaunchRunCmd(a *app) *cobra.Command {
	f := &launchFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build, simulate and submit the launch bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.wallets()
			if err != nil {
				return err
			}
			res := a.launcher(f.confirmTimeout).Launch(cmd.Context(), f.config(a), c)
			recordLaunch(cmd.Context(), a.bundleJournal(), res, a.log)

			out := cmd.OutOrStdout()
			pairs := []string{"mint", res.Mint.String(), "elapsed", res.Elapsed.Round(time.Millisecond).String()}
			if res.BundleID != "" {
				pairs = append(pairs, "bundle", res.BundleID, "state", stateStyle(res.Status.State).Render(string(res.Status.State)))
			}
			fmt.Fprint(out, kv(pairs...))
			for _, sig := range res.Signatures {
				fmt.Fprintln(out, mutedStyle.Render(sig))
			}
			if !res.Success {
				if res.Err == nil {
					return errors.New("launch failed")
				}
				return res.Err
			}
			fmt.Fprintln(out, okStyle.Render("launch confirmed"))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newLaunchDryRunCmd(a *app) *cobra.Command {
	f := &launchFlags{}
	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Build and simulate the launch bundle without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.wallets()
			if err != nil {
				return err
			}
			if _, err := a.launcher(f.confirmTimeout).DryRun(cmd.Context(), f.config(a), c); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("launch bundle simulated successfully"))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
