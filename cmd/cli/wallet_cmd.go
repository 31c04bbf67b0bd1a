package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ninja0404/pump-bundler/pkg/funding"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/vault"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

func newWalletCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Manage the encrypted wallet collection",
	}
	cmd.AddCommand(
		newWalletCreateCmd(a),
		newWalletShowCmd(a),
		newWalletFundCmd(a),
		newWalletBalanceCmd(a),
	)
	return cmd
}

func newWalletCreateCmd(a *app) *cobra.Command {
	var (
		buyers int
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Generate main, dev and buyer wallets and save them encrypted",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Wallet.Path
			if a.cfg.Wallet.Password == "" {
				return types.NewValidationError("password", "set --password or PUMPB_WALLET_PASSWORD")
			}
			if vault.Exists(path) && !force {
				return types.NewValidationError("wallet-file", fmt.Sprintf("%s exists, pass --force to replace it", path))
			}
			c, err := wallet.GenerateCollection(buyers)
			if err != nil {
				return err
			}
			if err := vault.New(a.log).Save(path, c, a.cfg.Wallet.Password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("saved %d wallets to %s", len(c.All()), path)))
			fmt.Fprint(cmd.OutOrStdout(), renderCollection(c))
			return nil
		},
	}
	cmd.Flags().IntVar(&buyers, "buyers", 3, "number of buyer wallets")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing wallet file")
	return cmd
}

func newWalletShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print wallet addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.wallets()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderCollection(c))
			return nil
		},
	}
}

func newWalletFundCmd(a *app) *cobra.Command {
	var (
		devSol   float64
		buyerSol float64
		buyers   int
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Send SOL from the main wallet to dev and buyer wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.wallets()
			if err != nil {
				return err
			}
			if buyers < 0 || buyers > len(c.Buyers) {
				buyers = len(c.Buyers)
			}
			plan, err := funding.NewPlan(devSol, buyerSol, buyers)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, kv(
				"dev", fmt.Sprintf("%.4f SOL", funding.ToSOL(plan.Dev)),
				"per buyer", fmt.Sprintf("%.4f SOL x %d", funding.ToSOL(plan.PerBuyer), plan.BuyerCount),
				"fees", fmt.Sprintf("%.6f SOL", funding.ToSOL(plan.EstimatedFees)),
				"total", fmt.Sprintf("%.4f SOL", funding.ToSOL(plan.TotalRequired)),
			))
			d := a.distributor()
			if dryRun {
				have, err := d.CheckBalance(cmd.Context(), c.Main.Address, plan)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("main wallet holds %.4f SOL, plan is affordable", funding.ToSOL(have))))
				return nil
			}
			done, err := d.Distribute(cmd.Context(), c, plan)
			for _, t := range done {
				fmt.Fprintf(out, "%s %s %.4f SOL %s\n", okStyle.Render("funded"), t.To, funding.ToSOL(t.Lamports), mutedStyle.Render(t.Signature.String()))
			}
			return err
		},
	}
	cmd.Flags().Float64Var(&devSol, "dev-sol", 0, "SOL for the dev wallet")
	cmd.Flags().Float64Var(&buyerSol, "buyer-sol", 0, "SOL for each buyer wallet")
	cmd.Flags().IntVar(&buyers, "buyers", -1, "number of buyers to fund (default all)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only check the main wallet balance")
	return cmd
}

func newWalletBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show SOL balances of every wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.wallets()
			if err != nil {
				return err
			}
			t := newTable("wallet", "address", "SOL")
			var total uint64
			for _, b := range a.distributor().Balances(cmd.Context(), c) {
				if b.Err != nil {
					t.Row(b.Label, b.Address.String(), errStyle.Render(b.Err.Error()))
					continue
				}
				total += b.Lamports
				t.Row(b.Label, b.Address.String(), fmt.Sprintf("%.6f", funding.ToSOL(b.Lamports)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("total %.6f SOL", funding.ToSOL(total))))
			return nil
		},
	}
}

func renderCollection(c *wallet.Collection) string {
	t := newTable("wallet", "address")
	for _, w := range c.All() {
		t.Row(w.Label(), w.Address.String())
	}
	return t.String() + "\n"
}
