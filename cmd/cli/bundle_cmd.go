package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ninja0404/pump-bundler/pkg/jito"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

func newBundleCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Inspect submitted bundles",
	}

	var wait time.Duration
	status := &cobra.Command{
		Use:   "status <bundle-id>",
		Short: "Ask the block engine for a bundle's state and update the journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			relay := a.jitoClient()
			var st jito.Status
			if wait > 0 {
				st = relay.AwaitConfirmation(cmd.Context(), id, wait)
			} else {
				st = relay.Status(cmd.Context(), id)
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderBundleStatus(st))

			j := a.bundleJournal()
			if j == nil {
				return nil
			}
			e, err := j.Get(cmd.Context(), id)
			switch {
			case errors.Is(err, types.ErrNotFound):
				fmt.Fprintln(out, mutedStyle.Render("not in the local journal"))
				return nil
			case err != nil:
				return err
			}
			fmt.Fprint(out, kv(
				"kind", e.Kind,
				"mint", e.Mint,
				"recorded", e.CreatedAt.Format(time.DateTime),
				"transactions", fmt.Sprint(len(e.Signatures)),
			))
			if st.State != jito.StatePending {
				return j.UpdateStatus(cmd.Context(), id, string(st.State), st.LandedSlot, st.Error)
			}
			return nil
		},
	}
	status.Flags().DurationVar(&wait, "wait", 0, "poll until the bundle resolves or this much time passes")

	var limit int
	recent := &cobra.Command{
		Use:   "recent",
		Short: "List recently journaled bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			j := a.bundleJournal()
			if j == nil {
				return types.NewValidationError("journal", "bundle journal is disabled")
			}
			entries, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			t := newTable("when", "kind", "mint", "state", "bundle")
			for _, e := range entries {
				t.Row(e.CreatedAt.Format(time.DateTime), e.Kind, e.Mint,
					stateStyle(jito.State(e.Status)).Render(e.Status), e.BundleID)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
	recent.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries")

	cmd.AddCommand(status, recent)
	return cmd
}
