package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/ninja0404/pump-bundler/pkg/strategy"
)

// progressEvery is how often a running session logs its counters.
const progressEvery = 30 * time.Second

// runSession starts run as a session and blocks until it ends. The first
// interrupt asks the session to stop and waits for it; in-flight trades
// finish. A manual trigger is delivered by triggerSignals.
func runSession(cmd *cobra.Command, a *app, kind strategy.Kind, mint solana.PublicKey, mode string, run strategy.RunFunc) error {
	reg := strategy.NewRegistry(a.log.With().Str("component", "strategy").Logger())
	id := reg.Start(context.WithoutCancel(cmd.Context()), kind, mint, mode, run)
	done, err := reg.Done(id)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	trig, stopTrig := triggerSignals()
	defer stopTrig()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render("session "+id)+mutedStyle.Render("  (Ctrl-C to stop)"))

	ticker := time.NewTicker(progressEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			st, err := reg.Get(id)
			if err != nil {
				return err
			}
			fmt.Fprint(out, renderSession(st))
			if st.Errors > 0 && st.TradesExecuted == 0 && st.SellsExecuted == 0 {
				return fmt.Errorf("session %s finished with %d errors: %s", id, st.Errors, st.LastError)
			}
			return nil
		case <-trig:
			if reg.Trigger(id) {
				fmt.Fprintln(out, warnStyle.Render("manual trigger sent"))
			}
		case <-ticker.C:
			if st, err := reg.Get(id); err == nil {
				a.log.Info().Str("session", id).Int("trades", st.TradesExecuted).Int("sells", st.SellsExecuted).
					Float64("volume_sol", st.Volume).Int("errors", st.Errors).Msg("session progress")
			}
		case <-ctx.Done():
			fmt.Fprintln(out, warnStyle.Render("stopping session, waiting for in-flight trades"))
			reg.Stop(id)
			<-done
			st, _ := reg.Get(id)
			fmt.Fprint(out, renderSession(st))
			return nil
		}
	}
}
