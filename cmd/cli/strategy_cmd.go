package main

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/ninja0404/pump-bundler/pkg/strategy"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// tradeFlags are shared by every command that trades.
type tradeFlags struct {
	tipSol      float64
	slippageBps uint64
	planPath    string
	fiatRate    float64
}

func (f *tradeFlags) register(cmd *cobra.Command, withPlan bool) {
	cmd.Flags().Float64Var(&f.tipSol, "tip-sol", 0, "bundle tip in SOL (default from config)")
	cmd.Flags().Uint64Var(&f.slippageBps, "slippage-bps", 0, "slippage in basis points (default from config)")
	if withPlan {
		cmd.Flags().StringVar(&f.planPath, "plan", "", "YAML plan file; its section replaces the flags")
		cmd.Flags().Float64Var(&f.fiatRate, "fiat-rate", 0, "SOL price in fiat, for logging only")
	}
}

func (f *tradeFlags) plan() (*strategy.PlanFile, error) {
	if f.planPath == "" {
		return nil, nil
	}
	return strategy.LoadPlanFile(f.planPath)
}

// sessionDeps loads what every strategy session needs.
func sessionDeps(a *app, kind strategy.Kind, mintArg string, f *tradeFlags) (solana.PublicKey, *wallet.Collection, *strategy.Executor, error) {
	mint, err := parsePubkey("mint", mintArg)
	if err != nil {
		return solana.PublicKey{}, nil, nil, err
	}
	c, err := a.wallets()
	if err != nil {
		return solana.PublicKey{}, nil, nil, err
	}
	return mint, c, a.executor(string(kind), f.tipSol, f.slippageBps), nil
}

func newStrategyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Run a sell strategy in the foreground",
	}
	cmd.AddCommand(newDelayCmd(a), newSmartCmd(a), newAutoCmd(a))
	return cmd
}

func newDelayCmd(a *app) *cobra.Command {
	f := &tradeFlags{}
	var cfg strategy.DelayConfig
	var trigger string
	cmd := &cobra.Command{
		Use:   "delay <mint>",
		Short: "Sell once a trigger fires and a delay has passed",
		Long: "Sell once a trigger fires and a delay has passed. With --trigger manual " +
			"the sale starts on SIGUSR1; any trigger kind can be fired early that way.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Trigger.Kind = strategy.TriggerKind(trigger)
			pf, err := f.plan()
			if err != nil {
				return err
			}
			if pf != nil && pf.Delay != nil {
				cfg = *pf.Delay
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			mint, c, x, err := sessionDeps(a, strategy.KindDelay, args[0], f)
			if err != nil {
				return err
			}
			feed := a.feed()
			feed.SetFiatRate(f.fiatRate)
			engine := strategy.NewDelay(x, feed, c, mint, cfg)
			return runSession(cmd, a, strategy.KindDelay, mint, string(cfg.Trigger.Kind), engine.Run)
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringVar(&trigger, "trigger", string(strategy.TriggerTime), "time, price, marketcap or manual")
	cmd.Flags().DurationVar(&cfg.Trigger.After, "after", 0, "time trigger: wait this long")
	cmd.Flags().Float64Var(&cfg.Trigger.Value, "value", 0, "price or marketcap trigger threshold (raw curve units)")
	cmd.Flags().DurationVar(&cfg.Delay, "delay", 0, "wait after the trigger before selling")
	cmd.Flags().Float64Var(&cfg.Percent, "percent", 100, "percent of holdings to sell")
	cmd.Flags().StringVar(&cfg.Wallets, "wallets", "all", "all, dev, everyone or buyer indices like 0,2")
	return cmd
}

func newSmartCmd(a *app) *cobra.Command {
	f := &tradeFlags{}
	var cfg strategy.SmartConfig
	var levels []string
	cmd := &cobra.Command{
		Use:   "smart <mint>",
		Short: "Sell in steps as the price crosses ascending levels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pf, err := f.plan()
			if err != nil {
				return err
			}
			if pf != nil && pf.Smart != nil {
				cfg = *pf.Smart
			} else {
				parsed, err := parseLevels(levels)
				if err != nil {
					return err
				}
				cfg.Levels = parsed
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			mint, c, x, err := sessionDeps(a, strategy.KindSmart, args[0], f)
			if err != nil {
				return err
			}
			feed := a.feed()
			feed.SetFiatRate(f.fiatRate)
			engine := strategy.NewSmart(x, feed, c, mint, cfg)
			return runSession(cmd, a, strategy.KindSmart, mint, fmt.Sprintf("%d levels", len(cfg.Levels)), engine.Run)
		},
	}
	f.register(cmd, true)
	cmd.Flags().StringArrayVar(&levels, "level", nil, "price:percent[:wallets], repeatable")
	cmd.Flags().DurationVar(&cfg.Spacing, "spacing", 0, "minimum time between two level sells")
	return cmd
}

// parseLevels reads price:percent[:wallets] entries.
func parseLevels(raw []string) ([]strategy.SmartLevel, error) {
	out := make([]strategy.SmartLevel, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, ":", 3)
		if len(parts) < 2 {
			return nil, types.NewValidationError("level", fmt.Sprintf("%q: want price:percent[:wallets]", r))
		}
		price, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, types.NewValidationError("level", fmt.Sprintf("%q: bad price", r))
		}
		pct, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, types.NewValidationError("level", fmt.Sprintf("%q: bad percent", r))
		}
		lvl := strategy.SmartLevel{Price: price, Percent: pct, Wallets: "all"}
		if len(parts) == 3 {
			lvl.Wallets = parts[2]
		}
		out = append(out, lvl)
	}
	return out, nil
}

func newAutoCmd(a *app) *cobra.Command {
	f := &tradeFlags{}
	var cfg strategy.AutoConfig
	var action string
	cmd := &cobra.Command{
		Use:   "auto <mint>",
		Short: "Sell at a price, market cap or profit target, with a stop-loss",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Action = strategy.AutoAction(action)
			pf, err := f.plan()
			if err != nil {
				return err
			}
			if pf != nil && pf.Auto != nil {
				cfg = *pf.Auto
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			mint, c, x, err := sessionDeps(a, strategy.KindAuto, args[0], f)
			if err != nil {
				return err
			}
			feed := a.feed()
			feed.SetFiatRate(f.fiatRate)
			engine := strategy.NewAuto(x, feed, c, mint, cfg)
			return runSession(cmd, a, strategy.KindAuto, mint, string(cfg.Action), engine.Run)
		},
	}
	f.register(cmd, true)
	cmd.Flags().Float64Var(&cfg.TargetPrice, "target-price", 0, "sell when the raw price reaches this")
	cmd.Flags().Float64Var(&cfg.TargetMarketCap, "target-mcap", 0, "sell when the raw market cap reaches this")
	cmd.Flags().Float64Var(&cfg.TargetProfitPct, "target-profit-pct", 0, "sell when the price is up this many percent")
	cmd.Flags().StringVar(&action, "action", string(strategy.ActionSellAll), "sell-all or sell-percentage")
	cmd.Flags().Float64Var(&cfg.Percent, "percent", 0, "percent to sell with sell-percentage")
	cmd.Flags().Float64Var(&cfg.StopLossPrice, "stop-loss-price", 0, "sell everything below this raw price")
	cmd.Flags().Float64Var(&cfg.StopLossDropPct, "stop-loss-drop-pct", 0, "sell everything after this drawdown from the peak")
	cmd.Flags().StringVar(&cfg.Wallets, "wallets", "all", "all, dev, everyone or buyer indices like 0,2")
	return cmd
}

func newVolumeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Generate trading volume with the buyer wallets",
	}

	f := &tradeFlags{}
	var (
		cfg      strategy.VolumeConfig
		pattern  string
		rotation string
		seed     uint64
	)
	start := &cobra.Command{
		Use:   "start <mint>",
		Short: "Replay a generated trade plan until it ends or is interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Pattern = strategy.Pattern(pattern)
			cfg.Rotation = strategy.Rotation(rotation)
			pf, err := f.plan()
			if err != nil {
				return err
			}
			if pf != nil && pf.Volume != nil {
				cfg = *pf.Volume
			}
			cfg.ApplyDefaults()
			if err := cfg.Validate(); err != nil {
				return err
			}
			mint, c, x, err := sessionDeps(a, strategy.KindVolume, args[0], f)
			if err != nil {
				return err
			}
			if len(c.Buyers) == 0 {
				return types.NewValidationError("wallets", "volume needs at least one buyer wallet")
			}
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			rng := rand.New(rand.NewPCG(seed, seed>>1|1))
			v := &strategy.Volume{
				Trader: x,
				Buyers: c.Buyers,
				Mint:   mint,
				Config: cfg,
				Plan:   strategy.GeneratePlan(cfg, len(c.Buyers), rng),
				Rand:   rng,
			}
			a.log.Info().Uint64("seed", seed).Int("trades", len(v.Plan)).Msg("volume plan generated")
			return runSession(cmd, a, strategy.KindVolume, mint, string(cfg.Pattern), v.Run)
		},
	}
	f.register(start, true)
	start.Flags().StringVar(&pattern, "pattern", string(strategy.PatternRandom), "random, waves, pump or organic")
	start.Flags().StringVar(&rotation, "rotation", string(strategy.RotationSequential), "sequential or random wallet rotation")
	start.Flags().DurationVar(&cfg.MinDelay, "min-delay", 5*time.Second, "minimum delay between trades")
	start.Flags().DurationVar(&cfg.MaxDelay, "max-delay", 30*time.Second, "maximum delay between trades")
	start.Flags().Float64Var(&cfg.MinTradeSol, "min-sol", 0.01, "minimum buy size in SOL")
	start.Flags().Float64Var(&cfg.MaxTradeSol, "max-sol", 0.05, "maximum buy size in SOL")
	start.Flags().DurationVar(&cfg.Duration, "duration", 10*time.Minute, "length of the plan")
	start.Flags().IntVar(&cfg.Simultaneous, "simultaneous", 1, "trades bundled together when delays allow")
	start.Flags().Uint64Var(&seed, "seed", 0, "plan seed, random when 0")

	cmd.AddCommand(start)
	return cmd
}

func newSellCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sell",
		Short: "Sell holdings immediately",
	}
	cmd.AddCommand(
		newSellNowCmd(a, "all <mint>", "Sell from the dev and every buyer wallet", "everyone"),
		newSellNowCmd(a, "dev <mint>", "Sell from the dev wallet", "dev"),
		newSellNowCmd(a, "wallet <mint>", "Sell from chosen buyer wallets", ""),
	)
	return cmd
}

func newSellNowCmd(a *app, use, short, selector string) *cobra.Command {
	f := &tradeFlags{}
	var (
		pct     float64
		wallets string
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := types.ValidatePercentage("percent", pct); err != nil {
				return err
			}
			mint, c, x, err := sessionDeps(a, "sell", args[0], f)
			if err != nil {
				return err
			}
			expr := selector
			if expr == "" {
				expr = wallets
			}
			targets, err := c.Select(expr)
			if err != nil {
				return err
			}
			fill, err := x.SellPercent(cmd.Context(), mint, targets, pct)
			fmt.Fprint(cmd.OutOrStdout(), kv(
				"sells", fmt.Sprint(fill.Sells),
				"tokens sold", fmt.Sprint(fill.TokensSold),
				"expected SOL", fmt.Sprintf("%.6f", fill.SolVolume),
			))
			for _, sig := range fill.Signatures {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render(sig))
			}
			return err
		},
	}
	f.register(cmd, false)
	cmd.Flags().Float64Var(&pct, "percent", 100, "percent of holdings to sell")
	if selector == "" {
		cmd.Flags().StringVar(&wallets, "wallets", "", "buyer indices like 0,2")
		_ = cmd.MarkFlagRequired("wallets")
	}
	return cmd
}
