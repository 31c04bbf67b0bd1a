package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ninja0404/pump-bundler/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}
	var configPath string

	root := &cobra.Command{
		Use:           "pumpb",
		Short:         "Launch pump.fun tokens with bundled buys and run trading strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd, configPath)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	flags.String("rpc-url", "", "RPC endpoint (network default if empty)")
	flags.String("ws-url", "", "websocket endpoint (derived from rpc-url if empty)")
	flags.String("network", "", "mainnet, devnet or custom")
	flags.String("log-level", "", "log level (debug|info|warn|error)")
	flags.String("wallet-file", "", "encrypted wallet file")
	flags.String("password", "", "wallet password (or PUMPB_WALLET_PASSWORD)")
	flags.String("journal", "", "bundle journal sqlite path, empty string keeps the configured one")
	bind(a, flags.Lookup("rpc-url"), "rpc.url")
	bind(a, flags.Lookup("ws-url"), "rpc.ws_url")
	bind(a, flags.Lookup("network"), "network")
	bind(a, flags.Lookup("log-level"), "log.level")
	bind(a, flags.Lookup("wallet-file"), "wallet.path")
	bind(a, flags.Lookup("password"), "wallet.password")
	bind(a, flags.Lookup("journal"), "journal.path")

	root.AddCommand(
		newConfigCmd(a),
		newWalletCmd(a),
		newLaunchCmd(a),
		newPriceCmd(a),
		newCurveCmd(a),
		newSellCmd(a),
		newStrategyCmd(a),
		newVolumeCmd(a),
		newBundleCmd(a),
	)
	return root
}

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := a.v.AllSettings()
			if w, ok := settings["wallet"].(map[string]any); ok && w["password"] != "" {
				w["password"] = "********"
			}
			out, err := yaml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			rpcCfg := a.rpcConfig()
			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("effective configuration"))
			fmt.Fprintf(cmd.OutOrStdout(), "rpc=%s\nws=%s\n\n%s", rpcCfg.ResolveRPCURL(), rpcCfg.ResolveWSURL(), out)
			return nil
		},
	}
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
