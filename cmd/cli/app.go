package main

import (
	"context"
	"fmt"
	"io"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ninja0404/pump-bundler/pkg/bundle"
	"github.com/ninja0404/pump-bundler/pkg/config"
	"github.com/ninja0404/pump-bundler/pkg/funding"
	"github.com/ninja0404/pump-bundler/pkg/jito"
	"github.com/ninja0404/pump-bundler/pkg/journal"
	"github.com/ninja0404/pump-bundler/pkg/launch"
	"github.com/ninja0404/pump-bundler/pkg/logging"
	"github.com/ninja0404/pump-bundler/pkg/pricefeed"
	"github.com/ninja0404/pump-bundler/pkg/program/pump"
	"github.com/ninja0404/pump-bundler/pkg/rpc"
	"github.com/ninja0404/pump-bundler/pkg/strategy"
	"github.com/ninja0404/pump-bundler/pkg/txbuilder"
	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/vault"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

// app holds the loaded configuration and lazily built clients for one
// command invocation.
type app struct {
	v   *viper.Viper
	cfg *config.AppConfig
	log zerolog.Logger

	logCloser io.Closer
	client    *rpc.Client
	stream    *rpc.Stream
	relay     *jito.Client
	journal   *journal.Journal
}

func (a *app) load(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath, a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log, a.logCloser = logging.New(cfg.Log, cmd.ErrOrStderr())
	return nil
}

func (a *app) close() {
	if a.stream != nil {
		a.stream.Close()
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close journal")
		}
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}

func (a *app) rpcConfig() config.RPCConfig {
	return a.cfg.RPCConfig(a.log.With().Str("component", "rpc").Logger())
}

func (a *app) rpcClient() *rpc.Client {
	if a.client == nil {
		a.client = rpc.NewClient(a.rpcConfig())
	}
	return a.client
}

func (a *app) wsStream() *rpc.Stream {
	if a.stream == nil {
		a.stream = rpc.NewStream(a.rpcConfig())
	}
	return a.stream
}

func (a *app) jitoClient() *jito.Client {
	if a.relay == nil {
		j := a.cfg.Jito
		a.relay = jito.NewClient(jito.NewTransport(j.Endpoints, j.UUID), jito.Options{
			MaxRetries:   j.MaxRetries,
			PollInterval: j.PollInterval,
			Log:          a.log.With().Str("component", "jito").Logger(),
		})
	}
	return a.relay
}

// bundleJournal opens the journal, or returns nil when it is disabled or
// cannot be opened.
func (a *app) bundleJournal() *journal.Journal {
	if a.journal != nil || a.cfg.Journal.Path == "" {
		return a.journal
	}
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		a.log.Warn().Err(err).Str("path", a.cfg.Journal.Path).Msg("bundle journal disabled")
		return nil
	}
	a.journal = j
	return j
}

func (a *app) adapter() *pump.Adapter {
	return pump.NewAdapter(a.cfg.FeeRecipient())
}

func (a *app) bundleBuilder() *bundle.Builder {
	log := a.log.With().Str("component", "bundle").Logger()
	var sim bundle.Simulator = bundle.Sequential{Chain: a.rpcClient(), Log: log}
	if a.cfg.Jito.SimulateBundle {
		sim = bundle.Atomic{Chain: a.rpcClient(), Log: log}
	}
	return bundle.NewBuilder(a.rpcClient(), sim, log)
}

func (a *app) txBuilder() *txbuilder.Builder {
	b := txbuilder.NewBuilder(a.rpcClient(), solanarpc.CommitmentType(a.cfg.RPC.Commitment)).
		WithLogger(a.log.With().Str("component", "tx").Logger())
	if a.cfg.Jito.SendDirect {
		b = b.WithSender(a.jitoClient())
	}
	return b
}

func (a *app) tipSol(override float64) float64 {
	if override > 0 {
		return override
	}
	return funding.ToSOL(a.cfg.Jito.TipLamports)
}

func (a *app) slippage(override uint64) uint64 {
	if override > 0 {
		return override
	}
	return a.cfg.Trading.SlippageBps
}

func (a *app) feed() *pricefeed.Feed {
	src := pricefeed.RPCSource{Client: a.rpcClient(), Stream: a.wsStream()}
	return pricefeed.NewFeed(src, a.log.With().Str("component", "pricefeed").Logger())
}

// executor builds a trade executor whose bundles are journaled under kind.
func (a *app) executor(kind string, tipSol float64, slippageBps uint64) *strategy.Executor {
	return &strategy.Executor{
		Chain:          a.rpcClient(),
		Adapter:        a.adapter(),
		Bundles:        a.bundleBuilder(),
		Relay:          &journaledRelay{Client: a.jitoClient(), journal: a.bundleJournal(), kind: kind, log: a.log},
		Direct:         a.txBuilder(),
		TipSol:         a.tipSol(tipSol),
		SlippageBps:    a.slippage(slippageBps),
		ConfirmTimeout: a.cfg.Jito.ConfirmTimeout,
		Log:            a.log.With().Str("component", "executor").Logger(),
	}
}

func (a *app) launcher(confirm time.Duration) *launch.Launcher {
	if confirm <= 0 {
		confirm = a.cfg.Jito.ConfirmTimeout
	}
	return launch.New(a.adapter(), a.bundleBuilder(), a.jitoClient(),
		a.log.With().Str("component", "launch").Logger(), launch.WithConfirmTimeout(confirm))
}

func (a *app) distributor() *funding.Distributor {
	return funding.NewDistributor(a.rpcClient(), a.txBuilder(), a.log.With().Str("component", "funding").Logger())
}

func (a *app) wallets() (*wallet.Collection, error) {
	if a.cfg.Wallet.Password == "" {
		return nil, types.NewValidationError("password", "set --password or PUMPB_WALLET_PASSWORD")
	}
	c, err := vault.New(a.log).Load(a.cfg.Wallet.Path, a.cfg.Wallet.Password)
	if err != nil {
		return nil, fmt.Errorf("load wallets from %s: %w", a.cfg.Wallet.Path, err)
	}
	return c, nil
}

// journaledRelay records every bundle it submits and its final state.
type journaledRelay struct {
	*jito.Client
	journal *journal.Journal
	kind    string
	log     zerolog.Logger
}

func (r *journaledRelay) Submit(ctx context.Context, b *bundle.Bundle) (string, error) {
	id, err := r.Client.Submit(ctx, b)
	if err != nil || r.journal == nil {
		return id, err
	}
	e := journal.Entry{BundleID: id, Kind: r.kind, Status: string(jito.StatePending)}
	for _, s := range b.Signatures() {
		e.Signatures = append(e.Signatures, s.String())
	}
	if len(b.Transactions) > 0 {
		e.Mint = tradedMint(b)
	}
	if err := r.journal.Record(ctx, e); err != nil {
		r.log.Warn().Err(err).Str("bundle_id", id).Msg("journal record failed")
	}
	return id, nil
}

func (r *journaledRelay) AwaitConfirmation(ctx context.Context, bundleID string, timeout time.Duration) jito.Status {
	st := r.Client.AwaitConfirmation(ctx, bundleID, timeout)
	if r.journal != nil {
		if err := r.journal.UpdateStatus(ctx, bundleID, string(st.State), st.LandedSlot, st.Error); err != nil {
			r.log.Warn().Err(err).Str("bundle_id", bundleID).Msg("journal update failed")
		}
	}
	return st
}

// tradedMint finds the mint of a pump trade bundle: the third account of
// the first pump instruction.
func tradedMint(b *bundle.Bundle) string {
	msg := b.Transactions[0].Message
	for _, ix := range msg.Instructions {
		prog, err := msg.Program(ix.ProgramIDIndex)
		if err != nil || !prog.Equals(pump.ProgramKey) || len(ix.Accounts) < 3 {
			continue
		}
		if int(ix.Accounts[2]) < len(msg.AccountKeys) {
			return msg.AccountKeys[ix.Accounts[2]].String()
		}
	}
	return ""
}

func recordLaunch(ctx context.Context, j *journal.Journal, res launch.Result, log zerolog.Logger) {
	if j == nil || res.BundleID == "" {
		return
	}
	state := res.Status.State
	if state == "" {
		state = jito.StatePending
	}
	err := j.Record(ctx, journal.Entry{
		BundleID:   res.BundleID,
		Kind:       "launch",
		Mint:       res.Mint.String(),
		Status:     string(state),
		Slot:       res.Status.LandedSlot,
		Error:      res.Status.Error,
		Signatures: res.Signatures,
	})
	if err != nil {
		log.Warn().Err(err).Str("bundle_id", res.BundleID).Msg("journal record failed")
	}
}
