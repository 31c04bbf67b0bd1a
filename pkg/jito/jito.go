// Package jito submits bundles to the Jito Block Engine and tracks them
// until they land, fail or the wait times out.
//
// For more information, see: https://github.com/jito-labs/jito-go-rpc
package jito

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/ninja0404/pump-bundler/pkg/bundle"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

// MainnetTipAccounts are the official tip accounts, used when the block
// engine cannot be asked for them.
var MainnetTipAccounts = []solana.PublicKey{
	solana.MustPublicKeyFromBase58("96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5"),
	solana.MustPublicKeyFromBase58("HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe"),
	solana.MustPublicKeyFromBase58("Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY"),
	solana.MustPublicKeyFromBase58("ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49"),
	solana.MustPublicKeyFromBase58("DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh"),
	solana.MustPublicKeyFromBase58("ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt"),
	solana.MustPublicKeyFromBase58("DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL"),
	solana.MustPublicKeyFromBase58("3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT"),
}

// Options tunes a Client.
type Options struct {
	// MaxRetries bounds rate-limited submission attempts.
	MaxRetries int
	// RetryDelay is the first backoff interval.
	RetryDelay time.Duration
	// PollInterval is the confirmation polling period.
	PollInterval time.Duration
	Log          zerolog.Logger
}

// Client submits bundles and awaits their confirmation.
type Client struct {
	transport    Transport
	maxRetries   int
	retryDelay   time.Duration
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewClient wraps a transport.
func NewClient(t Transport, opts Options) *Client {
	c := &Client{
		transport:    t,
		maxRetries:   opts.MaxRetries,
		retryDelay:   opts.RetryDelay,
		pollInterval: opts.PollInterval,
		log:          opts.Log,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 5
	}
	if c.retryDelay <= 0 {
		c.retryDelay = 200 * time.Millisecond
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 2 * time.Second
	}
	return c
}

// Submit sends a simulated bundle and returns its id. Bundles that have
// not passed simulation are refused without contacting the relay. Only
// rate limit errors are retried.
func (c *Client) Submit(ctx context.Context, b *bundle.Bundle) (string, error) {
	if b == nil || b.Len() == 0 {
		return "", types.ErrBundleEmpty
	}
	if !b.Simulated() {
		return "", types.ErrBundleNotSimulated
	}
	encoded, err := b.Encode()
	if err != nil {
		return "", err
	}
	id, err := c.send(ctx, encoded)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("bundle_id", id).Int("transactions", b.Len()).Msg("bundle submitted")
	return id, nil
}

// SendTransaction sends one signed transaction as a single-entry bundle and
// returns its signature. Used for direct sells routed through the block engine.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	enc, err := tx.ToBase64()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("encode transaction: %w", err)
	}
	id, err := c.send(ctx, []string{enc})
	if err != nil {
		return solana.Signature{}, err
	}
	var sig solana.Signature
	if len(tx.Signatures) > 0 {
		sig = tx.Signatures[0]
	}
	c.log.Debug().Str("bundle_id", id).Str("signature", sig.String()).Msg("transaction sent via block engine")
	return sig, nil
}

func (c *Client) send(ctx context.Context, encoded []string) (string, error) {
	if c.transport == nil {
		return "", types.ErrNilRelay
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.MaxInterval = c.retryDelay * 10

	op := func() (string, error) {
		id, err := c.transport.SendBundle(ctx, encoded)
		if err == nil {
			return id, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return "", err
		}
		return "", backoff.Permanent(rejection(err))
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Dur("backoff", wait).Msg("block engine rate limited, retrying")
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries)),
		backoff.WithNotify(notify))
}

// AwaitConfirmation polls the relay until the bundle reaches a terminal
// state or timeout elapses. A timeout yields a pending status, not an error.
func (c *Client) AwaitConfirmation(ctx context.Context, bundleID string, timeout time.Duration) Status {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	last := Status{BundleID: bundleID, State: StatePending}
	for {
		if st, ok := c.poll(ctx, bundleID); ok {
			if st.State.Terminal() {
				c.log.Info().Str("bundle_id", bundleID).Str("state", string(st.State)).
					Uint64("slot", st.LandedSlot).Str("error", st.Error).Msg("bundle resolved")
				return st
			}
			if st.State != last.State {
				c.log.Debug().Str("bundle_id", bundleID).Str("state", string(st.State)).Msg("bundle state changed")
			}
			last = st
		}
		select {
		case <-ctx.Done():
			c.log.Warn().Str("bundle_id", bundleID).Dur("timeout", timeout).Msg("bundle confirmation timed out")
			return Status{BundleID: bundleID, State: StatePending}
		case <-ticker.C:
		}
	}
}

// Status returns a one-shot view of a bundle.
func (c *Client) Status(ctx context.Context, bundleID string) Status {
	st, ok := c.poll(ctx, bundleID)
	if !ok {
		return Status{BundleID: bundleID, State: StatePending}
	}
	return st
}

// poll asks the inflight endpoint first and falls back to final statuses
// for bundles the inflight window no longer knows.
func (c *Client) poll(ctx context.Context, bundleID string) (Status, bool) {
	if c.transport == nil {
		return Status{}, false
	}
	var slot uint64
	inflight, err := c.transport.InflightStatuses(ctx, []string{bundleID})
	if err != nil {
		c.log.Debug().Err(err).Str("bundle_id", bundleID).Msg("inflight status poll failed")
	}
	for _, s := range inflight {
		if s.BundleID != "" && s.BundleID != bundleID {
			continue
		}
		s.BundleID = bundleID
		r := fromInflight(s)
		slot = r.Slot
		if r.Outcome == OutcomeRejected || r.Outcome == OutcomeAccepted {
			return MapResult(r), true
		}
	}

	final, err := c.transport.FinalStatuses(ctx, []string{bundleID})
	if err != nil {
		c.log.Debug().Err(err).Str("bundle_id", bundleID).Msg("bundle status poll failed")
	}
	for _, s := range final {
		s.BundleID = bundleID
		if r := fromFinal(s, slot); r.Outcome != OutcomeUnknown {
			return MapResult(r), true
		}
	}
	if slot > 0 {
		return MapResult(Result{BundleID: bundleID, Outcome: OutcomeProcessed, Slot: slot}), true
	}
	return Status{}, false
}

// TipAccounts asks the block engine for tip accounts and falls back to the
// known mainnet list when that fails.
func (c *Client) TipAccounts(ctx context.Context) []solana.PublicKey {
	if c.transport != nil {
		raw, err := c.transport.TipAccounts(ctx)
		if err == nil {
			out := make([]solana.PublicKey, 0, len(raw))
			for _, s := range raw {
				if pk, err := solana.PublicKeyFromBase58(s); err == nil {
					out = append(out, pk)
				}
			}
			if len(out) > 0 {
				return out
			}
		} else {
			c.log.Warn().Err(err).Msg("tip account lookup failed, using built-in list")
		}
	}
	return append([]solana.PublicKey(nil), MainnetTipAccounts...)
}

// RandomTipAccount picks one tip account.
func (c *Client) RandomTipAccount(ctx context.Context) solana.PublicKey {
	accounts := c.TipAccounts(ctx)
	return accounts[rand.Intn(len(accounts))]
}

// rejection turns a non-retryable send error into a RelayRejection.
func rejection(err error) error {
	return fmt.Errorf("%w: %w", &types.RelayRejection{
		Reason: ParseRejectReason(err.Error()),
		Detail: err.Error(),
	}, err)
}

func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
