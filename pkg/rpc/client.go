package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ninja0404/pump-bundler/pkg/config"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

// Client wraps solana-go rpc.Client with retry, timeout, and rate limiting.
type Client struct {
	raw     *solanarpc.Client
	cfg     config.RPCConfig
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient builds a configured Client.
func NewClient(cfg config.RPCConfig) *Client {
	endpoint := cfg.ResolveRPCURL()
	rpcClient := solanarpc.New(endpoint)

	var limiter *rate.Limiter
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst == 0 {
			burst = int(cfg.RateLimit.RPS * 2)
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), burst)
	}

	log := cfg.Logger
	if log.GetLevel() == zerolog.NoLevel {
		log = zerolog.Nop()
	}

	return &Client{
		raw:     rpcClient,
		cfg:     cfg,
		limiter: limiter,
		log:     log,
	}
}

// Raw exposes the underlying solana-go client.
func (c *Client) Raw() *solanarpc.Client {
	return c.raw
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.RPCConfig {
	return c.cfg
}

func (c *Client) commitment() solanarpc.CommitmentType {
	if c.cfg.Commitment == "" {
		return solanarpc.CommitmentConfirmed
	}
	return solanarpc.CommitmentType(c.cfg.Commitment)
}

// GetLatestBlockhash fetches the latest blockhash at the configured commitment.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var out *solanarpc.GetLatestBlockhashResult
	err := c.call(ctx, "getLatestBlockhash", func(ctx context.Context) error {
		var err error
		out, err = c.raw.GetLatestBlockhash(ctx, c.commitment())
		return err
	})
	if err != nil {
		return solana.Hash{}, err
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, types.RPCError{Op: "getLatestBlockhash", Err: errors.New("empty response")}
	}
	return out.Value.Blockhash, nil
}

// GetAccountData returns the raw account bytes, or nil when the account does not exist.
func (c *Client) GetAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	var out *solanarpc.GetAccountInfoResult
	err := c.call(ctx, "getAccountInfo", func(ctx context.Context) error {
		var err error
		out, err = c.raw.GetAccountInfoWithOpts(ctx, addr, &solanarpc.GetAccountInfoOpts{
			Commitment: c.commitment(),
			Encoding:   solana.EncodingBase64,
		})
		if errors.Is(err, solanarpc.ErrNotFound) {
			out, err = nil, nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Value == nil || out.Value.Data == nil {
		return nil, nil
	}
	return out.Value.Data.GetBinary(), nil
}

// GetMultipleAccounts pulls several accounts in one call, keyed by address.
// Missing accounts are absent from the map.
func (c *Client) GetMultipleAccounts(ctx context.Context, addrs ...solana.PublicKey) (map[solana.PublicKey]*solanarpc.Account, error) {
	out := make(map[solana.PublicKey]*solanarpc.Account, len(addrs))
	if len(addrs) == 0 {
		return out, nil
	}
	var res *solanarpc.GetMultipleAccountsResult
	err := c.call(ctx, "getMultipleAccounts", func(ctx context.Context) error {
		var err error
		res, err = c.raw.GetMultipleAccountsWithOpts(ctx, addrs, &solanarpc.GetMultipleAccountsOpts{
			Commitment: c.commitment(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	for i, v := range res.Value {
		if v == nil || i >= len(addrs) {
			continue
		}
		out[addrs[i]] = v
	}
	return out, nil
}

// GetBalance returns the lamport balance of an address.
func (c *Client) GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	var out *solanarpc.GetBalanceResult
	err := c.call(ctx, "getBalance", func(ctx context.Context) error {
		var err error
		out, err = c.raw.GetBalance(ctx, addr, c.commitment())
		return err
	})
	if err != nil {
		return 0, err
	}
	return out.Value, nil
}

// GetTokenBalance returns the raw amount held in a token account. A missing
// account yields types.ErrTokenAccountNotFound.
func (c *Client) GetTokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	var out *solanarpc.GetTokenAccountBalanceResult
	err := c.call(ctx, "getTokenAccountBalance", func(ctx context.Context) error {
		var err error
		out, err = c.raw.GetTokenAccountBalance(ctx, tokenAccount, c.commitment())
		return err
	})
	if err != nil {
		if isMissingAccount(err) {
			return 0, fmt.Errorf("%s: %w", tokenAccount, types.ErrTokenAccountNotFound)
		}
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("%s: %w", tokenAccount, types.ErrTokenAccountNotFound)
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}

// SendTransaction submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error) {
	var sig solana.Signature
	err := c.call(ctx, "sendTransaction", func(ctx context.Context) error {
		var err error
		sig, err = c.raw.SendTransactionWithOpts(ctx, tx, opts)
		return err
	})
	return sig, err
}

// SimulateTransaction dry-runs a signed transaction against current state.
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*solanarpc.SimulateTransactionResult, error) {
	var res *solanarpc.SimulateTransactionResponse
	err := c.call(ctx, "simulateTransaction", func(ctx context.Context) error {
		var err error
		res, err = c.raw.SimulateTransactionWithOpts(ctx, tx, &solanarpc.SimulateTransactionOpts{
			SigVerify:  true,
			Commitment: c.commitment(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, types.RPCError{Op: "simulateTransaction", Err: errors.New("empty response")}
	}
	return res.Value, nil
}

// GetSignatureStatus returns the status of one signature, or nil when the
// cluster has not seen it yet.
func (c *Client) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solanarpc.SignatureStatusesResult, error) {
	var res *solanarpc.GetSignatureStatusesResult
	err := c.call(ctx, "getSignatureStatuses", func(ctx context.Context) error {
		var err error
		res, err = c.raw.GetSignatureStatuses(ctx, true, sig)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

func (c *Client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return types.RPCError{Op: op, Err: err}
		}
	}

	if !c.cfg.Retry.Enabled {
		if err := fn(ctx); err != nil {
			return types.RPCError{Op: op, Err: err}
		}
		return nil
	}

	attempts := c.cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}

		if !retryable(err) || i == attempts-1 {
			break
		}
		backoff := c.backoff(i)
		c.log.Debug().
			Str("op", op).
			Int("attempt", i+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("rpc retry")

		select {
		case <-ctx.Done():
			return types.RPCError{Op: op, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}
	return types.RPCError{Op: op, Err: fmt.Errorf("failed after %d attempts: %w", attempts, err)}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

func (c *Client) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := c.cfg.Retry.InitialBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > c.cfg.Retry.MaxBackoff && c.cfg.Retry.MaxBackoff > 0 {
			delay = c.cfg.Retry.MaxBackoff
			break
		}
	}
	if c.cfg.Retry.Jitter && delay/2 > 0 {
		jitter := rand.Int63n(int64(delay / 2))
		delay = delay/2 + time.Duration(jitter)
	}
	return delay
}

func retryable(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	// Missing accounts do not appear by retrying.
	if errors.Is(err, solanarpc.ErrNotFound) || isMissingAccount(err) {
		return false
	}
	return true
}

// isMissingAccount matches the node's "could not find account" style replies.
func isMissingAccount(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") ||
		strings.Contains(msg, "invalid param: could not find")
}

// BundleSimulation is the value of a simulateBundle reply from a
// block-engine enabled node.
type BundleSimulation struct {
	// Summary is the string "succeeded" or an object describing the failure.
	Summary            json.RawMessage  `json:"summary"`
	TransactionResults []BundleTxResult `json:"transactionResults"`
}

// BundleTxResult is the per-transaction part of a bundle simulation.
type BundleTxResult struct {
	Err           interface{} `json:"err"`
	Logs          []string    `json:"logs"`
	UnitsConsumed *uint64     `json:"unitsConsumed"`
}

// Succeeded reports whether every transaction in the bundle executed.
func (s *BundleSimulation) Succeeded() bool {
	var summary string
	return json.Unmarshal(s.Summary, &summary) == nil && summary == "succeeded"
}

// SimulateBundle runs base64 encoded transactions as one atomic bundle
// against current state. Only nodes running the block-engine patch serve it.
func (c *Client) SimulateBundle(ctx context.Context, encoded []string) (*BundleSimulation, error) {
	nulls := make([]interface{}, len(encoded))
	params := []interface{}{
		map[string]interface{}{"encodedTransactions": encoded},
		map[string]interface{}{
			"preExecutionAccountsConfigs":  nulls,
			"postExecutionAccountsConfigs": nulls,
			"transactionEncoding":          "base64",
			"skipSigVerify":                false,
			"replaceRecentBlockhash":       false,
		},
	}
	var out struct {
		Value *BundleSimulation `json:"value"`
	}
	err := c.call(ctx, "simulateBundle", func(ctx context.Context) error {
		return c.raw.RPCCallForInto(ctx, &out, "simulateBundle", params)
	})
	if err != nil {
		return nil, err
	}
	if out.Value == nil {
		return nil, types.RPCError{Op: "simulateBundle", Err: errors.New("empty response")}
	}
	return out.Value, nil
}
