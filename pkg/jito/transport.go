package jito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	jitorpc "github.com/jito-labs/jito-go-rpc"
)

// Default Jito Block Engine endpoints
const (
	MainnetBlockEngine = "https://mainnet.block-engine.jito.wtf/api/v1"
	TestnetBlockEngine = "https://testnet.block-engine.jito.wtf/api/v1"
)

// MainnetBlockEngines contains all available Jito mainnet endpoints.
// Rotating through them spreads the per-IP rate limit.
var MainnetBlockEngines = []string{
	"https://mainnet.block-engine.jito.wtf/api/v1",
	"https://amsterdam.mainnet.block-engine.jito.wtf/api/v1",
	"https://frankfurt.mainnet.block-engine.jito.wtf/api/v1",
	"https://ny.mainnet.block-engine.jito.wtf/api/v1",
	"https://tokyo.mainnet.block-engine.jito.wtf/api/v1",
}

// ErrRateLimited marks a transport error the block engine asked us to back off from.
var ErrRateLimited = errors.New("block engine rate limited")

// InflightStatus is one entry of getInflightBundleStatuses.
type InflightStatus struct {
	BundleID   string `json:"bundle_id"`
	Status     string `json:"status"`
	LandedSlot uint64 `json:"landed_slot"`
}

// FinalStatus is one entry of getBundleStatuses.
type FinalStatus struct {
	BundleID           string
	ConfirmationStatus string
}

// Transport is the raw block engine API.
type Transport interface {
	SendBundle(ctx context.Context, encoded []string) (string, error)
	TipAccounts(ctx context.Context) ([]string, error)
	InflightStatuses(ctx context.Context, ids []string) ([]InflightStatus, error)
	FinalStatuses(ctx context.Context, ids []string) ([]FinalStatus, error)
}

// rpcTransport talks JSON-RPC to the block engine, rotating endpoints per call.
type rpcTransport struct {
	endpoints []string
	uuid      string
	next      atomic.Uint32
}

// NewTransport returns the JSON-RPC transport over endpoints.
func NewTransport(endpoints []string, uuid string) Transport {
	if len(endpoints) == 0 {
		endpoints = []string{MainnetBlockEngine}
	}
	return &rpcTransport{endpoints: endpoints, uuid: uuid}
}

func (t *rpcTransport) client() *jitorpc.JitoJsonRpcClient {
	idx := t.next.Add(1)
	return jitorpc.NewJitoJsonRpcClient(t.endpoints[int(idx)%len(t.endpoints)], t.uuid)
}

func (t *rpcTransport) SendBundle(ctx context.Context, encoded []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, err := t.client().SendBundle([][]string{encoded})
	if err != nil {
		return "", classify("sendBundle", err)
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("decode bundle id: %w", err)
	}
	return id, nil
}

func (t *rpcTransport) TipAccounts(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := t.client().GetTipAccounts()
	if err != nil {
		return nil, classify("getTipAccounts", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, fmt.Errorf("decode tip accounts: %w", err)
	}
	return accounts, nil
}

func (t *rpcTransport) InflightStatuses(ctx context.Context, ids []string) ([]InflightStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := t.client().GetInflightBundleStatuses(ids)
	if err != nil {
		return nil, classify("getInflightBundleStatuses", err)
	}
	var out struct {
		Value []InflightStatus `json:"value"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode inflight statuses: %w", err)
	}
	return out.Value, nil
}

func (t *rpcTransport) FinalStatuses(ctx context.Context, ids []string) ([]FinalStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := t.client().GetBundleStatuses(ids)
	if err != nil {
		return nil, classify("getBundleStatuses", err)
	}
	if resp == nil {
		return nil, nil
	}
	out := make([]FinalStatus, 0, len(resp.Value))
	for i, v := range resp.Value {
		fs := FinalStatus{ConfirmationStatus: string(v.ConfirmationStatus)}
		if i < len(ids) {
			fs.BundleID = ids[i]
		}
		out = append(out, fs)
	}
	return out, nil
}

// classify tags rate limit replies so callers can retry just those.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "congested") || strings.Contains(msg, "429") {
		return fmt.Errorf("%s: %w: %v", op, ErrRateLimited, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
