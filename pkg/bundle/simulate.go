package bundle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/ninja0404/pump-bundler/pkg/rpc"
	"github.com/ninja0404/pump-bundler/pkg/types"
)

// TxSimulator simulates a single transaction.
type TxSimulator interface {
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*solanarpc.SimulateTransactionResult, error)
}

// Sequential simulates each transaction on its own, in order, stopping at
// the first failure. Transactions that depend on earlier ones in the same
// batch (a buy of a mint created by the first transaction) fail here; use
// Atomic for those when the node supports it.
type Sequential struct {
	Chain TxSimulator
	Log   zerolog.Logger
}

// Simulate implements Simulator.
func (s Sequential) Simulate(ctx context.Context, txs []*solana.Transaction) error {
	for i, tx := range txs {
		res, err := s.Chain.SimulateTransaction(ctx, tx)
		if err != nil {
			return fmt.Errorf("simulate transaction %d: %w", i, err)
		}
		if res.Err != nil {
			s.Log.Error().Int("index", i).Interface("err", res.Err).Strs("logs", res.Logs).Msg("simulation failed")
			return types.ParseSimulationError(i, res.Err, res.Logs)
		}
		s.Log.Debug().Int("index", i).Int("logs", len(res.Logs)).Msg("transaction simulated")
	}
	return nil
}

// BundleSimulatorRPC runs a simulateBundle call.
type BundleSimulatorRPC interface {
	SimulateBundle(ctx context.Context, encoded []string) (*rpc.BundleSimulation, error)
}

// Atomic simulates the whole batch as one bundle so later transactions see
// the effects of earlier ones.
type Atomic struct {
	Chain BundleSimulatorRPC
	Log   zerolog.Logger
}

// Simulate implements Simulator.
func (a Atomic) Simulate(ctx context.Context, txs []*solana.Transaction) error {
	encoded, err := (&Bundle{Transactions: txs}).Encode()
	if err != nil {
		return err
	}
	res, err := a.Chain.SimulateBundle(ctx, encoded)
	if err != nil {
		return fmt.Errorf("simulate bundle: %w", err)
	}
	if res.Succeeded() {
		return nil
	}

	index := len(res.TransactionResults)
	var errVal interface{}
	var logs []string
	for i, r := range res.TransactionResults {
		if r.Err != nil {
			index, errVal, logs = i, r.Err, r.Logs
			break
		}
	}
	if errVal == nil {
		var summary interface{}
		if err := json.Unmarshal(res.Summary, &summary); err != nil || summary == nil {
			summary = string(res.Summary)
		}
		errVal = summary
	}
	a.Log.Error().Int("index", index).Interface("err", errVal).Strs("logs", logs).Msg("bundle simulation failed")
	return types.ParseSimulationError(index, errVal, logs)
}
