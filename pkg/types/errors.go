package types

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors
var (
	// Parameter validation errors
	ErrNilRPC           = errors.New("rpc client is nil")
	ErrNilSigner        = errors.New("signer is nil")
	ErrNilRelay         = errors.New("relay client is nil")
	ErrZeroAmount       = errors.New("amount must be greater than 0")
	ErrInvalidSlippage  = errors.New("slippage bps must be <= 10000")
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrNoInstructions   = errors.New("requires at least one instruction")
	ErrInvalidConfig    = errors.New("invalid configuration")

	// Lookup errors
	ErrNotFound             = errors.New("not found")
	ErrAccountNotFound      = fmt.Errorf("account %w", ErrNotFound)
	ErrBondingCurveNotFound = fmt.Errorf("bonding curve %w", ErrNotFound)
	ErrTokenAccountNotFound = fmt.Errorf("token account %w", ErrNotFound)
	ErrSessionNotFound      = fmt.Errorf("session %w", ErrNotFound)
	ErrBundleRecordNotFound = fmt.Errorf("bundle record %w", ErrNotFound)

	// Transaction and bundle errors
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCurveComplete       = errors.New("bonding curve complete")
	ErrSimulationFailed    = errors.New("simulation failed")
	ErrBundleTooLarge      = errors.New("bundle exceeds maximum transaction count")
	ErrBundleEmpty         = errors.New("bundle requires at least one transaction")
	ErrBundleNotSimulated  = errors.New("bundle has not passed simulation")
	ErrRelayRejected       = errors.New("relay rejected bundle")

	// Vault errors
	ErrDecryption = errors.New("decryption failed")
)

// RPCError wraps RPC failures with operation context.
type RPCError struct {
	Op  string
	Err error
}

func (e RPCError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e RPCError) Unwrap() error {
	return e.Err
}

// ValidationError represents an invalid or missing parameter. It is always
// raised before any network call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// ProgramError represents on-chain program execution errors.
type ProgramError struct {
	Program string
	Code    int
	Message string
	Logs    []string
}

func (e ProgramError) Error() string {
	if e.Program == "" {
		return fmt.Sprintf("program error [%d]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("program %s error [%d]: %s", e.Program, e.Code, e.Message)
}

// SimulationError contains simulation failure details for one transaction
// of a batch.
type SimulationError struct {
	Index int
	Err   interface{}
	Logs  []string
}

func (e SimulationError) Error() string {
	return fmt.Sprintf("simulation failed for transaction %d: %v", e.Index, e.Err)
}

func (e SimulationError) Unwrap() error {
	return ErrSimulationFailed
}

// RejectReason enumerates relay-side rejection causes.
type RejectReason string

const (
	RejectSimulationFailure RejectReason = "simulation_failure"
	RejectBidTooLow         RejectReason = "bid_too_low"
	RejectInternalError     RejectReason = "internal_error"
	RejectDropped           RejectReason = "dropped"
)

// RelayRejection carries the relay-provided rejection detail.
type RelayRejection struct {
	Reason RejectReason
	Detail string
}

func (e RelayRejection) Error() string {
	var msg string
	switch e.Reason {
	case RejectSimulationFailure:
		msg = "bundle simulation failed on relay"
	case RejectBidTooLow:
		msg = "tip too low for auction"
	case RejectInternalError:
		msg = "relay internal error"
	case RejectDropped:
		msg = "bundle dropped"
	default:
		msg = "bundle rejected"
	}
	if e.Detail != "" {
		return msg + ": " + e.Detail
	}
	return msg
}

func (e RelayRejection) Unwrap() error {
	return ErrRelayRejected
}

// DecryptionError reports a wrong password or a corrupted wallet record.
type DecryptionError struct {
	Address string
	Err     error
}

func (e DecryptionError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("decrypt wallet: %v", e.Err)
	}
	return fmt.Sprintf("decrypt wallet %s: %v", e.Address, e.Err)
}

func (e DecryptionError) Unwrap() []error {
	return []error{ErrDecryption, e.Err}
}

// ParseSimulationError extracts error details from a simulation result.
// The returned error always matches ErrSimulationFailed.
func ParseSimulationError(index int, errVal interface{}, logs []string) error {
	if errVal == nil {
		return nil
	}

	if errMap, ok := errVal.(map[string]interface{}); ok {
		if instErr, exists := errMap["InstructionError"]; exists {
			if errSlice, ok := instErr.([]interface{}); ok && len(errSlice) >= 2 {
				if customErr, ok := errSlice[1].(map[string]interface{}); ok {
					if code, exists := customErr["Custom"]; exists {
						if codeNum, ok := code.(float64); ok {
							codeInt := int(codeNum)
							account := extractAccountFromLogs(logs)
							return fmt.Errorf("%w: %w", &SimulationError{Index: index, Err: errVal, Logs: logs}, &ProgramError{
								Program: "pump",
								Code:    codeInt,
								Message: parseErrorCode(codeInt, account),
								Logs:    logs,
							})
						}
					}
				}
			}
		}
	}

	return &SimulationError{Index: index, Err: errVal, Logs: logs}
}

// extractAccountFromLogs extracts the account name from Anchor error logs.
func extractAccountFromLogs(logs []string) string {
	const marker = "caused by account: "
	for _, log := range logs {
		if idx := strings.Index(log, marker); idx >= 0 {
			rest := log[idx+len(marker):]
			if end := strings.Index(rest, "."); end >= 0 {
				return rest[:end]
			}
			return rest
		}
	}
	return ""
}

// pumpErrors maps the bonding curve program's custom codes.
var pumpErrors = map[int]string{
	6000: "the given account is not authorized to execute this instruction",
	6001: "the program is already initialized",
	6002: "slippage: too much SOL required to buy the given amount of tokens",
	6003: "slippage: too little SOL received to sell the given amount of tokens",
	6004: "the mint does not match the bonding curve",
	6005: "the bonding curve has completed and liquidity migrated to raydium",
	6006: "the bonding curve has not completed",
	6007: "the program is not initialized",
	6020: "buy amount is zero",
	6023: "not enough tokens to sell",
	6024: "sell amount is zero",
}

// parseErrorCode converts an error code to a human-readable message.
func parseErrorCode(code int, account string) string {
	switch code {
	case 3012:
		if account != "" {
			return fmt.Sprintf("account '%s' not initialized (create the account first)", account)
		}
		return "account not initialized"
	case 2023:
		return "token program constraint violated (wrong token program for mint)"
	case 3008:
		return "program ID was not as expected (wrong program)"
	}
	if msg, ok := pumpErrors[code]; ok {
		if account != "" && code == 6023 {
			return fmt.Sprintf("%s (account: %s)", msg, account)
		}
		return msg
	}
	return fmt.Sprintf("error code %d", code)
}

// IsNotFound reports whether err is one of the lookup errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
