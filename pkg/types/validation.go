package types

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ValidateBuyParams validates common buy parameters.
func ValidateBuyParams(solAmount, maxCost uint64) error {
	if solAmount == 0 {
		return NewValidationError("solAmount", "must be greater than 0")
	}
	if maxCost < solAmount {
		return NewValidationError("maxSolCost", "must be >= sol amount")
	}
	return nil
}

// ValidateSellParams validates common sell parameters.
func ValidateSellParams(amount uint64) error {
	if amount == 0 {
		return NewValidationError("amount", "must be greater than 0")
	}
	return nil
}

// ValidateSlippage validates slippage basis points.
func ValidateSlippage(slippageBps uint64) error {
	if slippageBps > 10000 {
		return NewValidationError("slippageBps", "must be <= 10000 (100%)")
	}
	return nil
}

// ValidatePercentage validates a sell percentage in (0, 100].
func ValidatePercentage(name string, pct float64) error {
	if pct <= 0 || pct > 100 {
		return NewValidationError(name, "must be between 1 and 100")
	}
	return nil
}

// ValidatePublicKey validates a public key is not zero.
func ValidatePublicKey(name string, key solana.PublicKey) error {
	if key.IsZero() {
		return NewValidationError(name, "cannot be zero")
	}
	return nil
}

// ValidateNotBlank validates a required string parameter.
func ValidateNotBlank(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(name, "cannot be empty")
	}
	return nil
}
