// Package wallet holds the signer abstraction and the launch wallet set
// (main funding wallet, dev creator wallet, ordered buyers).
package wallet

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Signer produces detached signatures over compiled transaction messages.
type Signer interface {
	PublicKey() solana.PublicKey
	SignMessage(ctx context.Context, message []byte) (solana.Signature, error)
}

// Local signs with an in-memory key.
type Local struct {
	key solana.PrivateKey
}

// NewLocalFromPrivateKey wraps key.
func NewLocalFromPrivateKey(key solana.PrivateKey) Local {
	return Local{key: key}
}

func (l Local) PublicKey() solana.PublicKey { return l.key.PublicKey() }

// SignMessage signs message unless ctx is already done.
func (l Local) SignMessage(ctx context.Context, message []byte) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}
	sig, err := l.key.Sign(message)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("sign message as %s: %w", l.key.PublicKey(), err)
	}
	return sig, nil
}
