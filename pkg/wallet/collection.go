package wallet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/ninja0404/pump-bundler/pkg/types"
)

// Role identifies what a wallet is used for in a launch.
type Role string

const (
	RoleMain  Role = "main"
	RoleDev   Role = "dev"
	RoleBuyer Role = "buyer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleMain, RoleDev, RoleBuyer:
		return true
	}
	return false
}

// Wallet is a keypair with its launch role. Index is set for buyers only.
type Wallet struct {
	Address solana.PublicKey
	Key     solana.PrivateKey
	Role    Role
	Index   *int
}

// Signer returns a local signer over the wallet key.
func (w Wallet) Signer() Signer {
	return NewLocalFromPrivateKey(w.Key)
}

// Label is a short human name, e.g. "dev" or "buyer#2".
func (w Wallet) Label() string {
	if w.Index != nil {
		return fmt.Sprintf("%s#%d", w.Role, *w.Index)
	}
	return string(w.Role)
}

// Generate creates a wallet with a fresh random key.
func Generate(role Role, index *int) (Wallet, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Wallet{}, fmt.Errorf("generate %s wallet: %w", role, err)
	}
	return Wallet{Address: key.PublicKey(), Key: key, Role: role, Index: cloneIndex(index)}, nil
}

// Import builds a wallet from a base58 secret key.
func Import(secret string, role Role, index *int) (Wallet, error) {
	raw, err := base58.Decode(strings.TrimSpace(secret))
	if err != nil {
		return Wallet{}, types.NewValidationError("privateKey", "not valid base58")
	}
	return ImportBytes(raw, role, index)
}

// ImportBytes builds a wallet from a 64-byte secret key.
func ImportBytes(raw []byte, role Role, index *int) (Wallet, error) {
	if len(raw) != 64 {
		return Wallet{}, types.NewValidationError("privateKey", fmt.Sprintf("expected 64 bytes, got %d", len(raw)))
	}
	key := solana.PrivateKey(append([]byte(nil), raw...))
	return Wallet{Address: key.PublicKey(), Key: key, Role: role, Index: cloneIndex(index)}, nil
}

// IsValidAddress reports whether s decodes to a 32-byte public key.
func IsValidAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// Collection is the full wallet set of one launch.
type Collection struct {
	Main   Wallet
	Dev    Wallet
	Buyers []Wallet
}

// GenerateCollection creates main, dev and buyerCount buyers.
func GenerateCollection(buyerCount int) (*Collection, error) {
	if buyerCount < 0 {
		return nil, types.NewValidationError("buyerCount", "cannot be negative")
	}
	mainWallet, err := Generate(RoleMain, nil)
	if err != nil {
		return nil, err
	}
	dev, err := Generate(RoleDev, nil)
	if err != nil {
		return nil, err
	}
	c := &Collection{Main: mainWallet, Dev: dev, Buyers: make([]Wallet, 0, buyerCount)}
	for i := 0; i < buyerCount; i++ {
		b, err := Generate(RoleBuyer, &i)
		if err != nil {
			return nil, err
		}
		c.Buyers = append(c.Buyers, b)
	}
	return c, nil
}

// All returns main, dev and the buyers in order.
func (c *Collection) All() []Wallet {
	out := make([]Wallet, 0, len(c.Buyers)+2)
	out = append(out, c.Main, c.Dev)
	return append(out, c.Buyers...)
}

// Validate checks roles, contiguous buyer indices from 0 and unique addresses.
func (c *Collection) Validate() error {
	if c == nil {
		return types.NewValidationError("wallets", "collection is nil")
	}
	if c.Main.Role != RoleMain || c.Dev.Role != RoleDev {
		return types.NewValidationError("wallets", "main and dev wallets must carry their roles")
	}
	seen := make(map[solana.PublicKey]string, len(c.Buyers)+2)
	for _, w := range c.All() {
		if w.Address.IsZero() {
			return types.NewValidationError(w.Label(), "address is empty")
		}
		if len(w.Key) == 64 && w.Key.PublicKey() != w.Address {
			return types.NewValidationError(w.Label(), "key does not match address")
		}
		if prev, dup := seen[w.Address]; dup {
			return types.NewValidationError(w.Label(), "duplicate address, also used by "+prev)
		}
		seen[w.Address] = w.Label()
	}
	for i, b := range c.Buyers {
		if b.Role != RoleBuyer {
			return types.NewValidationError("buyers", fmt.Sprintf("wallet %d has role %s", i, b.Role))
		}
		if b.Index == nil || *b.Index != i {
			return types.NewValidationError("buyers", fmt.Sprintf("buyer at position %d has non-contiguous index", i))
		}
	}
	return nil
}

// Summary lists the collection's addresses without key material.
type Summary struct {
	Main   string   `json:"main"`
	Dev    string   `json:"dev"`
	Buyers []string `json:"buyers"`
}

// Summary returns addresses only.
func (c *Collection) Summary() Summary {
	s := Summary{Main: c.Main.Address.String(), Dev: c.Dev.Address.String()}
	for _, b := range c.Buyers {
		s.Buyers = append(s.Buyers, b.Address.String())
	}
	return s
}

// Select resolves a sell target expression: "all" (every buyer), "dev",
// "all+dev", or a comma separated list of buyer indices such as "0,2".
func (c *Collection) Select(expr string) ([]Wallet, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	switch expr {
	case "", "all":
		return append([]Wallet(nil), c.Buyers...), nil
	case "dev":
		return []Wallet{c.Dev}, nil
	case "all+dev", "everyone":
		return append([]Wallet{c.Dev}, c.Buyers...), nil
	}

	var out []Wallet
	picked := make(map[int]bool)
	for _, part := range strings.Split(expr, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, types.NewValidationError("wallets", fmt.Sprintf("unknown selector %q", part))
		}
		if idx < 0 || idx >= len(c.Buyers) {
			return nil, types.NewValidationError("wallets", fmt.Sprintf("buyer index %d out of range [0,%d)", idx, len(c.Buyers)))
		}
		if picked[idx] {
			continue
		}
		picked[idx] = true
		out = append(out, c.Buyers[idx])
	}
	return out, nil
}

func cloneIndex(index *int) *int {
	if index == nil {
		return nil
	}
	v := *index
	return &v
}
