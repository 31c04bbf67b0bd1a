// Package vault encrypts wallet collections at rest.
//
// Each secret key is base58 encoded, then sealed with AES-256-GCM under a key
// derived by scrypt from the password and a per-wallet random salt. Loading
// is all-or-nothing: one bad record fails the whole collection.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/scrypt"

	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

const (
	// FormatVersion is written to every saved file.
	FormatVersion = "1.0"
	// Algorithm tags every encrypted record.
	Algorithm = "scrypt-aes256-gcm"

	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	keyLen    = 32
	saltLen   = 16
	nonceSize = 12
)

// EncryptedWallet is one sealed wallet record.
type EncryptedWallet struct {
	EncryptedPrivateKey string      `json:"encryptedPrivateKey"`
	PublicKey           string      `json:"publicKey"`
	Role                wallet.Role `json:"role"`
	Index               *int        `json:"index,omitempty"`
	Algorithm           string      `json:"algorithm"`
	Salt                string      `json:"salt"`
	Nonce               string      `json:"nonce"`
}

// File is the on-disk document for one collection.
type File struct {
	Version   string            `json:"version"`
	CreatedAt time.Time         `json:"createdAt"`
	Main      EncryptedWallet   `json:"main"`
	Dev       EncryptedWallet   `json:"dev"`
	Buyers    []EncryptedWallet `json:"buyers"`
}

// Vault seals and persists collections.
type Vault struct {
	log zerolog.Logger
	now func() time.Time
}

// New returns a vault that logs through log.
func New(log zerolog.Logger) *Vault {
	return &Vault{log: log, now: time.Now}
}

// EncryptWallet seals w under password with a fresh salt and nonce.
func EncryptWallet(w wallet.Wallet, password string) (EncryptedWallet, error) {
	if password == "" {
		return EncryptedWallet{}, types.NewValidationError("password", "cannot be empty")
	}
	if len(w.Key) != 64 {
		return EncryptedWallet{}, types.NewValidationError(w.Label(), "wallet has no secret key")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return EncryptedWallet{}, fmt.Errorf("read salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedWallet{}, fmt.Errorf("read nonce: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return EncryptedWallet{}, err
	}
	sealed := gcm.Seal(nil, nonce, []byte(base58.Encode(w.Key)), nil)

	return EncryptedWallet{
		EncryptedPrivateKey: base64.StdEncoding.EncodeToString(sealed),
		PublicKey:           w.Address.String(),
		Role:                w.Role,
		Index:               w.Index,
		Algorithm:           Algorithm,
		Salt:                base64.StdEncoding.EncodeToString(salt),
		Nonce:               base64.StdEncoding.EncodeToString(nonce),
	}, nil
}

// DecryptWallet opens a sealed record. A wrong password, tampered data or
// an address that does not match the decrypted key yields *types.DecryptionError.
func DecryptWallet(ew EncryptedWallet, password string) (wallet.Wallet, error) {
	fail := func(err error) (wallet.Wallet, error) {
		return wallet.Wallet{}, &types.DecryptionError{Address: ew.PublicKey, Err: err}
	}
	if ew.Algorithm != Algorithm {
		return fail(fmt.Errorf("unsupported algorithm %q", ew.Algorithm))
	}
	salt, err := base64.StdEncoding.DecodeString(ew.Salt)
	if err != nil || len(salt) != saltLen {
		return fail(errors.New("malformed salt"))
	}
	nonce, err := base64.StdEncoding.DecodeString(ew.Nonce)
	if err != nil || len(nonce) != nonceSize {
		return fail(errors.New("malformed nonce"))
	}
	sealed, err := base64.StdEncoding.DecodeString(ew.EncryptedPrivateKey)
	if err != nil {
		return fail(errors.New("malformed ciphertext"))
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return fail(err)
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return fail(errors.New("wrong password or corrupted data"))
	}
	w, err := wallet.Import(string(plain), ew.Role, ew.Index)
	if err != nil {
		return fail(errors.New("decrypted key is malformed"))
	}
	if w.Address.String() != ew.PublicKey {
		return fail(errors.New("decrypted key does not match address"))
	}
	return w, nil
}

// EncryptCollection seals every wallet of c.
func (v *Vault) EncryptCollection(c *wallet.Collection, password string) (*File, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	f := &File{Version: FormatVersion, CreatedAt: v.now().UTC().Truncate(time.Second)}
	var err error
	if f.Main, err = EncryptWallet(c.Main, password); err != nil {
		return nil, fmt.Errorf("encrypt main: %w", err)
	}
	if f.Dev, err = EncryptWallet(c.Dev, password); err != nil {
		return nil, fmt.Errorf("encrypt dev: %w", err)
	}
	f.Buyers = make([]EncryptedWallet, 0, len(c.Buyers))
	for _, b := range c.Buyers {
		eb, err := EncryptWallet(b, password)
		if err != nil {
			return nil, fmt.Errorf("encrypt %s: %w", b.Label(), err)
		}
		f.Buyers = append(f.Buyers, eb)
	}
	return f, nil
}

// DecryptCollection opens every record or none.
func (v *Vault) DecryptCollection(f *File, password string) (*wallet.Collection, error) {
	if f.Version != FormatVersion {
		v.log.Warn().Str("version", f.Version).Str("expected", FormatVersion).Msg("wallet file version mismatch")
	}
	mainWallet, err := DecryptWallet(f.Main, password)
	if err != nil {
		return nil, err
	}
	dev, err := DecryptWallet(f.Dev, password)
	if err != nil {
		return nil, err
	}
	c := &wallet.Collection{Main: mainWallet, Dev: dev, Buyers: make([]wallet.Wallet, 0, len(f.Buyers))}
	for _, eb := range f.Buyers {
		b, err := DecryptWallet(eb, password)
		if err != nil {
			return nil, err
		}
		c.Buyers = append(c.Buyers, b)
	}
	if err := c.Validate(); err != nil {
		return nil, &types.DecryptionError{Err: err}
	}
	return c, nil
}

// Save encrypts c and writes it to path with owner-only permissions,
// creating parent directories as needed.
func (v *Vault) Save(path string, c *wallet.Collection, password string) error {
	f, err := v.EncryptCollection(c, password)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallet file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create wallet dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write wallet file: %w", err)
	}
	v.log.Info().Str("path", path).Int("buyers", len(c.Buyers)).Msg("wallets saved")
	return nil
}

// Load reads and decrypts the collection at path.
func (v *Vault) Load(path, password string) (*wallet.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &types.DecryptionError{Err: fmt.Errorf("parse wallet file: %w", err)}
	}
	return v.DecryptCollection(&f, password)
}

// Exists reports whether a wallet file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist) && err == nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
