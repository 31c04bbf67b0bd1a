package vault

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ninja0404/pump-bundler/pkg/types"
	"github.com/ninja0404/pump-bundler/pkg/wallet"
)

func TestWalletRoundTrip(t *testing.T) {
	w, err := wallet.Generate(wallet.RoleDev, nil)
	require.NoError(t, err)

	ew, err := EncryptWallet(w, "pw1")
	require.NoError(t, err)
	assert.Equal(t, Algorithm, ew.Algorithm)
	assert.Equal(t, w.Address.String(), ew.PublicKey)

	got, err := DecryptWallet(ew, "pw1")
	require.NoError(t, err)
	assert.Equal(t, w.Address, got.Address)
	assert.Equal(t, w.Key, got.Key)

	_, err = DecryptWallet(ew, "pw2")
	var de *types.DecryptionError
	require.True(t, errors.As(err, &de))
	assert.ErrorIs(t, err, types.ErrDecryption)
}

func TestFreshSaltPerWallet(t *testing.T) {
	w, err := wallet.Generate(wallet.RoleMain, nil)
	require.NoError(t, err)
	a, err := EncryptWallet(w, "pw")
	require.NoError(t, err)
	b, err := EncryptWallet(w, "pw")
	require.NoError(t, err)
	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.EncryptedPrivateKey, b.EncryptedPrivateKey)
}

func TestAddressCrossCheck(t *testing.T) {
	w, err := wallet.Generate(wallet.RoleMain, nil)
	require.NoError(t, err)
	other, err := wallet.Generate(wallet.RoleMain, nil)
	require.NoError(t, err)

	ew, err := EncryptWallet(w, "pw")
	require.NoError(t, err)
	ew.PublicKey = other.Address.String()

	_, err = DecryptWallet(ew, "pw")
	assert.ErrorIs(t, err, types.ErrDecryption)
}

func TestSaveLoad(t *testing.T) {
	c, err := wallet.GenerateCollection(3)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "wallets.json")
	v := New(zerolog.Nop())
	require.NoError(t, v.Save(path, c, "pw1"))
	assert.True(t, Exists(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := v.Load(path, "pw1")
	require.NoError(t, err)
	require.Len(t, loaded.Buyers, 3)
	seen := map[string]bool{}
	for i, b := range loaded.Buyers {
		require.NotNil(t, b.Index)
		assert.Equal(t, i, *b.Index)
		assert.Equal(t, c.Buyers[i].Address, b.Address)
		seen[b.Address.String()] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, c.Main.Address, loaded.Main.Address)
	assert.Equal(t, c.Dev.Address, loaded.Dev.Address)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var f File
	require.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, FormatVersion, f.Version)
	assert.False(t, f.CreatedAt.IsZero())
}

func TestLoadWrongPasswordIsAllOrNothing(t *testing.T) {
	c, err := wallet.GenerateCollection(2)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "wallets.json")
	v := New(zerolog.Nop())
	require.NoError(t, v.Save(path, c, "right"))

	loaded, err := v.Load(path, "wrong")
	assert.Nil(t, loaded)
	assert.ErrorIs(t, err, types.ErrDecryption)
}

func TestExistsMissing(t *testing.T) {
	assert.False(t, Exists(filepath.Join(t.TempDir(), "none.json")))
}
