package walletstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletbridge/internal/bridgeerr"
)

func TestCreateDeriveAddressInvariant(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	w, err := s.Create("primary")
	require.NoError(t, err)
	assert.True(t, privateKeyPattern.MatchString(w.PrivateKey), "private key %q does not match canonical hex form", w.PrivateKey)

	priv, err := crypto.HexToECDSA(w.PrivateKey[2:])
	require.NoError(t, err)
	assert.Equal(t, w.Address, deriveAddress(priv))
}

func TestImportRejectsMalformedKey(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Import("bad", "not-a-key")
	assert.Error(t, err, "expected error for malformed key")

	_, err = s.Import("bad", "0x1234")
	assert.Error(t, err, "expected error for short key")
}

func TestLoadPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1 := New(dir)
	w, err := s1.Create("alpha")
	require.NoError(t, err)

	s2 := New(dir)
	wallets, err := s2.Load()
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, w.Address, wallets[0].Address)
}

func TestDeleteByAddress(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	w, _ := s.Create("alpha")
	require.NoError(t, s.Delete(w.Address))

	wallets, _ := s.Load()
	assert.Empty(t, wallets)

	err := s.Delete(w.Address)
	assert.Error(t, err, "expected error deleting already-removed address")
}

func TestCreateEphemeralNotPersisted(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	_, err := s.Create("saved")
	require.NoError(t, err)

	eph, err := CreateEphemeral()
	require.NoError(t, err)

	wallets, _ := s.Load()
	for _, w := range wallets {
		assert.NotEqual(t, eph.Address, w.Address, "ephemeral wallet must not be persisted")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	path := filepath.Join(dir, "wallets.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := s.Load()
	require.Error(t, err)
	var corrupt *bridgeerr.WalletStoreCorrupt
	require.ErrorAs(t, err, &corrupt)
}
