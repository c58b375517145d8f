package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletbridge/internal/chain"
	"walletbridge/internal/walletstore"
)

func validSession() Session {
	return Session{
		Wallet: walletstore.Wallet{Name: "dev", Address: "0xabc", PrivateKey: "0xdead"},
		Chain:  chain.Chain{Name: "local", ID: 1337, HexID: "0x539", RPC: "http://127.0.0.1:8545"},
		URL:    "https://example.com/app",
	}
}

func TestValidateAcceptsWellFormedSession(t *testing.T) {
	require.NoError(t, validSession().Validate())
}

func TestValidateRejectsEmptyWalletAddress(t *testing.T) {
	s := validSession()
	s.Wallet.Address = ""
	assert.Error(t, s.Validate())
}

func TestValidateRejectsNonHTTPScheme(t *testing.T) {
	s := validSession()
	s.URL = "ftp://example.com"
	assert.Error(t, s.Validate())
}

func TestValidateRejectsUnparsableURL(t *testing.T) {
	s := validSession()
	s.URL = "://not-a-url"
	assert.Error(t, s.Validate())
}
