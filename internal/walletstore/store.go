// Package walletstore manages the on-disk set of named wallets.
//
// Building on the teacher's module 03 (key generation, address derivation,
// keystore persistence): walletstore applies the same
// crypto.GenerateKey/PubkeyToAddress pair but persists a flat JSON array of
// {name, address, privateKey} instead of an encrypted keystore file, per
// this tool's data model — there is no passphrase in the loop because the
// secrets here are disposable test wallets for a browser session, not
// funds-bearing accounts.
package walletstore

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"walletbridge/internal/bridgeerr"
)

var privateKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Wallet is a named key pair.
type Wallet struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	PrivateKey string `json:"privateKey"`
}

// Store is a file-backed set of wallets.
type Store struct {
	path string // full path to wallets.json
}

// New returns a Store backed by <configDir>/wallets.json. The directory is
// not created until a wallet is first saved.
func New(configDir string) *Store {
	return &Store{path: filepath.Join(configDir, "wallets.json")}
}

// Load reads every persisted wallet. A missing file is treated as empty.
func (s *Store) Load() ([]Wallet, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walletstore: read: %w", err)
	}
	var wallets []Wallet
	if err := json.Unmarshal(data, &wallets); err != nil {
		return nil, &bridgeerr.WalletStoreCorrupt{Path: s.path, Err: err}
	}
	return wallets, nil
}

func (s *Store) save(wallets []Wallet) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("walletstore: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(wallets, "", "  ")
	if err != nil {
		return fmt.Errorf("walletstore: marshal: %w", err)
	}
	return os.WriteFile(s.path, data, 0o600)
}

// deriveAddress recovers the checksummed hex address for a private key.
func deriveAddress(priv *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(priv.Public().(*ecdsa.PublicKey)).Hex()
}

func normalizeKey(priv *ecdsa.PrivateKey) string {
	return fmt.Sprintf("0x%064x", crypto.FromECDSA(priv))
}

// Create generates a fresh key pair, appends it to the store under name,
// and persists it.
func (s *Store) Create(name string) (Wallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return Wallet{}, fmt.Errorf("walletstore: generate key: %w", err)
	}
	return s.appendWallet(name, priv)
}

// Import adds a wallet from a caller-supplied private key.
func (s *Store) Import(name, privateKeyHex string) (Wallet, error) {
	priv, err := parsePrivateKey(privateKeyHex)
	if err != nil {
		return Wallet{}, err
	}
	return s.appendWallet(name, priv)
}

func (s *Store) appendWallet(name string, priv *ecdsa.PrivateKey) (Wallet, error) {
	w := Wallet{Name: name, Address: deriveAddress(priv), PrivateKey: normalizeKey(priv)}
	wallets, err := s.Load()
	if err != nil {
		return Wallet{}, err
	}
	wallets = append(wallets, w)
	if err := s.save(wallets); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// CreateEphemeral generates a fresh key pair that is never persisted.
func CreateEphemeral() (Wallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return Wallet{}, fmt.Errorf("walletstore: generate ephemeral key: %w", err)
	}
	return Wallet{Name: "ephemeral", Address: deriveAddress(priv), PrivateKey: normalizeKey(priv)}, nil
}

// Delete removes the wallet with the given address, matched case-insensitively.
func (s *Store) Delete(address string) error {
	wallets, err := s.Load()
	if err != nil {
		return err
	}
	out := wallets[:0]
	found := false
	for _, w := range wallets {
		if strings.EqualFold(w.Address, address) {
			found = true
			continue
		}
		out = append(out, w)
	}
	if !found {
		return fmt.Errorf("walletstore: no wallet with address %s", address)
	}
	return s.save(out)
}

func parsePrivateKey(hex string) (*ecdsa.PrivateKey, error) {
	if !privateKeyPattern.MatchString(hex) {
		return nil, fmt.Errorf("walletstore: invalid private key format")
	}
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(hex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("walletstore: parse private key: %w", err)
	}
	return priv, nil
}
