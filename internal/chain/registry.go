// Package chain holds the static table of known EVM chains and the
// construction rules for custom ones.
//
// Building on the teacher modules (01-stack dials an RPC by id; 06-eip1559
// and 09-events fetch client.ChainID() to avoid cross-chain replay): a
// Chain here is the same {id, rpc} pair those modules worked with, made
// first-class so the dispatcher never has to ask a live node for its own
// identity.
package chain

import (
	"fmt"
	"net/url"
	"strings"
)

// Chain is a known or user-constructed EVM chain.
type Chain struct {
	ID    int64  // positive chain id
	Name  string
	HexID string // "0x" + lowercase hex(ID)
	RPC   string // absolute http(s) URL
}

// hexID computes the canonical hex form of a chain id.
func hexID(id int64) string {
	return fmt.Sprintf("0x%x", id)
}

// builtins is the static table of well-known chains, in display order.
// HexID is filled in by New.
var builtins = []Chain{
	{ID: 1, Name: "Ethereum", RPC: "https://eth.llamarpc.com"},
	{ID: 42161, Name: "Arbitrum", RPC: "https://arb1.arbitrum.io/rpc"},
	{ID: 8453, Name: "Base", RPC: "https://mainnet.base.org"},
	{ID: 137, Name: "Polygon", RPC: "https://polygon-rpc.com"},
	{ID: 10, Name: "Optimism", RPC: "https://mainnet.optimism.io"},
	{ID: 56, Name: "BNB Chain", RPC: "https://bsc-dataseed.binance.org"},
	{ID: 43114, Name: "Avalanche", RPC: "https://api.avax.network/ext/bc/C/rpc"},
}

// Registry is the queryable set of known chains.
type Registry struct {
	byID map[int64]Chain
}

// New builds a Registry seeded with the built-in chains.
func New() *Registry {
	r := &Registry{byID: make(map[int64]Chain, len(builtins))}
	for _, c := range builtins {
		c.HexID = hexID(c.ID)
		r.byID[c.ID] = c
	}
	return r
}

// FindByID returns the chain registered under id, if any.
func (r *Registry) FindByID(id int64) (Chain, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns every known chain, built-in order.
func (r *Registry) All() []Chain {
	out := make([]Chain, 0, len(r.byID))
	for _, c := range builtins {
		out = append(out, r.byID[c.ID])
	}
	return out
}

// NewCustom constructs a Chain from a user-supplied id and RPC URL. id must
// be positive; rpc must parse as an absolute http or https URL.
func NewCustom(id int64, name, rpc string) (Chain, error) {
	if id <= 0 {
		return Chain{}, fmt.Errorf("chain: id must be positive, got %d", id)
	}
	u, err := url.Parse(rpc)
	if err != nil {
		return Chain{}, fmt.Errorf("chain: invalid rpc url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Chain{}, fmt.Errorf("chain: rpc url must be http(s), got scheme %q", u.Scheme)
	}
	if name == "" {
		name = fmt.Sprintf("Chain %d", id)
	}
	return Chain{ID: id, Name: strings.TrimSpace(name), HexID: hexID(id), RPC: rpc}, nil
}
