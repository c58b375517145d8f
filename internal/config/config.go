// Package config holds the resolved, immutable-for-the-session
// configuration a BrowserRuntime launch is built from.
package config

import (
	"net/url"

	"walletbridge/internal/bridgeerr"
	"walletbridge/internal/chain"
	"walletbridge/internal/walletstore"
)

// Session is the immutable configuration for one browser session, produced
// by the interactive workflow (or flags) and consumed by BrowserRuntime.
type Session struct {
	Wallet        walletstore.Wallet
	Chain         chain.Chain
	URL           string
	CaptureID     string
	FigmaEndpoint string // "<submit base>/capture/<CaptureID>"
	Debug         bool
}

// Validate checks the invariants BrowserRuntime relies on: an http(s)
// target URL and a non-empty wallet address.
func (s Session) Validate() error {
	if s.Wallet.Address == "" {
		return &bridgeerr.InvalidInput{Reason: "wallet has no address"}
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return &bridgeerr.InvalidInput{Reason: "target url: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &bridgeerr.InvalidInput{Reason: "target url must be http(s), got scheme " + u.Scheme}
	}
	return nil
}
