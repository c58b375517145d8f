// Package bridgeerr defines the error kinds shared across the bridge's
// components, per the error handling design: each kind is surfaced by a
// specific component and propagated according to its own policy (to the
// page, to the workflow only, or logged and swallowed).
package bridgeerr

import "fmt"

// InvalidInput indicates malformed input: a bad private key, chain id, or
// non-http(s) URL.
type InvalidInput struct {
	Reason string
}

func (e *InvalidInput) Error() string { return "invalid input: " + e.Reason }

// UpstreamRpcFailed wraps a network error or a JSON-RPC error response from
// the configured chain RPC endpoint.
type UpstreamRpcFailed struct {
	Method  string
	Message string
}

func (e *UpstreamRpcFailed) Error() string {
	return fmt.Sprintf("upstream rpc %s failed: %s", e.Method, e.Message)
}

// SigningRejected indicates the attached approver rejected a TxRequest.
type SigningRejected struct {
	Message string
}

func (e *SigningRejected) Error() string { return e.Message }

// ScriptFetchFailed indicates the capture script could not be retrieved.
// Never surfaced to the page; reported to the workflow only.
type ScriptFetchFailed struct {
	URL string
	Err error
}

func (e *ScriptFetchFailed) Error() string {
	return fmt.Sprintf("fetch capture script from %s: %v", e.URL, e.Err)
}

func (e *ScriptFetchFailed) Unwrap() error { return e.Err }

// BrowserDisconnected indicates the browser closed unexpectedly, terminating
// the session.
type BrowserDisconnected struct {
	Reason string
}

func (e *BrowserDisconnected) Error() string { return "browser disconnected: " + e.Reason }

// ProbeFailed indicates the environment probe could not confirm a
// prerequisite before browser launch.
type ProbeFailed struct {
	Reason string
}

func (e *ProbeFailed) Error() string { return "environment probe failed: " + e.Reason }

// WalletStoreCorrupt indicates the wallets file exists but could not be
// parsed. The caller is expected to delete the file and restart.
type WalletStoreCorrupt struct {
	Path string
	Err  error
}

func (e *WalletStoreCorrupt) Error() string {
	return fmt.Sprintf("wallet store at %s is corrupt: %v (delete the file and restart)", e.Path, e.Err)
}

func (e *WalletStoreCorrupt) Unwrap() error { return e.Err }
