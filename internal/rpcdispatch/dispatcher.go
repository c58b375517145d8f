// Package rpcdispatch implements the host-side classifier that answers
// wallet-meta RPC calls locally, signs messages/typed data/transactions
// (optionally through an attached approver), or forwards everything else to
// the configured chain RPC endpoint.
//
// The signing paths are the teacher's go-ethereum idiom end to end: key
// parsing and address derivation follow module 03, personal_sign follows
// the accounts.TextHash + crypto.Sign convention go-ethereum's own RPC
// server uses, eth_signTypedData_v4 follows the EIP-712 apitypes hashing
// go-ethereum ships, and eth_sendTransaction follows modules 05/06 (nonce,
// gas price, types.SignTx with an EIP-155 signer) before forwarding the
// raw transaction the same way every other method is forwarded.
package rpcdispatch

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"walletbridge/internal/approver"
	"walletbridge/internal/bridgeerr"
	"walletbridge/internal/chain"
	"walletbridge/internal/log"
)

// Dispatcher classifies and answers every RPC call the injected provider
// forwards from the page.
type Dispatcher struct {
	Chain      chain.Chain
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
	Bus        *approver.Bus
	HTTPClient *http.Client

	// OnSettled, if set, is called with every terminal TxRequest outcome
	// (for the audit trail). Never required for correctness.
	OnSettled func(req *approver.TxRequest, value string, err error)
}

// New constructs a Dispatcher. httpClient may be nil, in which case a
// client with a conservative default timeout is used.
func New(c chain.Chain, address common.Address, priv *ecdsa.PrivateKey, bus *approver.Bus, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{Chain: c, Address: address, PrivateKey: priv, Bus: bus, HTTPClient: httpClient}
}

// Dispatch answers, signs, or forwards method per spec.md §4.2.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params []any) (any, error) {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		return []string{d.Address.Hex()}, nil

	case "eth_chainId":
		return d.Chain.HexID, nil

	case "net_version":
		return strconv.FormatInt(d.Chain.ID, 10), nil

	case "wallet_requestPermissions", "wallet_getPermissions":
		return []map[string]string{{"parentCapability": "eth_accounts"}}, nil

	case "wallet_switchEthereumChain", "wallet_addEthereumChain":
		// Reference behaviour: no-op success, no chainChanged notification.
		// See SPEC_FULL.md / DESIGN.md open question.
		return nil, nil

	case "personal_sign":
		return d.dispatchSigning(ctx, method, params, d.personalSignDisplay(params), d.personalSignSigner(params))

	case "eth_signTypedData_v4":
		return d.dispatchSigning(ctx, method, params, d.typedDataDisplay(params), d.typedDataSigner(params))

	case "eth_sendTransaction":
		return d.dispatchSigning(ctx, method, params, d.sendTxDisplay(params), d.sendTxSigner(ctx, params))

	default:
		return d.forward(ctx, method, params)
	}
}

// dispatchSigning is the single decision point for approval policy: if the
// bus has an attached approver, a TxRequest is emitted and awaited;
// otherwise the signer runs immediately.
func (d *Dispatcher) dispatchSigning(_ context.Context, method string, params []any, display []approver.DisplayField, signer func() (string, error)) (any, error) {
	seq := d.Bus.NextSequenceID()
	req := approver.NewTxRequest(seq, method, params, display, signer)

	if !d.Bus.HasApprover() {
		val, err := req.Sign()
		d.settled(req, val, err)
		return val, err
	}

	d.Bus.Emit(req)
	val, err := req.Wait()
	d.settled(req, val, err)
	if err != nil {
		return nil, &bridgeerr.SigningRejected{Message: err.Error()}
	}
	return val, nil
}

func (d *Dispatcher) settled(req *approver.TxRequest, val string, err error) {
	if d.OnSettled != nil {
		d.OnSettled(req, val, err)
	}
}

// --- personal_sign -----------------------------------------------------

func (d *Dispatcher) personalSignDisplay(params []any) []approver.DisplayField {
	payload, _ := firstStringParam(params)
	message := decodeUTF8IfPrintable(payload)
	return []approver.DisplayField{{Key: "message", Value: message}}
}

func (d *Dispatcher) personalSignSigner(params []any) func() (string, error) {
	return func() (string, error) {
		payload, err := firstStringParam(params)
		if err != nil {
			return "", err
		}
		raw, err := hexutil.Decode(payload)
		if err != nil {
			return "", &bridgeerr.InvalidInput{Reason: "personal_sign: payload is not hex: " + err.Error()}
		}
		hash := accounts.TextHash(raw)
		return d.signHash(hash)
	}
}

// decodeUTF8IfPrintable decodes a hex payload as UTF-8 only when every byte
// is printable ASCII or tab/CR/LF; otherwise the original hex is kept.
func decodeUTF8IfPrintable(hexPayload string) string {
	raw, err := hexutil.Decode(hexPayload)
	if err != nil {
		return hexPayload
	}
	for _, b := range raw {
		if b == '\t' || b == '\r' || b == '\n' {
			continue
		}
		if b < 0x20 || b > 0x7e {
			return hexPayload
		}
	}
	return string(raw)
}

// --- eth_signTypedData_v4 ----------------------------------------------

func (d *Dispatcher) typedDataDisplay(params []any) []approver.DisplayField {
	td, err := parseTypedData(params)
	if err != nil {
		return []approver.DisplayField{
			{Key: "domain", Value: "Unknown"},
			{Key: "primaryType", Value: "Unknown"},
			{Key: "data", Value: "{}"},
		}
	}
	domainName := "Unknown"
	if td.Domain.Name != "" {
		domainName = td.Domain.Name
	}
	primaryType := "Unknown"
	if td.PrimaryType != "" {
		primaryType = td.PrimaryType
	}
	pretty, err := json.MarshalIndent(td.Message, "", "  ")
	if err != nil {
		pretty = []byte("{}")
	}
	return []approver.DisplayField{
		{Key: "domain", Value: domainName},
		{Key: "primaryType", Value: primaryType},
		{Key: "data", Value: string(pretty)},
	}
}

func (d *Dispatcher) typedDataSigner(params []any) func() (string, error) {
	return func() (string, error) {
		td, err := parseTypedData(params)
		if err != nil {
			return "", err
		}
		hash, _, err := apitypes.TypedDataAndHash(td)
		if err != nil {
			return "", fmt.Errorf("eth_signTypedData_v4: hash typed data: %w", err)
		}
		return d.signHash(hash)
	}
}

func parseTypedData(params []any) (apitypes.TypedData, error) {
	payload, err := nthStringParam(params, 1)
	if err != nil {
		return apitypes.TypedData{}, err
	}
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(payload), &td); err != nil {
		return apitypes.TypedData{}, &bridgeerr.InvalidInput{Reason: "eth_signTypedData_v4: invalid typed data json: " + err.Error()}
	}
	return td, nil
}

// --- eth_sendTransaction -------------------------------------------------

type txParams struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
}

func parseTxParams(params []any) (txParams, error) {
	if len(params) == 0 {
		return txParams{}, &bridgeerr.InvalidInput{Reason: "eth_sendTransaction: missing params"}
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return txParams{}, &bridgeerr.InvalidInput{Reason: "eth_sendTransaction: malformed params"}
	}
	var tp txParams
	if err := json.Unmarshal(raw, &tp); err != nil {
		return txParams{}, &bridgeerr.InvalidInput{Reason: "eth_sendTransaction: malformed params"}
	}
	return tp, nil
}

func (d *Dispatcher) sendTxDisplay(params []any) []approver.DisplayField {
	tp, err := parseTxParams(params)
	if err != nil {
		return []approver.DisplayField{{Key: "to", Value: "(contract creation)"}, {Key: "value", Value: "0 ETH"}, {Key: "data", Value: "(none)"}, {Key: "gas", Value: "auto"}}
	}

	to := tp.To
	if to == "" {
		to = "(contract creation)"
	}

	value := "0 ETH"
	if tp.Value != "" {
		if formatted, err := weiHexToEth(tp.Value); err == nil {
			value = formatted
		} else {
			value = tp.Value
		}
	}

	data := "(none)"
	if tp.Data != "" {
		n := len(tp.Data)
		preview := tp.Data
		if n > 20 {
			preview = tp.Data[:20]
		}
		kBytes := 0
		if n > 2 {
			kBytes = (n - 2) / 2
		}
		data = fmt.Sprintf("%s…(%d bytes)", preview, kBytes)
	}

	gas := "auto"
	if tp.Gas != "" {
		gas = tp.Gas
	}

	return []approver.DisplayField{
		{Key: "to", Value: to},
		{Key: "value", Value: value},
		{Key: "data", Value: data},
		{Key: "gas", Value: gas},
	}
}

// weiHexToEth formats a "0x..."-encoded wei amount as "N ETH".
func weiHexToEth(hexWei string) (string, error) {
	wei, err := hexutil.DecodeBig(hexWei)
	if err != nil {
		return "", err
	}
	ether := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18))
	return strings.TrimRight(strings.TrimRight(ether.Text('f', 8), "0"), ".") + " ETH", nil
}

func (d *Dispatcher) sendTxSigner(ctx context.Context, params []any) func() (string, error) {
	return func() (string, error) {
		tp, err := parseTxParams(params)
		if err != nil {
			return "", err
		}

		nonce, err := d.fetchNonce(ctx)
		if err != nil {
			return "", err
		}
		gasPrice, err := d.fetchGasPrice(ctx)
		if err != nil {
			return "", err
		}

		var to *common.Address
		if tp.To != "" {
			addr := common.HexToAddress(tp.To)
			to = &addr
		}

		value := big.NewInt(0)
		if tp.Value != "" {
			v, err := hexutil.DecodeBig(tp.Value)
			if err == nil {
				value = v
			}
		}

		var data []byte
		if tp.Data != "" {
			data, _ = hexutil.Decode(tp.Data)
		}

		gasLimit := uint64(21000)
		if tp.Gas != "" {
			if g, err := hexutil.DecodeUint64(tp.Gas); err == nil {
				gasLimit = g
			}
		}

		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       to,
			Value:    value,
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     data,
		})

		signed, err := types.SignTx(tx, types.NewEIP155Signer(big.NewInt(d.Chain.ID)), d.PrivateKey)
		if err != nil {
			return "", fmt.Errorf("eth_sendTransaction: sign: %w", err)
		}

		rawBytes, err := signed.MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("eth_sendTransaction: encode: %w", err)
		}

		result, err := d.forward(ctx, "eth_sendRawTransaction", []any{hexutil.Encode(rawBytes)})
		if err != nil {
			return "", err
		}
		if hash, ok := result.(string); ok && hash != "" {
			return hash, nil
		}
		return signed.Hash().Hex(), nil
	}
}

func (d *Dispatcher) fetchNonce(ctx context.Context) (uint64, error) {
	result, err := d.forward(ctx, "eth_getTransactionCount", []any{d.Address.Hex(), "pending"})
	if err != nil {
		return 0, err
	}
	s, _ := result.(string)
	return hexutil.DecodeUint64(s)
}

func (d *Dispatcher) fetchGasPrice(ctx context.Context) (*big.Int, error) {
	result, err := d.forward(ctx, "eth_gasPrice", []any{})
	if err != nil {
		return nil, err
	}
	s, _ := result.(string)
	return hexutil.DecodeBig(s)
}

// --- signing primitive ---------------------------------------------------

func (d *Dispatcher) signHash(hash []byte) (string, error) {
	sig, err := crypto.Sign(hash, d.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign hash: %w", err)
	}
	sig[64] += 27 // recovery id -> Ethereum's v convention
	return hexutil.Encode(sig), nil
}

// --- forwarding -----------------------------------------------------------

type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// forward relays method to chain.RPC as a standard JSON-RPC 2.0 POST and
// returns the decoded .result, or a *bridgeerr.UpstreamRpcFailed.
func (d *Dispatcher) forward(ctx context.Context, method string, params []any) (any, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, &bridgeerr.UpstreamRpcFailed{Method: method, Message: err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Chain.RPC, bytes.NewReader(body))
	if err != nil {
		return nil, &bridgeerr.UpstreamRpcFailed{Method: method, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &bridgeerr.UpstreamRpcFailed{Method: method, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &bridgeerr.UpstreamRpcFailed{Method: method, Message: err.Error()}
	}

	var parsed jsonRPCResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &bridgeerr.UpstreamRpcFailed{Method: method, Message: "malformed response: " + err.Error()}
	}
	if parsed.Error != nil {
		return nil, &bridgeerr.UpstreamRpcFailed{Method: method, Message: parsed.Error.Message}
	}

	var result any
	if len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, &result); err != nil {
			return nil, &bridgeerr.UpstreamRpcFailed{Method: method, Message: "malformed result: " + err.Error()}
		}
	}
	log.RPC.Debug().Str("method", method).Msg("forwarded to chain rpc")
	return result, nil
}

// --- param helpers ---------------------------------------------------------

func firstStringParam(params []any) (string, error) {
	return nthStringParam(params, 0)
}

func nthStringParam(params []any, n int) (string, error) {
	if len(params) <= n {
		return "", &bridgeerr.InvalidInput{Reason: fmt.Sprintf("expected at least %d param(s)", n+1)}
	}
	s, ok := params[n].(string)
	if !ok {
		return "", &bridgeerr.InvalidInput{Reason: fmt.Sprintf("param %d is not a string", n)}
	}
	return s, nil
}

