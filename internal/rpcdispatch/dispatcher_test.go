package rpcdispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletbridge/internal/approver"
	"walletbridge/internal/bridgeerr"
	"walletbridge/internal/chain"
)

func testDispatcher(t *testing.T, rpcHandler http.HandlerFunc) (*Dispatcher, *approver.Bus) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(priv.PublicKey)

	c := chain.Chain{ID: 1, Name: "Ethereum", HexID: "0x1", RPC: "http://unused.invalid"}
	if rpcHandler != nil {
		srv := httptest.NewServer(rpcHandler)
		t.Cleanup(srv.Close)
		c.RPC = srv.URL
	}

	bus := approver.NewBus()
	return New(c, addr, priv, bus, nil), bus
}

func TestEthAccountsReturnsSingleAddress(t *testing.T) {
	d, _ := testDispatcher(t, nil)
	result, err := d.Dispatch(context.Background(), "eth_accounts", nil)
	require.NoError(t, err)
	accounts, ok := result.([]string)
	require.True(t, ok)
	assert.Equal(t, []string{d.Address.Hex()}, accounts)
}

func TestEthChainIdMatchesConfiguredChain(t *testing.T) {
	d, _ := testDispatcher(t, nil)
	result, err := d.Dispatch(context.Background(), "eth_chainId", nil)
	require.NoError(t, err)
	assert.Equal(t, "0x1", result)
}

func TestPersonalSignNoApproverSignsImmediately(t *testing.T) {
	d, _ := testDispatcher(t, nil)
	payload := hexutil.Encode([]byte("hello world"))
	result, err := d.Dispatch(context.Background(), "personal_sign", []any{payload, d.Address.Hex()})
	require.NoError(t, err)
	sig, ok := result.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 132)
}

func TestPersonalSignRoutesThroughApproverAndCanBeRejected(t *testing.T) {
	d, bus := testDispatcher(t, nil)
	requests, detach := bus.Attach()
	defer detach()

	payload := hexutil.Encode([]byte("please sign this"))
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(context.Background(), "personal_sign", []any{payload, d.Address.Hex()})
		errCh <- err
	}()

	req := <-requests
	assert.Equal(t, "personal_sign", req.Method)

	found := false
	for _, f := range req.Display() {
		if f.Key == "message" && f.Value == "please sign this" {
			found = true
		}
	}
	assert.True(t, found, "display fields %v missing decoded message", req.Display())

	req.Reject(bridgeerrTestError{"user declined"})

	err := <-errCh
	require.Error(t, err)
	var rejected *bridgeerr.SigningRejected
	require.ErrorAs(t, err, &rejected)
}

type bridgeerrTestError struct{ msg string }

func (e bridgeerrTestError) Error() string { return e.msg }

func TestEthSignTypedDataV4HashesAndSigns(t *testing.T) {
	d, _ := testDispatcher(t, nil)
	typedData := `{
		"types": {
			"EIP712Domain": [{"name":"name","type":"string"},{"name":"chainId","type":"uint256"}],
			"Mail": [{"name":"contents","type":"string"}]
		},
		"primaryType": "Mail",
		"domain": {"name":"walletbridge","chainId":1},
		"message": {"contents":"hi"}
	}`
	result, err := d.Dispatch(context.Background(), "eth_signTypedData_v4", []any{d.Address.Hex(), typedData})
	require.NoError(t, err)
	sig, ok := result.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(sig, "0x"))
}

func TestEthSendTransactionForwardsRawTransaction(t *testing.T) {
	var sawSendRaw bool
	d, _ := testDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		_ = json.Unmarshal(body, &req)

		switch req.Method {
		case "eth_getTransactionCount":
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x5"}`))
		case "eth_gasPrice":
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x3b9aca00"}`))
		case "eth_sendRawTransaction":
			sawSendRaw = true
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0xabc123"}`))
		default:
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
		}
	})

	result, err := d.Dispatch(context.Background(), "eth_sendTransaction", []any{
		map[string]any{"to": "0x000000000000000000000000000000000000aa", "value": "0xde0b6b3a7640000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc123", result)
	assert.True(t, sawSendRaw, "expected eth_sendRawTransaction to be forwarded")
}

func TestUnknownMethodForwardsToChainRPC(t *testing.T) {
	d, _ := testDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"0x10"}`))
	})
	result, err := d.Dispatch(context.Background(), "eth_blockNumber", []any{})
	require.NoError(t, err)
	assert.Equal(t, "0x10", result)
}

func TestForwardSurfacesUpstreamError(t *testing.T) {
	d, _ := testDispatcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"execution reverted"}}`))
	})
	_, err := d.Dispatch(context.Background(), "eth_call", []any{})
	require.Error(t, err)
	var upstream *bridgeerr.UpstreamRpcFailed
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, upstream.Message, "execution reverted")
}
