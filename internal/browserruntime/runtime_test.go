package browserruntime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMustJSONStringEscapesQuotesAndNewlines(t *testing.T) {
	got := mustJSONString("hello \"world\"\nline2")
	var decoded string
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	require.Equal(t, "hello \"world\"\nline2", decoded)
}

func TestRPCProxyPayloadRoundTrips(t *testing.T) {
	raw := `{"id":7,"method":"eth_chainId","params":[]}`
	var req rpcProxyPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.EqualValues(t, 7, req.ID)
	require.Equal(t, "eth_chainId", req.Method)
}

func TestSubmitCapturePayloadRoundTrips(t *testing.T) {
	raw := `{"id":3,"targetUrl":"https://mcp.figma.com/submit","body":"payload"}`
	var req submitCapturePayload
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	require.EqualValues(t, 3, req.ID)
	require.Equal(t, "https://mcp.figma.com/submit", req.TargetURL)
	require.Equal(t, "payload", req.Body)
}
