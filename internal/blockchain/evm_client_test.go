package blockchain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRPCServer(t *testing.T, result string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "eth_getTransactionReceipt", req.Method)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
}

func TestEVMVerifierMinedSuccess(t *testing.T) {
	srv := newRPCServer(t, `{"transactionHash":"0xabc","blockNumber":"0x3e8","status":"0x1"}`)
	defer srv.Close()

	v := NewEVMVerifier(srv.URL, zap.NewNop())
	res, err := v.VerifyTransaction(context.Background(), "0x"+strings.Repeat("ab", 32))
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.True(t, res.Success)
	assert.Equal(t, int64(1000), res.BlockNumber)
}

func TestEVMVerifierReverted(t *testing.T) {
	srv := newRPCServer(t, `{"transactionHash":"0xabc","blockNumber":"0x10","status":"0x0"}`)
	defer srv.Close()

	res, err := NewEVMVerifier(srv.URL, zap.NewNop()).VerifyTransaction(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.True(t, res.Found)
	assert.False(t, res.Success)
}

func TestEVMVerifierNotMined(t *testing.T) {
	srv := newRPCServer(t, `null`)
	defer srv.Close()

	res, err := NewEVMVerifier(srv.URL, zap.NewNop()).VerifyTransaction(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.False(t, res.Found)
}

func TestEVMVerifierRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"boom"}}`))
	}))
	defer srv.Close()

	_, err := NewEVMVerifier(srv.URL, zap.NewNop()).VerifyTransaction(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
