package bundler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/userop"
)

func newRPCServer(t *testing.T, status int, body string, seen *jsonrpcRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if seen != nil {
			require.NoError(t, json.Unmarshal(raw, seen))
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPTransportResult(t *testing.T) {
	var seen jsonrpcRequest
	srv := newRPCServer(t, http.StatusOK, `{"jsonrpc":"2.0","id":1,"result":["0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"]}`, &seen)
	tr := NewHTTPTransport(srv.URL, WithHeader("X-Api-Key", "secret"), WithTimeout(5*time.Second))

	var result []string
	err := tr.CallContext(context.Background(), &result, userop.MethodSupportedEntryPoints)
	require.NoError(t, err)
	require.Equal(t, []string{"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"}, result)

	require.Equal(t, "2.0", seen.Version)
	require.Equal(t, userop.MethodSupportedEntryPoints, seen.Method)
	require.Empty(t, seen.Params)
	require.Equal(t, uint64(1), seen.ID)
}

func TestHTTPTransportErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "json-rpc error",
			status:   http.StatusOK,
			body:     `{"jsonrpc":"2.0","id":1,"error":{"code":-32500,"message":"AA21 didn't pay prefund"}}`,
			wantCode: -32500,
			wantMsg:  "AA21 didn't pay prefund",
		},
		{
			name:     "json-rpc error with bad request status",
			status:   http.StatusBadRequest,
			body:     `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params","data":{"field":"sender"}}}`,
			wantCode: -32602,
			wantMsg:  "invalid params",
		},
		{
			name:     "rate limited without body",
			status:   http.StatusTooManyRequests,
			body:     `slow down`,
			wantCode: http.StatusTooManyRequests,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRPCServer(t, tt.status, tt.body, nil)
			tr := NewHTTPTransport(srv.URL, WithHeader("X-Api-Key", "secret"))

			var result json.RawMessage
			err := tr.CallContext(context.Background(), &result, userop.MethodEstimateUserOperationGas, map[string]any{})
			require.Error(t, err)

			var rpcErr userop.RPCError
			require.True(t, errors.As(err, &rpcErr))
			require.Equal(t, tt.wantCode, rpcErr.Code)
			if tt.wantMsg != "" {
				require.Equal(t, tt.wantMsg, rpcErr.Message)
			}
		})
	}
}

func TestHTTPTransportRateLimitClassification(t *testing.T) {
	srv := newRPCServer(t, http.StatusTooManyRequests, `too many requests`, nil)
	tr := NewHTTPTransport(srv.URL, WithHeader("X-Api-Key", "secret"))

	c, err := NewClient(tr, userop.V06)
	require.NoError(t, err)

	_, err = c.GetUserOperationGasPrice(context.Background())
	require.ErrorIs(t, err, userop.ErrRateLimited)
}

func TestHTTPTransportMalformedBody(t *testing.T) {
	srv := newRPCServer(t, http.StatusOK, `not json`, nil)
	tr := NewHTTPTransport(srv.URL, WithHeader("X-Api-Key", "secret"))

	var result json.RawMessage
	err := tr.CallContext(context.Background(), &result, userop.MethodGetUserOperationGasPrice)
	require.Error(t, err)

	var rpcErr userop.RPCError
	require.False(t, errors.As(err, &rpcErr))
}
