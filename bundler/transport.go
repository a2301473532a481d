package bundler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/blndgs/userop"
)

// Transport performs a single JSON-RPC call and decodes its result into
// result. *rpc.Client from go-ethereum satisfies it.
type Transport interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
}

var _ Transport = (*rpc.Client)(nil)
var _ Transport = (*HTTPTransport)(nil)

const defaultTimeout = 30 * time.Second

type jsonrpcRequest struct {
	Version string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonrpcResponse struct {
	Version string           `json:"jsonrpc"`
	ID      json.RawMessage  `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *userop.RPCError `json:"error"`
}

// HTTPTransport is a JSON-RPC over HTTP transport. Error objects returned by
// the server are surfaced as userop.RPCError values; non-2xx responses
// without one are surfaced with the HTTP status as code.
type HTTPTransport struct {
	client *resty.Client
	url    string
	nextID atomic.Uint64
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*resty.Client)

// WithTimeout sets the per request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *resty.Client) {
		c.SetTimeout(d)
	}
}

// WithHeader adds a header to every request, e.g. an API key.
func WithHeader(key, value string) HTTPOption {
	return func(c *resty.Client) {
		c.SetHeader(key, value)
	}
}

// NewHTTPTransport creates a transport posting to url.
func NewHTTPTransport(url string, opts ...HTTPOption) *HTTPTransport {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetJSONMarshaler(json.Marshal)
	client.SetJSONUnmarshaler(json.Unmarshal)
	for _, opt := range opts {
		opt(client)
	}
	return &HTTPTransport{client: client, url: url}
}

// CallContext implements Transport.
func (t *HTTPTransport) CallContext(ctx context.Context, result any, method string, args ...any) error {
	if args == nil {
		args = []any{}
	}
	req := jsonrpcRequest{
		Version: "2.0",
		ID:      t.nextID.Add(1),
		Method:  method,
		Params:  args,
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(t.url)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	var out jsonrpcResponse
	decodeErr := json.Unmarshal(resp.Body(), &out)
	if decodeErr == nil && out.Error != nil {
		return *out.Error
	}
	if resp.IsError() {
		return userop.RPCError{
			Code:    resp.StatusCode(),
			Message: resp.Status(),
			Data:    resp.String(),
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, decodeErr)
	}
	if result == nil {
		return nil
	}
	if len(out.Result) == 0 {
		out.Result = json.RawMessage("null")
	}
	if err := json.Unmarshal(out.Result, result); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}
