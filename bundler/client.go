// Package bundler talks to ERC-4337 bundler and paymaster JSON-RPC endpoints.
// Requests are built with userop.ToWire, results are validated by the userop
// parsers and RPC errors are classified with the request's operation
// attached.
package bundler

import (
	"context"
	"fmt"
	"math/big"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"

	"github.com/blndgs/userop"
)

// Client is a bundler client bound to one entry point. It holds no mutable
// state and is safe for concurrent use.
type Client struct {
	transport  Transport
	version    userop.Version
	entryPoint common.Address
	logger     sdklogging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEntryPoint overrides the canonical entry point of the version.
func WithEntryPoint(addr common.Address) Option {
	return func(c *Client) {
		c.entryPoint = addr
	}
}

// WithLogger sets the logger. Without it a production zap logger is used.
func WithLogger(logger sdklogging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for operations of version v.
func NewClient(transport Transport, v userop.Version, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("bundler: nil transport")
	}
	entryPoint, err := v.EntryPoint()
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport:  transport,
		version:    v,
		entryPoint: entryPoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		logger, err := sdklogging.NewZapLogger(sdklogging.Production)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		c.logger = logger
	}
	return c, nil
}

// Version returns the entry point version the client is bound to.
func (c *Client) Version() userop.Version { return c.version }

// EntryPoint returns the entry point address sent with every request.
func (c *Client) EntryPoint() common.Address { return c.entryPoint }

func (c *Client) checkVersion(op userop.UserOperation) error {
	if op == nil {
		return fmt.Errorf("bundler: nil operation")
	}
	if op.Version() != c.version {
		return fmt.Errorf("%w: %s client got %s operation", userop.ErrVersionMismatch, c.version, op.Version())
	}
	return nil
}

// call runs method and returns the raw result. RPC errors are classified
// against op, which may be nil for calls not tied to an operation.
func (c *Client) call(ctx context.Context, op userop.UserOperation, method string, args ...any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.transport.CallContext(ctx, &raw, method, args...); err != nil {
		classified := userop.ClassifyError(err, op)
		c.logger.Warn("bundler call failed",
			"method", method,
			"version", c.version.String(),
			"error", classified.Error(),
		)
		return nil, classified
	}
	c.logger.Debug("bundler call", "method", method, "result_size", len(raw))
	return raw, nil
}

// AccountOverride replaces parts of an account's state for the duration of
// a gas estimation. Unset fields are left as they are on chain.
type AccountOverride struct {
	Balance   *big.Int                    `json:"balance,omitempty"`
	Nonce     *uint64                     `json:"nonce,omitempty"`
	Code      []byte                      `json:"code,omitempty"`
	State     map[common.Hash]common.Hash `json:"state,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

// StateOverrides maps accounts to the state they should have during
// estimation.
type StateOverrides map[common.Address]AccountOverride

type estimateConfig struct {
	overrides StateOverrides
}

// EstimateOption configures a single EstimateUserOperationGas call.
type EstimateOption func(*estimateConfig)

// WithStateOverrides sends overrides as the third parameter of
// eth_estimateUserOperationGas.
func WithStateOverrides(overrides StateOverrides) EstimateOption {
	return func(c *estimateConfig) {
		c.overrides = overrides
	}
}

// EstimateUserOperationGas asks the bundler to estimate the gas limits of op.
// Gas fields of op may be unset.
func (c *Client) EstimateUserOperationGas(ctx context.Context, op userop.UserOperation, opts ...EstimateOption) (*userop.GasEstimate, error) {
	if err := c.checkVersion(op); err != nil {
		return nil, err
	}
	var cfg estimateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	args := []any{userop.ToWire(op), c.entryPoint.Hex()}
	if len(cfg.overrides) > 0 {
		args = append(args, userop.ToWire(cfg.overrides))
	}
	raw, err := c.call(ctx, op, userop.MethodEstimateUserOperationGas, args...)
	if err != nil {
		return nil, err
	}
	return userop.ParseGasEstimate(raw, c.version)
}

// SendUserOperation submits a signed operation and returns its hash as
// reported by the bundler.
func (c *Client) SendUserOperation(ctx context.Context, op userop.UserOperation) (common.Hash, error) {
	if err := c.checkVersion(op); err != nil {
		return common.Hash{}, err
	}
	raw, err := c.call(ctx, op, userop.MethodSendUserOperation, userop.ToWire(op), c.entryPoint.Hex())
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := userop.ParseUserOperationHash(raw)
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Info("user operation submitted",
		"hash", hash.Hex(),
		"sender", op.GetSender().Hex(),
		"entry_point", c.entryPoint.Hex(),
	)
	return hash, nil
}

// SendCompressedUserOperation submits an operation compressed for the given
// inflator contract. The bundler inflates it before validation.
func (c *Client) SendCompressedUserOperation(ctx context.Context, compressed []byte, inflator common.Address) (common.Hash, error) {
	if len(compressed) == 0 {
		return common.Hash{}, fmt.Errorf("bundler: empty compressed operation")
	}
	raw, err := c.call(ctx, nil, userop.MethodSendCompressedUserOperation,
		hexutil.Encode(compressed), inflator.Hex(), c.entryPoint.Hex())
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := userop.ParseUserOperationHash(raw)
	if err != nil {
		return common.Hash{}, err
	}
	c.logger.Info("compressed user operation submitted",
		"hash", hash.Hex(),
		"inflator", inflator.Hex(),
		"entry_point", c.entryPoint.Hex(),
	)
	return hash, nil
}

// GetUserOperationByHash looks an operation up. It returns nil without
// error when the bundler does not know the hash.
func (c *Client) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*userop.UserOperationLookup, error) {
	raw, err := c.call(ctx, nil, userop.MethodGetUserOperationByHash, hash.Hex())
	if err != nil {
		return nil, err
	}
	return userop.ParseUserOperationByHash(raw, c.version)
}

// GetUserOperationReceipt returns the receipt of an included operation, or
// nil while it is pending.
func (c *Client) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*userop.UserOperationReceipt, error) {
	raw, err := c.call(ctx, nil, userop.MethodGetUserOperationReceipt, hash.Hex())
	if err != nil {
		return nil, err
	}
	return userop.ParseUserOperationReceipt(raw)
}

// SupportedEntryPoints lists the entry points the bundler accepts.
func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	raw, err := c.call(ctx, nil, userop.MethodSupportedEntryPoints)
	if err != nil {
		return nil, err
	}
	return userop.ParseSupportedEntryPoints(raw)
}

// CheckEntryPoint fails with a BundlerError of kind
// KindUnsupportedEntryPoint when the bundler does not list the client's
// entry point.
func (c *Client) CheckEntryPoint(ctx context.Context) error {
	supported, err := c.SupportedEntryPoints(ctx)
	if err != nil {
		return err
	}
	if !userop.SupportsEntryPoint(supported, c.entryPoint) {
		return &userop.BundlerError{
			Kind:    userop.KindUnsupportedEntryPoint,
			Message: fmt.Sprintf("entry point %s is not supported", c.entryPoint.Hex()),
			Data:    supported,
			Version: c.version,
		}
	}
	return nil
}

// SponsorUserOperation asks the paymaster to sponsor op. policyID is
// optional.
func (c *Client) SponsorUserOperation(ctx context.Context, op userop.UserOperation, policyID string) (*userop.SponsorResult, error) {
	if err := c.checkVersion(op); err != nil {
		return nil, err
	}
	args := []any{userop.ToWire(op), c.entryPoint.Hex()}
	if policyID != "" {
		args = append(args, map[string]string{"sponsorshipPolicyId": policyID})
	}
	raw, err := c.call(ctx, op, userop.MethodSponsorUserOperation, args...)
	if err != nil {
		return nil, err
	}
	return userop.ParseSponsorResult(raw, c.version)
}

// ValidateSponsorshipPolicies returns the policies among policyIDs that are
// willing to sponsor op.
func (c *Client) ValidateSponsorshipPolicies(ctx context.Context, op userop.UserOperation, policyIDs []string) ([]userop.SponsorshipPolicy, error) {
	if err := c.checkVersion(op); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, op, userop.MethodValidateSponsorshipPolicies, userop.ToWire(op), c.entryPoint.Hex(), policyIDs)
	if err != nil {
		return nil, err
	}
	return userop.ParseSponsorshipPolicies(raw)
}

// GetUserOperationStatus returns the bundler's view of an operation.
func (c *Client) GetUserOperationStatus(ctx context.Context, hash common.Hash) (*userop.UserOperationStatus, error) {
	raw, err := c.call(ctx, nil, userop.MethodGetUserOperationStatus, hash.Hex())
	if err != nil {
		return nil, err
	}
	return userop.ParseUserOperationStatus(raw)
}

// GetUserOperationGasPrice returns the bundler's fee suggestions.
func (c *Client) GetUserOperationGasPrice(ctx context.Context) (*userop.GasPriceTiers, error) {
	raw, err := c.call(ctx, nil, userop.MethodGetUserOperationGasPrice)
	if err != nil {
		return nil, err
	}
	return userop.ParseGasPrice(raw)
}
