package userop

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

// Bundler and paymaster JSON-RPC methods.
const (
	MethodEstimateUserOperationGas    = "eth_estimateUserOperationGas"
	MethodSendUserOperation           = "eth_sendUserOperation"
	MethodGetUserOperationByHash      = "eth_getUserOperationByHash"
	MethodGetUserOperationReceipt     = "eth_getUserOperationReceipt"
	MethodSupportedEntryPoints        = "eth_supportedEntryPoints"
	MethodSponsorUserOperation        = "pm_sponsorUserOperation"
	MethodValidateSponsorshipPolicies = "pm_validateSponsorshipPolicies"
	MethodGetUserOperationStatus      = "pimlico_getUserOperationStatus"
	MethodGetUserOperationGasPrice    = "pimlico_getUserOperationGasPrice"
	MethodSendCompressedUserOperation = "pimlico_sendCompressedUserOperation"
)

// isNull reports whether raw is empty or the JSON literal null.
func isNull(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeResult unmarshals raw into out and validates its binding tags.
func decodeResult(method string, raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &InvalidResponseError{Method: method, Field: jsonErrorField(err), Err: err}
	}
	if err := validate.Struct(out); err != nil {
		field, tag, value, ok := firstFieldError(err)
		if !ok {
			return &InvalidResponseError{Method: method, Err: err}
		}
		return &InvalidResponseError{Method: method, Field: field, Err: describeFieldError(tag, value)}
	}
	return nil
}

// ParseUserOperationHash converts the result of eth_sendUserOperation.
func ParseUserOperationHash(raw []byte) (common.Hash, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return common.Hash{}, &InvalidResponseError{Method: MethodSendUserOperation, Err: err}
	}
	b, err := FromWireBytes(s)
	if err != nil {
		return common.Hash{}, &InvalidResponseError{Method: MethodSendUserOperation, Err: err}
	}
	if len(b) != common.HashLength {
		return common.Hash{}, &InvalidResponseError{
			Method: MethodSendUserOperation,
			Err:    &MalformedHexError{Value: s, Reason: "not a 32 byte hash"},
		}
	}
	return common.BytesToHash(b), nil
}

// ParseSupportedEntryPoints converts the result of eth_supportedEntryPoints.
func ParseSupportedEntryPoints(raw []byte) ([]common.Address, error) {
	var resp []string
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &InvalidResponseError{Method: MethodSupportedEntryPoints, Err: err}
	}
	addrs := make([]common.Address, 0, len(resp))
	for _, s := range resp {
		addr, err := FromWireAddress(s)
		if err != nil {
			return nil, &InvalidResponseError{Method: MethodSupportedEntryPoints, Err: err}
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// SupportsEntryPoint reports whether entryPoint is among supported.
func SupportsEntryPoint(supported []common.Address, entryPoint common.Address) bool {
	return lo.Contains(supported, entryPoint)
}

// SponsorResult is a normalized pm_sponsorUserOperation result. v0.6
// sponsors return PaymasterAndData; v0.7 sponsors return the paymaster fields
// separately. Gas fields the paymaster did not return are nil.
type SponsorResult struct {
	Version Version

	PaymasterAndData []byte

	Paymaster                     *common.Address
	PaymasterData                 []byte
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int

	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

type sponsorResponseV06 struct {
	PaymasterAndData     *string `json:"paymasterAndData"     binding:"required,hex_data"`
	PreVerificationGas   *string `json:"preVerificationGas"   binding:"omitempty,hex_quantity"`
	VerificationGasLimit *string `json:"verificationGasLimit" binding:"omitempty,hex_quantity"`
	CallGasLimit         *string `json:"callGasLimit"         binding:"omitempty,hex_quantity"`
}

type sponsorResponseV07 struct {
	Paymaster                     *string `json:"paymaster"                     binding:"required,eth_addr"`
	PaymasterData                 *string `json:"paymasterData"                 binding:"required,hex_data"`
	PaymasterVerificationGasLimit *string `json:"paymasterVerificationGasLimit" binding:"required,hex_quantity"`
	PaymasterPostOpGasLimit       *string `json:"paymasterPostOpGasLimit"       binding:"required,hex_quantity"`
	PreVerificationGas            *string `json:"preVerificationGas"            binding:"omitempty,hex_quantity"`
	VerificationGasLimit          *string `json:"verificationGasLimit"          binding:"omitempty,hex_quantity"`
	CallGasLimit                  *string `json:"callGasLimit"                  binding:"omitempty,hex_quantity"`
}

// ParseSponsorResult validates and converts a pm_sponsorUserOperation result
// for the given version.
func ParseSponsorResult(raw []byte, v Version) (*SponsorResult, error) {
	var d wireDecoder
	switch v {
	case V06:
		var resp sponsorResponseV06
		if err := decodeResult(MethodSponsorUserOperation, raw, &resp); err != nil {
			return nil, err
		}
		res := &SponsorResult{
			Version:              V06,
			PaymasterAndData:     d.data("paymasterAndData", resp.PaymasterAndData),
			PreVerificationGas:   d.quantity("preVerificationGas", resp.PreVerificationGas),
			VerificationGasLimit: d.quantity("verificationGasLimit", resp.VerificationGasLimit),
			CallGasLimit:         d.quantity("callGasLimit", resp.CallGasLimit),
		}
		if d.err != nil {
			return nil, &InvalidResponseError{Method: MethodSponsorUserOperation, Err: d.err}
		}
		if _, err := ExtractAddress(res.PaymasterAndData, V06); err != nil {
			return nil, &InvalidResponseError{Method: MethodSponsorUserOperation, Field: "paymasterAndData", Err: err}
		}
		return res, nil
	case V07:
		var resp sponsorResponseV07
		if err := decodeResult(MethodSponsorUserOperation, raw, &resp); err != nil {
			return nil, err
		}
		res := &SponsorResult{
			Version:                       V07,
			Paymaster:                     d.address("paymaster", resp.Paymaster),
			PaymasterData:                 d.data("paymasterData", resp.PaymasterData),
			PaymasterVerificationGasLimit: d.quantity("paymasterVerificationGasLimit", resp.PaymasterVerificationGasLimit),
			PaymasterPostOpGasLimit:       d.quantity("paymasterPostOpGasLimit", resp.PaymasterPostOpGasLimit),
			PreVerificationGas:            d.quantity("preVerificationGas", resp.PreVerificationGas),
			VerificationGasLimit:          d.quantity("verificationGasLimit", resp.VerificationGasLimit),
			CallGasLimit:                  d.quantity("callGasLimit", resp.CallGasLimit),
		}
		if d.err != nil {
			return nil, &InvalidResponseError{Method: MethodSponsorUserOperation, Err: d.err}
		}
		return res, nil
	default:
		return nil, v.Validate()
	}
}

// Apply writes the sponsorship into op. Gas fields are only overwritten
// when the paymaster returned them.
func (r *SponsorResult) Apply(op UserOperation) error {
	if op == nil {
		return fmt.Errorf("%w: %T", ErrUnsupportedVersion, op)
	}
	if op.Version() != r.Version {
		return fmt.Errorf("%w: %s sponsorship applied to %s operation", ErrVersionMismatch, r.Version, op.Version())
	}
	setIfPresent := func(dst **big.Int, v *big.Int) {
		if v != nil {
			*dst = copyBig(v)
		}
	}

	switch op := op.(type) {
	case *UserOperationV06:
		if op == nil {
			return &IncompleteOperationError{Version: V06, Field: "operation"}
		}
		op.PaymasterAndData = common.CopyBytes(r.PaymasterAndData)
		setIfPresent(&op.PreVerificationGas, r.PreVerificationGas)
		setIfPresent(&op.VerificationGasLimit, r.VerificationGasLimit)
		setIfPresent(&op.CallGasLimit, r.CallGasLimit)
	case *UserOperationV07:
		if op == nil {
			return &IncompleteOperationError{Version: V07, Field: "operation"}
		}
		op.Paymaster = copyAddress(r.Paymaster)
		op.PaymasterData = common.CopyBytes(r.PaymasterData)
		op.PaymasterVerificationGasLimit = copyBig(r.PaymasterVerificationGasLimit)
		op.PaymasterPostOpGasLimit = copyBig(r.PaymasterPostOpGasLimit)
		setIfPresent(&op.PreVerificationGas, r.PreVerificationGas)
		setIfPresent(&op.VerificationGasLimit, r.VerificationGasLimit)
		setIfPresent(&op.CallGasLimit, r.CallGasLimit)
	}
	return nil
}

// SponsorshipPolicy is one entry of a pm_validateSponsorshipPolicies result.
type SponsorshipPolicy struct {
	ID          string  `json:"sponsorshipPolicyId" binding:"required"`
	Name        *string `json:"name"`
	Author      *string `json:"author"`
	Icon        *string `json:"icon"`
	Description *string `json:"description"`
}

type sponsorshipPolicyResponse struct {
	SponsorshipPolicyID string `json:"sponsorshipPolicyId" binding:"required"`
	Data                struct {
		Name        *string `json:"name"`
		Author      *string `json:"author"`
		Icon        *string `json:"icon"`
		Description *string `json:"description"`
	} `json:"data"`
}

// ParseSponsorshipPolicies converts a pm_validateSponsorshipPolicies result.
// It lists the policies willing to sponsor the operation.
func ParseSponsorshipPolicies(raw []byte) ([]SponsorshipPolicy, error) {
	var resp []sponsorshipPolicyResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &InvalidResponseError{Method: MethodValidateSponsorshipPolicies, Err: err}
	}
	for i := range resp {
		if err := validate.Struct(&resp[i]); err != nil {
			field, _, _, _ := firstFieldError(err)
			return nil, &InvalidResponseError{Method: MethodValidateSponsorshipPolicies, Field: field}
		}
	}
	return lo.Map(resp, func(p sponsorshipPolicyResponse, _ int) SponsorshipPolicy {
		return SponsorshipPolicy{
			ID:          p.SponsorshipPolicyID,
			Name:        p.Data.Name,
			Author:      p.Data.Author,
			Icon:        p.Data.Icon,
			Description: p.Data.Description,
		}
	}), nil
}

// UserOperationLookup is a normalized eth_getUserOperationByHash result.
// The block fields are nil while the operation is pending.
type UserOperationLookup struct {
	UserOperation   UserOperation
	EntryPoint      common.Address
	TransactionHash *common.Hash
	BlockHash       *common.Hash
	BlockNumber     *big.Int
}

type userOperationByHashResponse struct {
	UserOperation   json.RawMessage `json:"userOperation"   binding:"required"`
	EntryPoint      string          `json:"entryPoint"      binding:"required,eth_addr"`
	TransactionHash *string         `json:"transactionHash" binding:"omitempty,hex_data"`
	BlockHash       *string         `json:"blockHash"       binding:"omitempty,hex_data"`
	BlockNumber     *string         `json:"blockNumber"     binding:"omitempty,hex_quantity"`
}

// ParseUserOperationByHash converts an eth_getUserOperationByHash result.
// A null result means the bundler does not know the operation and yields
// nil without error.
func ParseUserOperationByHash(raw []byte, v Version) (*UserOperationLookup, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if isNull(raw) {
		return nil, nil
	}

	var resp userOperationByHashResponse
	if err := decodeResult(MethodGetUserOperationByHash, raw, &resp); err != nil {
		return nil, err
	}

	op, err := DecodeUserOperation(resp.UserOperation, v)
	if err != nil {
		return nil, &InvalidResponseError{Method: MethodGetUserOperationByHash, Field: "userOperation", Err: err}
	}

	var d wireDecoder
	entryPoint := d.address("entryPoint", &resp.EntryPoint)
	lookup := &UserOperationLookup{
		UserOperation:   op,
		TransactionHash: decodeHashPtr(&d, "transactionHash", resp.TransactionHash),
		BlockHash:       decodeHashPtr(&d, "blockHash", resp.BlockHash),
		BlockNumber:     d.quantity("blockNumber", resp.BlockNumber),
	}
	if d.err != nil {
		return nil, &InvalidResponseError{Method: MethodGetUserOperationByHash, Err: d.err}
	}
	if entryPoint != nil {
		lookup.EntryPoint = *entryPoint
	}
	return lookup, nil
}

func decodeHashPtr(d *wireDecoder, field string, s *string) *common.Hash {
	b := d.data(field, s)
	if d.err != nil || s == nil {
		return nil
	}
	if len(b) != common.HashLength {
		d.err = fmt.Errorf("%s: %w", field, &MalformedHexError{Value: *s, Reason: "not a 32 byte hash"})
		return nil
	}
	h := common.BytesToHash(b)
	return &h
}

// Status is the terminal or intermediate state a bundler reports for an
// operation.
type Status string

const (
	StatusNotFound     Status = "not_found"
	StatusNotSubmitted Status = "not_submitted"
	StatusSubmitted    Status = "submitted"
	StatusRejected     Status = "rejected"
	StatusReverted     Status = "reverted"
	StatusIncluded     Status = "included"
	StatusFailed       Status = "failed"
)

// Terminal reports whether the operation will not change state anymore.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusReverted, StatusIncluded, StatusFailed:
		return true
	default:
		return false
	}
}

// UserOperationStatus is a normalized pimlico_getUserOperationStatus result.
type UserOperationStatus struct {
	Status          Status
	TransactionHash *common.Hash
}

type userOperationStatusResponse struct {
	Status          string  `json:"status"          binding:"required,oneof=not_found not_submitted submitted rejected reverted included failed"`
	TransactionHash *string `json:"transactionHash" binding:"omitempty,hex_data"`
}

// ParseUserOperationStatus converts a pimlico_getUserOperationStatus result.
func ParseUserOperationStatus(raw []byte) (*UserOperationStatus, error) {
	var resp userOperationStatusResponse
	if err := decodeResult(MethodGetUserOperationStatus, raw, &resp); err != nil {
		return nil, err
	}
	var d wireDecoder
	status := &UserOperationStatus{
		Status:          Status(resp.Status),
		TransactionHash: decodeHashPtr(&d, "transactionHash", resp.TransactionHash),
	}
	if d.err != nil {
		return nil, &InvalidResponseError{Method: MethodGetUserOperationStatus, Err: d.err}
	}
	return status, nil
}

// GasPrice is a maxFeePerGas / maxPriorityFeePerGas pair.
type GasPrice struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// GasPriceTiers is a normalized pimlico_getUserOperationGasPrice result.
type GasPriceTiers struct {
	Slow     GasPrice
	Standard GasPrice
	Fast     GasPrice
}

type gasPriceResponse struct {
	MaxFeePerGas         string `json:"maxFeePerGas"         binding:"required,hex_quantity"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas" binding:"required,hex_quantity"`
}

type gasPriceTiersResponse struct {
	Slow     *gasPriceResponse `json:"slow"     binding:"required"`
	Standard *gasPriceResponse `json:"standard" binding:"required"`
	Fast     *gasPriceResponse `json:"fast"     binding:"required"`
}

// ParseGasPrice converts a pimlico_getUserOperationGasPrice result.
func ParseGasPrice(raw []byte) (*GasPriceTiers, error) {
	var resp gasPriceTiersResponse
	if err := decodeResult(MethodGetUserOperationGasPrice, raw, &resp); err != nil {
		return nil, err
	}
	var d wireDecoder
	tier := func(name string, p *gasPriceResponse) GasPrice {
		return GasPrice{
			MaxFeePerGas:         d.quantity(name+".maxFeePerGas", &p.MaxFeePerGas),
			MaxPriorityFeePerGas: d.quantity(name+".maxPriorityFeePerGas", &p.MaxPriorityFeePerGas),
		}
	}
	tiers := &GasPriceTiers{
		Slow:     tier("slow", resp.Slow),
		Standard: tier("standard", resp.Standard),
		Fast:     tier("fast", resp.Fast),
	}
	if d.err != nil {
		return nil, &InvalidResponseError{Method: MethodGetUserOperationGasPrice, Err: d.err}
	}
	return tiers, nil
}

// Apply sets the fee fields of op to the tier.
func (p GasPrice) Apply(op UserOperation) error {
	switch op := op.(type) {
	case *UserOperationV06:
		op.MaxFeePerGas = copyBig(p.MaxFeePerGas)
		op.MaxPriorityFeePerGas = copyBig(p.MaxPriorityFeePerGas)
		return nil
	case *UserOperationV07:
		op.MaxFeePerGas = copyBig(p.MaxFeePerGas)
		op.MaxPriorityFeePerGas = copyBig(p.MaxPriorityFeePerGas)
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedVersion, op)
	}
}

// UserOperationReceipt is a normalized eth_getUserOperationReceipt result.
type UserOperationReceipt struct {
	UserOpHash      common.Hash
	Sender          common.Address
	Paymaster       *common.Address
	Nonce           *big.Int
	Success         bool
	Reason          string
	ActualGasCost   *big.Int
	ActualGasUsed   *big.Int
	TransactionHash common.Hash
	BlockNumber     *big.Int
}

type userOperationReceiptResponse struct {
	UserOpHash    string  `json:"userOpHash"    binding:"required,hex_data"`
	Sender        string  `json:"sender"        binding:"required,eth_addr"`
	Paymaster     *string `json:"paymaster"`
	Nonce         string  `json:"nonce"         binding:"required,hex_quantity"`
	Success       bool    `json:"success"`
	Reason        string  `json:"reason"`
	ActualGasCost string  `json:"actualGasCost" binding:"required,hex_quantity"`
	ActualGasUsed string  `json:"actualGasUsed" binding:"required,hex_quantity"`
	Receipt       *struct {
		TransactionHash string `json:"transactionHash" binding:"required,hex_data"`
		BlockNumber     string `json:"blockNumber"     binding:"required,hex_quantity"`
	} `json:"receipt" binding:"required"`
}

// ParseUserOperationReceipt converts an eth_getUserOperationReceipt result.
// A null result means the operation is not included yet and yields nil.
func ParseUserOperationReceipt(raw []byte) (*UserOperationReceipt, error) {
	if isNull(raw) {
		return nil, nil
	}
	var resp userOperationReceiptResponse
	if err := decodeResult(MethodGetUserOperationReceipt, raw, &resp); err != nil {
		return nil, err
	}

	var d wireDecoder
	userOpHash := decodeHashPtr(&d, "userOpHash", &resp.UserOpHash)
	txHash := decodeHashPtr(&d, "receipt.transactionHash", &resp.Receipt.TransactionHash)
	receipt := &UserOperationReceipt{
		Sender:        d.sender(&resp.Sender),
		Paymaster:     d.address("paymaster", resp.Paymaster),
		Nonce:         d.quantity("nonce", &resp.Nonce),
		Success:       resp.Success,
		Reason:        resp.Reason,
		ActualGasCost: d.quantity("actualGasCost", &resp.ActualGasCost),
		ActualGasUsed: d.quantity("actualGasUsed", &resp.ActualGasUsed),
		BlockNumber:   d.quantity("receipt.blockNumber", &resp.Receipt.BlockNumber),
	}
	if d.err != nil {
		return nil, &InvalidResponseError{Method: MethodGetUserOperationReceipt, Err: d.err}
	}
	receipt.UserOpHash = *userOpHash
	receipt.TransactionHash = *txHash
	return receipt, nil
}

// Status maps the receipt onto the operation lifecycle.
func (r *UserOperationReceipt) Status() Status {
	if r.Success {
		return StatusIncluded
	}
	return StatusReverted
}
