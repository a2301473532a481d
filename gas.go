package userop

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/goccy/go-json"
)

// GasEstimate holds the gas limits a bundler estimated for an operation.
// Fields the bundler did not return are zero.
type GasEstimate struct {
	PreVerificationGas            *big.Int
	VerificationGasLimit          *big.Int
	CallGasLimit                  *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
}

// gasEstimateResponse is the eth_estimateUserOperationGas result object.
type gasEstimateResponse struct {
	PreVerificationGas            *string `json:"preVerificationGas"            binding:"required,hex_quantity"`
	VerificationGasLimit          *string `json:"verificationGasLimit"          binding:"required,hex_quantity"`
	CallGasLimit                  *string `json:"callGasLimit"                  binding:"required,hex_quantity"`
	PaymasterVerificationGasLimit *string `json:"paymasterVerificationGasLimit" binding:"omitempty,hex_quantity"`
	PaymasterPostOpGasLimit       *string `json:"paymasterPostOpGasLimit"       binding:"omitempty,hex_quantity"`
}

// ParseGasEstimate validates and converts the result of
// eth_estimateUserOperationGas for the given version. preVerificationGas,
// verificationGasLimit and callGasLimit are required for both versions; the
// v0.7 paymaster limits are optional and default to zero. v0.6 has no
// paymaster limits, so any the bundler sends are neither validated nor
// returned.
func ParseGasEstimate(raw []byte, v Version) (*GasEstimate, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}

	var resp gasEstimateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &InvalidEstimateResponseError{Version: v, Field: jsonErrorField(err), Err: err}
	}
	if v == V06 {
		resp.PaymasterVerificationGasLimit = nil
		resp.PaymasterPostOpGasLimit = nil
	}
	if err := validate.Struct(&resp); err != nil {
		field, tag, value, ok := firstFieldError(err)
		if !ok {
			return nil, &InvalidEstimateResponseError{Version: v, Err: err}
		}
		return nil, &InvalidEstimateResponseError{Version: v, Field: field, Err: describeFieldError(tag, value)}
	}

	var d wireDecoder
	est := &GasEstimate{
		PreVerificationGas:            d.quantity("preVerificationGas", resp.PreVerificationGas),
		VerificationGasLimit:          d.quantity("verificationGasLimit", resp.VerificationGasLimit),
		CallGasLimit:                  d.quantity("callGasLimit", resp.CallGasLimit),
		PaymasterVerificationGasLimit: new(big.Int),
		PaymasterPostOpGasLimit:       new(big.Int),
	}
	if v == V07 {
		if resp.PaymasterVerificationGasLimit != nil {
			est.PaymasterVerificationGasLimit = d.quantity("paymasterVerificationGasLimit", resp.PaymasterVerificationGasLimit)
		}
		if resp.PaymasterPostOpGasLimit != nil {
			est.PaymasterPostOpGasLimit = d.quantity("paymasterPostOpGasLimit", resp.PaymasterPostOpGasLimit)
		}
	}
	if d.err != nil {
		return nil, &InvalidEstimateResponseError{Version: v, Err: d.err}
	}
	return est, nil
}

// jsonErrorField returns the offending field of a JSON type error, if any.
func jsonErrorField(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return typeErr.Field
	}
	return ""
}

// Apply copies the estimate into op. The paymaster limits are only copied to
// v0.7 operations that have a paymaster.
func (e *GasEstimate) Apply(op UserOperation) error {
	switch op := op.(type) {
	case *UserOperationV06:
		op.PreVerificationGas = copyBig(e.PreVerificationGas)
		op.VerificationGasLimit = copyBig(e.VerificationGasLimit)
		op.CallGasLimit = copyBig(e.CallGasLimit)
		return nil
	case *UserOperationV07:
		op.PreVerificationGas = copyBig(e.PreVerificationGas)
		op.VerificationGasLimit = copyBig(e.VerificationGasLimit)
		op.CallGasLimit = copyBig(e.CallGasLimit)
		if op.Paymaster != nil {
			op.PaymasterVerificationGasLimit = copyBig(e.PaymasterVerificationGasLimit)
			op.PaymasterPostOpGasLimit = copyBig(e.PaymasterPostOpGasLimit)
		}
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedVersion, op)
	}
}
