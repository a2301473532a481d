package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
)

// The bundler JSON form of a UserOperation uses hex quantities for integers
// and hex data for byte strings. Unset gas fields are left out so a partial
// operation can be sent to eth_estimateUserOperationGas.

func putQuantity(m map[string]any, key string, v *big.Int) {
	if v != nil {
		m[key] = hexutil.EncodeBig(v)
	}
}

func (op *UserOperationV06) wire() any {
	m := map[string]any{
		"sender":           op.Sender.Hex(),
		"initCode":         hexutil.Encode(op.InitCode),
		"callData":         hexutil.Encode(op.CallData),
		"paymasterAndData": hexutil.Encode(op.PaymasterAndData),
		"signature":        hexutil.Encode(op.Signature),
	}
	putQuantity(m, "nonce", op.Nonce)
	putQuantity(m, "callGasLimit", op.CallGasLimit)
	putQuantity(m, "verificationGasLimit", op.VerificationGasLimit)
	putQuantity(m, "preVerificationGas", op.PreVerificationGas)
	putQuantity(m, "maxFeePerGas", op.MaxFeePerGas)
	putQuantity(m, "maxPriorityFeePerGas", op.MaxPriorityFeePerGas)
	return m
}

func (op *UserOperationV07) wire() any {
	m := map[string]any{
		"sender":    op.Sender.Hex(),
		"callData":  hexutil.Encode(op.CallData),
		"signature": hexutil.Encode(op.Signature),
	}
	putQuantity(m, "nonce", op.Nonce)
	if op.Factory != nil {
		m["factory"] = op.Factory.Hex()
		m["factoryData"] = hexutil.Encode(op.FactoryData)
	}
	putQuantity(m, "callGasLimit", op.CallGasLimit)
	putQuantity(m, "verificationGasLimit", op.VerificationGasLimit)
	putQuantity(m, "preVerificationGas", op.PreVerificationGas)
	putQuantity(m, "maxFeePerGas", op.MaxFeePerGas)
	putQuantity(m, "maxPriorityFeePerGas", op.MaxPriorityFeePerGas)
	if op.Paymaster != nil {
		m["paymaster"] = op.Paymaster.Hex()
		m["paymasterData"] = hexutil.Encode(op.PaymasterData)
		putQuantity(m, "paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit)
		putQuantity(m, "paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit)
	}
	return m
}

// MarshalJSON encodes the operation in the bundler's v0.6 JSON form.
func (op *UserOperationV06) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.wire())
}

// MarshalJSON encodes the operation in the bundler's v0.7 JSON form.
func (op *UserOperationV07) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.wire())
}

func decodeQuantity(field string, s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, err := FromWire(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

func decodeData(field string, s *string) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := FromWireBytes(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return b, nil
}

func decodeAddress(field string, s *string) (*common.Address, error) {
	if s == nil || *s == "" || *s == "0x" {
		return nil, nil
	}
	addr, err := FromWireAddress(*s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &addr, nil
}

// wireDecoder collects the first error of a run of field decodes.
type wireDecoder struct {
	err error
}

func (d *wireDecoder) quantity(field string, s *string) *big.Int {
	if d.err != nil {
		return nil
	}
	v, err := decodeQuantity(field, s)
	d.err = err
	return v
}

func (d *wireDecoder) data(field string, s *string) []byte {
	if d.err != nil {
		return nil
	}
	b, err := decodeData(field, s)
	d.err = err
	return b
}

func (d *wireDecoder) address(field string, s *string) *common.Address {
	if d.err != nil {
		return nil
	}
	a, err := decodeAddress(field, s)
	d.err = err
	return a
}

// sender decodes the mandatory sender address. Unlike the optional factory
// and paymaster, an empty value is an error.
func (d *wireDecoder) sender(s *string) common.Address {
	if d.err != nil {
		return common.Address{}
	}
	addr, err := FromWireAddress(*s)
	if err != nil {
		d.err = fmt.Errorf("sender: %w", err)
	}
	return addr
}

// UnmarshalJSON decodes the bundler's v0.6 JSON form. Absent quantities stay
// nil.
func (op *UserOperationV06) UnmarshalJSON(data []byte) error {
	aux := struct {
		Sender               *string `json:"sender"`
		Nonce                *string `json:"nonce"`
		InitCode             *string `json:"initCode"`
		CallData             *string `json:"callData"`
		CallGasLimit         *string `json:"callGasLimit"`
		VerificationGasLimit *string `json:"verificationGasLimit"`
		PreVerificationGas   *string `json:"preVerificationGas"`
		MaxFeePerGas         *string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas *string `json:"maxPriorityFeePerGas"`
		PaymasterAndData     *string `json:"paymasterAndData"`
		Signature            *string `json:"signature"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Sender == nil {
		return &IncompleteOperationError{Version: V06, Field: "sender"}
	}

	var d wireDecoder
	decoded := UserOperationV06{
		Sender:               d.sender(aux.Sender),
		Nonce:                d.quantity("nonce", aux.Nonce),
		InitCode:             d.data("initCode", aux.InitCode),
		CallData:             d.data("callData", aux.CallData),
		CallGasLimit:         d.quantity("callGasLimit", aux.CallGasLimit),
		VerificationGasLimit: d.quantity("verificationGasLimit", aux.VerificationGasLimit),
		PreVerificationGas:   d.quantity("preVerificationGas", aux.PreVerificationGas),
		MaxFeePerGas:         d.quantity("maxFeePerGas", aux.MaxFeePerGas),
		MaxPriorityFeePerGas: d.quantity("maxPriorityFeePerGas", aux.MaxPriorityFeePerGas),
		PaymasterAndData:     d.data("paymasterAndData", aux.PaymasterAndData),
		Signature:            d.data("signature", aux.Signature),
	}
	if d.err != nil {
		return d.err
	}

	*op = decoded
	return nil
}

// UnmarshalJSON decodes the bundler's v0.7 JSON form. Absent quantities and
// addresses stay nil.
func (op *UserOperationV07) UnmarshalJSON(data []byte) error {
	aux := struct {
		Sender                        *string `json:"sender"`
		Nonce                         *string `json:"nonce"`
		Factory                       *string `json:"factory"`
		FactoryData                   *string `json:"factoryData"`
		CallData                      *string `json:"callData"`
		CallGasLimit                  *string `json:"callGasLimit"`
		VerificationGasLimit          *string `json:"verificationGasLimit"`
		PreVerificationGas            *string `json:"preVerificationGas"`
		MaxFeePerGas                  *string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas          *string `json:"maxPriorityFeePerGas"`
		Paymaster                     *string `json:"paymaster"`
		PaymasterVerificationGasLimit *string `json:"paymasterVerificationGasLimit"`
		PaymasterPostOpGasLimit       *string `json:"paymasterPostOpGasLimit"`
		PaymasterData                 *string `json:"paymasterData"`
		Signature                     *string `json:"signature"`
	}{}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Sender == nil {
		return &IncompleteOperationError{Version: V07, Field: "sender"}
	}

	var d wireDecoder
	decoded := UserOperationV07{
		Sender:                        d.sender(aux.Sender),
		Nonce:                         d.quantity("nonce", aux.Nonce),
		Factory:                       d.address("factory", aux.Factory),
		FactoryData:                   d.data("factoryData", aux.FactoryData),
		CallData:                      d.data("callData", aux.CallData),
		CallGasLimit:                  d.quantity("callGasLimit", aux.CallGasLimit),
		VerificationGasLimit:          d.quantity("verificationGasLimit", aux.VerificationGasLimit),
		PreVerificationGas:            d.quantity("preVerificationGas", aux.PreVerificationGas),
		MaxFeePerGas:                  d.quantity("maxFeePerGas", aux.MaxFeePerGas),
		MaxPriorityFeePerGas:          d.quantity("maxPriorityFeePerGas", aux.MaxPriorityFeePerGas),
		Paymaster:                     d.address("paymaster", aux.Paymaster),
		PaymasterVerificationGasLimit: d.quantity("paymasterVerificationGasLimit", aux.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       d.quantity("paymasterPostOpGasLimit", aux.PaymasterPostOpGasLimit),
		PaymasterData:                 d.data("paymasterData", aux.PaymasterData),
		Signature:                     d.data("signature", aux.Signature),
	}
	if d.err != nil {
		return d.err
	}

	*op = decoded
	return nil
}

// DecodeUserOperation decodes the bundler JSON form of an operation of the
// given version.
func DecodeUserOperation(data []byte, v Version) (UserOperation, error) {
	switch v {
	case V06:
		op := new(UserOperationV06)
		if err := json.Unmarshal(data, op); err != nil {
			return nil, err
		}
		return op, nil
	case V07:
		op := new(UserOperationV07)
		if err := json.Unmarshal(data, op); err != nil {
			return nil, err
		}
		return op, nil
	default:
		return nil, v.Validate()
	}
}
