package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	abiAddress, _ = abi.NewType("address", "", nil)
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiBytes32, _ = abi.NewType("bytes32", "", nil)

	// v06HashArguments mirrors UserOperationLib.pack of entry point v0.6.
	v06HashArguments = abi.Arguments{
		{Name: "sender", Type: abiAddress},
		{Name: "nonce", Type: abiUint256},
		{Name: "hashInitCode", Type: abiBytes32},
		{Name: "hashCallData", Type: abiBytes32},
		{Name: "callGasLimit", Type: abiUint256},
		{Name: "verificationGasLimit", Type: abiUint256},
		{Name: "preVerificationGas", Type: abiUint256},
		{Name: "maxFeePerGas", Type: abiUint256},
		{Name: "maxPriorityFeePerGas", Type: abiUint256},
		{Name: "hashPaymasterAndData", Type: abiBytes32},
	}

	// v07HashArguments mirrors UserOperationLib.encode of entry point v0.7.
	v07HashArguments = abi.Arguments{
		{Name: "sender", Type: abiAddress},
		{Name: "nonce", Type: abiUint256},
		{Name: "hashInitCode", Type: abiBytes32},
		{Name: "hashCallData", Type: abiBytes32},
		{Name: "accountGasLimits", Type: abiBytes32},
		{Name: "preVerificationGas", Type: abiUint256},
		{Name: "gasFees", Type: abiBytes32},
		{Name: "hashPaymasterAndData", Type: abiBytes32},
	}

	// userOpHashArguments binds the operation digest to an entry point and chain.
	userOpHashArguments = abi.Arguments{
		{Name: "userOpHash", Type: abiBytes32},
		{Name: "entryPoint", Type: abiAddress},
		{Name: "chainId", Type: abiUint256},
	}
)

// PackedUserOperation is the struct the v0.7 entry point receives on chain.
type PackedUserOperation struct {
	Sender             common.Address `json:"sender"`
	Nonce              *big.Int       `json:"nonce"`
	InitCode           []byte         `json:"initCode"`
	CallData           []byte         `json:"callData"`
	AccountGasLimits   common.Hash    `json:"accountGasLimits"`
	PreVerificationGas *big.Int       `json:"preVerificationGas"`
	GasFees            common.Hash    `json:"gasFees"`
	PaymasterAndData   []byte         `json:"paymasterAndData"`
	Signature          []byte         `json:"signature"`
}

type uintField struct {
	name  string
	value *big.Int
	bits  int
}

// checkFields reports the first unset field, then the first field that does
// not fit its slot.
func checkFields(v Version, fields ...uintField) error {
	for _, f := range fields {
		if f.value == nil {
			return &IncompleteOperationError{Version: v, Field: f.name}
		}
	}
	for _, f := range fields {
		if f.value.Sign() < 0 || f.value.BitLen() > f.bits {
			return &ArithmeticOverflowError{Version: v, Field: f.name, Bits: f.bits}
		}
	}
	return nil
}

// packUint128Pair builds a 32 byte word with hi in the upper and lo in the
// lower 16 bytes. Both values must fit in 128 bits.
func packUint128Pair(hi, lo *big.Int) common.Hash {
	var word common.Hash
	hi.FillBytes(word[:packedGasLength])
	lo.FillBytes(word[packedGasLength:])
	return word
}

// UnpackUint128Pair is the inverse of the v0.7 gas word packing.
func UnpackUint128Pair(word common.Hash) (hi, lo *big.Int) {
	return new(big.Int).SetBytes(word[:packedGasLength]), new(big.Int).SetBytes(word[packedGasLength:])
}

// Pack folds the operation into the on-chain v0.7 layout. Every gas and fee
// field must be set; the paymaster gas limits only when a paymaster is.
func (op *UserOperationV07) Pack() (*PackedUserOperation, error) {
	fields := []uintField{
		{"nonce", op.Nonce, 256},
		{"verificationGasLimit", op.VerificationGasLimit, 128},
		{"callGasLimit", op.CallGasLimit, 128},
		{"preVerificationGas", op.PreVerificationGas, 256},
		{"maxPriorityFeePerGas", op.MaxPriorityFeePerGas, 128},
		{"maxFeePerGas", op.MaxFeePerGas, 128},
	}
	if op.Paymaster != nil {
		fields = append(fields,
			uintField{"paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit, 128},
			uintField{"paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit, 128},
		)
	}
	if err := checkFields(V07, fields...); err != nil {
		return nil, err
	}

	return &PackedUserOperation{
		Sender:             op.Sender,
		Nonce:              new(big.Int).Set(op.Nonce),
		InitCode:           op.InitCode(),
		CallData:           common.CopyBytes(op.CallData),
		AccountGasLimits:   packUint128Pair(op.VerificationGasLimit, op.CallGasLimit),
		PreVerificationGas: new(big.Int).Set(op.PreVerificationGas),
		GasFees:            packUint128Pair(op.MaxPriorityFeePerGas, op.MaxFeePerGas),
		PaymasterAndData:   op.packPaymasterAndData(),
		Signature:          common.CopyBytes(op.Signature),
	}, nil
}

// packPaymasterAndData assumes the paymaster gas limits were checked.
func (op *UserOperationV07) packPaymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	blob := make([]byte, PaymasterDataOffset, PaymasterDataOffset+len(op.PaymasterData))
	copy(blob, op.Paymaster.Bytes())
	op.PaymasterVerificationGasLimit.FillBytes(blob[PaymasterValidationGasOffset:PaymasterPostOpGasOffset])
	op.PaymasterPostOpGasLimit.FillBytes(blob[PaymasterPostOpGasOffset:PaymasterDataOffset])
	return append(blob, op.PaymasterData...)
}

// Unpack expands an on-chain v0.7 operation back into its separate fields.
func (p *PackedUserOperation) Unpack() (*UserOperationV07, error) {
	op := &UserOperationV07{
		Sender:             p.Sender,
		Nonce:              copyBig(p.Nonce),
		CallData:           common.CopyBytes(p.CallData),
		PreVerificationGas: copyBig(p.PreVerificationGas),
		Signature:          common.CopyBytes(p.Signature),
	}
	op.VerificationGasLimit, op.CallGasLimit = UnpackUint128Pair(p.AccountGasLimits)
	op.MaxPriorityFeePerGas, op.MaxFeePerGas = UnpackUint128Pair(p.GasFees)

	factory, err := ExtractAddress(p.InitCode, V07)
	if err != nil {
		return nil, err
	}
	if factory != nil {
		op.Factory = factory
		op.FactoryData = common.CopyBytes(p.InitCode[AddressLength:])
	}

	pm, err := UnpackPaymasterAndData(p.PaymasterAndData)
	if err != nil {
		return nil, err
	}
	if pm != nil {
		op.Paymaster = &pm.Paymaster
		op.PaymasterVerificationGasLimit = pm.PaymasterVerificationGasLimit
		op.PaymasterPostOpGasLimit = pm.PaymasterPostOpGasLimit
		op.PaymasterData = pm.PaymasterData
	}
	return op, nil
}

// EncodeForHash returns the ABI encoding the entry point hashes to derive the
// operation digest. The signature is not part of it.
func EncodeForHash(op UserOperation) ([]byte, error) {
	switch op := op.(type) {
	case *UserOperationV06:
		return encodeV06(op)
	case *UserOperationV07:
		return encodeV07(op)
	default:
		return nil, ErrUnsupportedVersion
	}
}

func encodeV06(op *UserOperationV06) ([]byte, error) {
	if op == nil {
		return nil, &IncompleteOperationError{Version: V06, Field: "operation"}
	}
	if err := checkFields(V06,
		uintField{"nonce", op.Nonce, 256},
		uintField{"callGasLimit", op.CallGasLimit, 256},
		uintField{"verificationGasLimit", op.VerificationGasLimit, 256},
		uintField{"preVerificationGas", op.PreVerificationGas, 256},
		uintField{"maxFeePerGas", op.MaxFeePerGas, 256},
		uintField{"maxPriorityFeePerGas", op.MaxPriorityFeePerGas, 256},
	); err != nil {
		return nil, err
	}

	return v06HashArguments.Pack(
		op.Sender,
		op.Nonce,
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		op.CallGasLimit,
		op.VerificationGasLimit,
		op.PreVerificationGas,
		op.MaxFeePerGas,
		op.MaxPriorityFeePerGas,
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
}

func encodeV07(op *UserOperationV07) ([]byte, error) {
	if op == nil {
		return nil, &IncompleteOperationError{Version: V07, Field: "operation"}
	}
	packed, err := op.Pack()
	if err != nil {
		return nil, err
	}

	return v07HashArguments.Pack(
		packed.Sender,
		packed.Nonce,
		crypto.Keccak256Hash(packed.InitCode),
		crypto.Keccak256Hash(packed.CallData),
		packed.AccountGasLimits,
		packed.PreVerificationGas,
		packed.GasFees,
		crypto.Keccak256Hash(packed.PaymasterAndData),
	)
}
