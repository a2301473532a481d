package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// AddressLength is the width of an address embedded at the start of
	// initCode and paymasterAndData.
	AddressLength = common.AddressLength

	// Offsets inside a v0.7 packed paymasterAndData blob.
	PaymasterValidationGasOffset = AddressLength
	PaymasterPostOpGasOffset     = PaymasterValidationGasOffset + packedGasLength
	PaymasterDataOffset          = PaymasterPostOpGasOffset + packedGasLength

	packedGasLength = 16
)

// ExtractAddress returns the address held in the first 20 bytes of an
// initCode or paymasterAndData blob. An empty blob carries no address and
// yields nil. Blobs of 1 to 19 bytes are truncated and rejected.
func ExtractAddress(blob []byte, v Version) (*common.Address, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	switch {
	case len(blob) == 0:
		return nil, nil
	case len(blob) < AddressLength:
		return nil, &MalformedBlobError{Version: v, Length: len(blob)}
	default:
		addr := common.BytesToAddress(blob[:AddressLength])
		return &addr, nil
	}
}

// GetFactory returns the factory address from InitCode, or nil when the
// account is already deployed.
func (op *UserOperationV06) GetFactory() (*common.Address, error) {
	return ExtractAddress(op.InitCode, V06)
}

// GetPaymaster returns the paymaster address from PaymasterAndData, or nil
// when the operation is not sponsored.
func (op *UserOperationV06) GetPaymaster() (*common.Address, error) {
	return ExtractAddress(op.PaymasterAndData, V06)
}

// GetFactory returns the factory address. v0.7 carries it in its own field.
func (op *UserOperationV07) GetFactory() (*common.Address, error) {
	return copyAddress(op.Factory), nil
}

// GetPaymaster returns the paymaster address. v0.7 carries it in its own
// field.
func (op *UserOperationV07) GetPaymaster() (*common.Address, error) {
	return copyAddress(op.Paymaster), nil
}

// PaymasterFields are the components of a v0.7 packed paymasterAndData blob.
type PaymasterFields struct {
	Paymaster                     common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
}

// UnpackPaymasterAndData splits a v0.7 packed paymasterAndData blob:
//
//	paymaster (20) | verificationGasLimit (16) | postOpGasLimit (16) | data
//
// An empty blob yields nil.
func UnpackPaymasterAndData(blob []byte) (*PaymasterFields, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < PaymasterDataOffset {
		return nil, &MalformedBlobError{Version: V07, Length: len(blob)}
	}
	return &PaymasterFields{
		Paymaster:                     common.BytesToAddress(blob[:PaymasterValidationGasOffset]),
		PaymasterVerificationGasLimit: new(big.Int).SetBytes(blob[PaymasterValidationGasOffset:PaymasterPostOpGasOffset]),
		PaymasterPostOpGasLimit:       new(big.Int).SetBytes(blob[PaymasterPostOpGasOffset:PaymasterDataOffset]),
		PaymasterData:                 common.CopyBytes(blob[PaymasterDataOffset:]),
	}, nil
}
