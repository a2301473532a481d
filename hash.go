package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GetUserOpHash returns the identifier the entry point computes for op:
//
//	keccak256(abi.encode(keccak256(EncodeForHash(op)), entryPoint, chainID))
//
// This is the value the account signs. Binding the entry point and chain id
// prevents a signature from being replayed elsewhere.
func GetUserOpHash(op UserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	if op == nil {
		return common.Hash{}, ErrUnsupportedVersion
	}
	if err := checkFields(op.Version(), uintField{"chainId", chainID, 256}); err != nil {
		return common.Hash{}, err
	}

	encoded, err := EncodeForHash(op)
	if err != nil {
		return common.Hash{}, err
	}

	packed, err := userOpHashArguments.Pack(crypto.Keccak256Hash(encoded), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}
