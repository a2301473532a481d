// Package userop builds, encodes, hashes and gas-accounts ERC-4337 user
// operations for the v0.6 and v0.7 entry point schemas, and turns bundler
// and paymaster responses into typed values and errors.
//
// The two schemas are modelled as two concrete types behind the sealed
// UserOperation interface. Every operation in this package dispatches on the
// concrete type; the schema is never guessed from which fields are set.
//
// Nothing in this package performs I/O or keeps state between calls, so all
// functions are safe for concurrent use.
package userop

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UserOperation is implemented by *UserOperationV06 and *UserOperationV07 only.
type UserOperation interface {
	// Version reports the entry point schema of the operation.
	Version() Version
	// GetSender returns the account the operation executes for.
	GetSender() common.Address

	sealed()
}

// UserOperationV06 is the entry point v0.6 layout. Nil gas and fee fields
// are treated as not yet estimated.
type UserOperationV06 struct {
	Sender               common.Address
	Nonce                *big.Int
	InitCode             []byte
	CallData             []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
	Signature            []byte
}

// UserOperationV07 is the entry point v0.7 layout. The factory and paymaster
// are separate fields here; Pack folds them into the on-chain packed form.
type UserOperationV07 struct {
	Sender                        common.Address
	Nonce                         *big.Int
	Factory                       *common.Address
	FactoryData                   []byte
	CallData                      []byte
	CallGasLimit                  *big.Int
	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	MaxFeePerGas                  *big.Int
	MaxPriorityFeePerGas          *big.Int
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
	Signature                     []byte
}

func (op *UserOperationV06) Version() Version          { return V06 }
func (op *UserOperationV06) GetSender() common.Address { return op.Sender }
func (op *UserOperationV06) sealed()                   {}

func (op *UserOperationV07) Version() Version          { return V07 }
func (op *UserOperationV07) GetSender() common.Address { return op.Sender }
func (op *UserOperationV07) sealed()                   {}

// HasPaymaster reports whether a paymaster sponsors the operation.
func (op *UserOperationV06) HasPaymaster() bool {
	return len(op.PaymasterAndData) > 0
}

// HasPaymaster reports whether a paymaster sponsors the operation.
func (op *UserOperationV07) HasPaymaster() bool {
	return op.Paymaster != nil
}

// InitCode returns factory||factoryData, or nil when no factory is set.
func (op *UserOperationV07) InitCode() []byte {
	if op.Factory == nil {
		return nil
	}
	initCode := make([]byte, 0, AddressLength+len(op.FactoryData))
	initCode = append(initCode, op.Factory.Bytes()...)
	return append(initCode, op.FactoryData...)
}

// Copy returns a deep copy of the operation.
func (op *UserOperationV06) Copy() *UserOperationV06 {
	return &UserOperationV06{
		Sender:               op.Sender,
		Nonce:                copyBig(op.Nonce),
		InitCode:             common.CopyBytes(op.InitCode),
		CallData:             common.CopyBytes(op.CallData),
		CallGasLimit:         copyBig(op.CallGasLimit),
		VerificationGasLimit: copyBig(op.VerificationGasLimit),
		PreVerificationGas:   copyBig(op.PreVerificationGas),
		MaxFeePerGas:         copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(op.MaxPriorityFeePerGas),
		PaymasterAndData:     common.CopyBytes(op.PaymasterAndData),
		Signature:            common.CopyBytes(op.Signature),
	}
}

// Copy returns a deep copy of the operation.
func (op *UserOperationV07) Copy() *UserOperationV07 {
	return &UserOperationV07{
		Sender:                        op.Sender,
		Nonce:                         copyBig(op.Nonce),
		Factory:                       copyAddress(op.Factory),
		FactoryData:                   common.CopyBytes(op.FactoryData),
		CallData:                      common.CopyBytes(op.CallData),
		CallGasLimit:                  copyBig(op.CallGasLimit),
		VerificationGasLimit:          copyBig(op.VerificationGasLimit),
		PreVerificationGas:            copyBig(op.PreVerificationGas),
		MaxFeePerGas:                  copyBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas:          copyBig(op.MaxPriorityFeePerGas),
		Paymaster:                     copyAddress(op.Paymaster),
		PaymasterVerificationGasLimit: copyBig(op.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       copyBig(op.PaymasterPostOpGasLimit),
		PaymasterData:                 common.CopyBytes(op.PaymasterData),
		Signature:                     common.CopyBytes(op.Signature),
	}
}

func copyBig(b *big.Int) *big.Int {
	if b == nil {
		return nil
	}
	return new(big.Int).Set(b)
}

func copyAddress(a *common.Address) *common.Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func formatBytes(b []byte) string {
	return fmt.Sprintf("0x%x", b)
}

func formatBigInt(b *big.Int) string {
	if b == nil {
		return "<unset>"
	}
	return fmt.Sprintf("0x%x, %s", b, b.Text(10))
}

func formatAddress(a *common.Address) string {
	if a == nil {
		return "<none>"
	}
	return a.Hex()
}

func (op *UserOperationV06) String() string {
	return fmt.Sprintf(
		"UserOperation(v0.6){\n"+
			"  Sender: %s\n"+
			"  Nonce: %s\n"+
			"  InitCode: %s\n"+
			"  CallData: %s\n"+
			"  CallGasLimit: %s\n"+
			"  VerificationGasLimit: %s\n"+
			"  PreVerificationGas: %s\n"+
			"  MaxFeePerGas: %s\n"+
			"  MaxPriorityFeePerGas: %s\n"+
			"  PaymasterAndData: %s\n"+
			"  Signature: %s\n"+
			"}",
		op.Sender.Hex(),
		formatBigInt(op.Nonce),
		formatBytes(op.InitCode),
		formatBytes(op.CallData),
		formatBigInt(op.CallGasLimit),
		formatBigInt(op.VerificationGasLimit),
		formatBigInt(op.PreVerificationGas),
		formatBigInt(op.MaxFeePerGas),
		formatBigInt(op.MaxPriorityFeePerGas),
		formatBytes(op.PaymasterAndData),
		formatBytes(op.Signature),
	)
}

func (op *UserOperationV07) String() string {
	return fmt.Sprintf(
		"UserOperation(v0.7){\n"+
			"  Sender: %s\n"+
			"  Nonce: %s\n"+
			"  Factory: %s\n"+
			"  FactoryData: %s\n"+
			"  CallData: %s\n"+
			"  CallGasLimit: %s\n"+
			"  VerificationGasLimit: %s\n"+
			"  PreVerificationGas: %s\n"+
			"  MaxFeePerGas: %s\n"+
			"  MaxPriorityFeePerGas: %s\n"+
			"  Paymaster: %s\n"+
			"  PaymasterVerificationGasLimit: %s\n"+
			"  PaymasterPostOpGasLimit: %s\n"+
			"  PaymasterData: %s\n"+
			"  Signature: %s\n"+
			"}",
		op.Sender.Hex(),
		formatBigInt(op.Nonce),
		formatAddress(op.Factory),
		formatBytes(op.FactoryData),
		formatBytes(op.CallData),
		formatBigInt(op.CallGasLimit),
		formatBigInt(op.VerificationGasLimit),
		formatBigInt(op.PreVerificationGas),
		formatBigInt(op.MaxFeePerGas),
		formatBigInt(op.MaxPriorityFeePerGas),
		formatAddress(op.Paymaster),
		formatBigInt(op.PaymasterVerificationGasLimit),
		formatBigInt(op.PaymasterPostOpGasLimit),
		formatBytes(op.PaymasterData),
		formatBytes(op.Signature),
	)
}
