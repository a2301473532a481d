package userop

import (
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultPaymasterVerificationMultiplier is the factor the v0.6 entry point
// applies to verificationGasLimit when a paymaster is present, covering the
// paymaster's validation and postOp calls.
const DefaultPaymasterVerificationMultiplier = 3

type prefundConfig struct {
	paymasterMultiplier uint64
}

// PrefundOption tunes GetRequiredPrefund.
type PrefundOption func(*prefundConfig)

// WithPaymasterVerificationMultiplier overrides the v0.6 paymaster
// verification multiplier. It has no effect on v0.7 operations, which
// account for paymaster gas with explicit limits. Values below 1 are
// treated as 1.
func WithPaymasterVerificationMultiplier(m uint64) PrefundOption {
	return func(c *prefundConfig) {
		if m < 1 {
			m = 1
		}
		c.paymasterMultiplier = m
	}
}

// GetRequiredPrefund returns the amount of wei the sender, or its paymaster,
// must be able to pay before the entry point runs op:
//
//	v0.6: (callGasLimit + verificationGasLimit*m + preVerificationGas) * maxFeePerGas
//	v0.7: (callGasLimit + verificationGasLimit + preVerificationGas
//	       + paymasterVerificationGasLimit + paymasterPostOpGasLimit) * maxFeePerGas
//
// where m is 3 with a paymaster and 1 without. Arithmetic is done in 256-bit
// words and any overflow is returned as *ArithmeticOverflowError.
func GetRequiredPrefund(op UserOperation, opts ...PrefundOption) (*big.Int, error) {
	cfg := prefundConfig{paymasterMultiplier: DefaultPaymasterVerificationMultiplier}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch op := op.(type) {
	case *UserOperationV06:
		if op == nil {
			return nil, &IncompleteOperationError{Version: V06, Field: "operation"}
		}
		return prefundV06(op, cfg)
	case *UserOperationV07:
		if op == nil {
			return nil, &IncompleteOperationError{Version: V07, Field: "operation"}
		}
		return prefundV07(op)
	default:
		return nil, ErrUnsupportedVersion
	}
}

func prefundV06(op *UserOperationV06, cfg prefundConfig) (*big.Int, error) {
	if err := checkFields(V06,
		uintField{"callGasLimit", op.CallGasLimit, 256},
		uintField{"verificationGasLimit", op.VerificationGasLimit, 256},
		uintField{"preVerificationGas", op.PreVerificationGas, 256},
		uintField{"maxFeePerGas", op.MaxFeePerGas, 256},
	); err != nil {
		return nil, err
	}

	multiplier := uint64(1)
	if op.HasPaymaster() {
		multiplier = cfg.paymasterMultiplier
	}

	acc := prefundAccumulator{version: V06}
	acc.add("callGasLimit", op.CallGasLimit)
	acc.addScaled("verificationGasLimit", op.VerificationGasLimit, multiplier)
	acc.add("preVerificationGas", op.PreVerificationGas)
	return acc.times("maxFeePerGas", op.MaxFeePerGas)
}

func prefundV07(op *UserOperationV07) (*big.Int, error) {
	fields := []uintField{
		{"callGasLimit", op.CallGasLimit, 256},
		{"verificationGasLimit", op.VerificationGasLimit, 256},
		{"preVerificationGas", op.PreVerificationGas, 256},
		{"maxFeePerGas", op.MaxFeePerGas, 256},
	}
	if op.Paymaster != nil {
		fields = append(fields,
			uintField{"paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit, 256},
			uintField{"paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit, 256},
		)
	}
	if err := checkFields(V07, fields...); err != nil {
		return nil, err
	}

	acc := prefundAccumulator{version: V07}
	acc.add("callGasLimit", op.CallGasLimit)
	acc.add("verificationGasLimit", op.VerificationGasLimit)
	acc.add("preVerificationGas", op.PreVerificationGas)
	if op.Paymaster != nil {
		acc.add("paymasterVerificationGasLimit", op.PaymasterVerificationGasLimit)
		acc.add("paymasterPostOpGasLimit", op.PaymasterPostOpGasLimit)
	}
	return acc.times("maxFeePerGas", op.MaxFeePerGas)
}

// prefundAccumulator sums gas terms in a 256-bit word and remembers the first
// term that overflowed. Inputs are already range checked by checkFields.
type prefundAccumulator struct {
	version Version
	sum     uint256.Int
	err     error
}

func (a *prefundAccumulator) add(field string, v *big.Int) {
	a.addScaled(field, v, 1)
}

func (a *prefundAccumulator) addScaled(field string, v *big.Int, factor uint64) {
	if a.err != nil {
		return
	}
	term, _ := uint256.FromBig(v)
	if _, overflow := term.MulOverflow(term, uint256.NewInt(factor)); overflow {
		a.err = &ArithmeticOverflowError{Version: a.version, Field: field, Bits: 256}
		return
	}
	if _, overflow := a.sum.AddOverflow(&a.sum, term); overflow {
		a.err = &ArithmeticOverflowError{Version: a.version, Field: "requiredGas", Bits: 256}
	}
}

func (a *prefundAccumulator) times(field string, price *big.Int) (*big.Int, error) {
	if a.err != nil {
		return nil, a.err
	}
	p, _ := uint256.FromBig(price)
	var prefund uint256.Int
	if _, overflow := prefund.MulOverflow(&a.sum, p); overflow {
		return nil, &ArithmeticOverflowError{Version: a.version, Field: "requiredGas*" + field, Bits: 256}
	}
	return prefund.ToBig(), nil
}

// FormatPrefund renders a wei amount in ether, e.g. "0.000142".
func FormatPrefund(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
