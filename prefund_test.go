package userop

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetRequiredPrefund(t *testing.T) {
	tests := []struct {
		name string
		op   func() UserOperation
		opts []PrefundOption
		want string
	}{
		{
			name: "v0.6 without paymaster",
			op:   func() UserOperation { return mockUserOpV06() },
			want: "142000000000000",
		},
		{
			name: "v0.6 with paymaster",
			op: func() UserOperation {
				op := mockUserOpV06()
				op.PaymasterAndData = append(mockPaymaster.Bytes(), 0x01)
				return op
			},
			want: "342000000000000",
		},
		{
			name: "v0.6 with paymaster and custom multiplier",
			op: func() UserOperation {
				op := mockUserOpV06()
				op.PaymasterAndData = mockPaymaster.Bytes()
				return op
			},
			opts: []PrefundOption{WithPaymasterVerificationMultiplier(2)},
			want: "242000000000000",
		},
		{
			name: "v0.6 multiplier ignored without paymaster",
			op:   func() UserOperation { return mockUserOpV06() },
			opts: []PrefundOption{WithPaymasterVerificationMultiplier(5)},
			want: "142000000000000",
		},
		{
			name: "v0.6 zero multiplier clamps to one",
			op: func() UserOperation {
				op := mockUserOpV06()
				op.PaymasterAndData = mockPaymaster.Bytes()
				return op
			},
			opts: []PrefundOption{WithPaymasterVerificationMultiplier(0)},
			want: "142000000000000",
		},
		{
			// (21000 + 100000 + 21000 + 30000 + 10000) * 2 gwei
			name: "v0.7 with paymaster",
			op:   func() UserOperation { return mockUserOpV07() },
			want: "364000000000000",
		},
		{
			name: "v0.7 without paymaster",
			op: func() UserOperation {
				op := mockUserOpV07()
				op.Paymaster = nil
				op.PaymasterVerificationGasLimit = nil
				op.PaymasterPostOpGasLimit = nil
				return op
			},
			want: "284000000000000",
		},
		{
			name: "v0.7 multiplier has no effect",
			op:   func() UserOperation { return mockUserOpV07() },
			opts: []PrefundOption{WithPaymasterVerificationMultiplier(10)},
			want: "364000000000000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GetRequiredPrefund(tt.op(), tt.opts...)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestGetRequiredPrefundMonotonic(t *testing.T) {
	setters := map[string]func(op *UserOperationV07, v *big.Int){
		"callGasLimit":                  func(op *UserOperationV07, v *big.Int) { op.CallGasLimit = v },
		"verificationGasLimit":          func(op *UserOperationV07, v *big.Int) { op.VerificationGasLimit = v },
		"preVerificationGas":            func(op *UserOperationV07, v *big.Int) { op.PreVerificationGas = v },
		"paymasterVerificationGasLimit": func(op *UserOperationV07, v *big.Int) { op.PaymasterVerificationGasLimit = v },
		"paymasterPostOpGasLimit":       func(op *UserOperationV07, v *big.Int) { op.PaymasterPostOpGasLimit = v },
	}
	for field, set := range setters {
		t.Run(field, func(t *testing.T) {
			prev := big.NewInt(0)
			for _, gas := range []int64{0, 1, 1000, 50000, 1 << 40} {
				op := mockUserOpV07()
				set(op, big.NewInt(gas))
				got, err := GetRequiredPrefund(op)
				require.NoError(t, err)
				require.GreaterOrEqual(t, got.Cmp(prev), 0)
				prev = got
			}
		})
	}

	v06Setters := map[string]func(op *UserOperationV06, v *big.Int){
		"callGasLimit":         func(op *UserOperationV06, v *big.Int) { op.CallGasLimit = v },
		"verificationGasLimit": func(op *UserOperationV06, v *big.Int) { op.VerificationGasLimit = v },
		"preVerificationGas":   func(op *UserOperationV06, v *big.Int) { op.PreVerificationGas = v },
	}
	for field, set := range v06Setters {
		t.Run("v0.6 "+field, func(t *testing.T) {
			prev := big.NewInt(0)
			for _, gas := range []int64{0, 1, 1000, 50000, 1 << 40} {
				op := mockUserOpV06()
				op.PaymasterAndData = mockPaymaster.Bytes()
				set(op, big.NewInt(gas))
				got, err := GetRequiredPrefund(op)
				require.NoError(t, err)
				require.GreaterOrEqual(t, got.Cmp(prev), 0)
				prev = got
			}
		})
	}
}

func TestGetRequiredPrefundErrors(t *testing.T) {
	op := mockUserOpV06()
	op.MaxFeePerGas = nil
	_, err := GetRequiredPrefund(op)
	var incomplete *IncompleteOperationError
	require.True(t, errors.As(err, &incomplete))
	require.Equal(t, "maxFeePerGas", incomplete.Field)

	// maxPriorityFeePerGas does not take part in the prefund
	op = mockUserOpV06()
	op.MaxPriorityFeePerGas = nil
	_, err = GetRequiredPrefund(op)
	require.NoError(t, err)

	op = mockUserOpV06()
	op.MaxFeePerGas = maxUint256()
	_, err = GetRequiredPrefund(op)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	op = mockUserOpV06()
	op.PaymasterAndData = mockPaymaster.Bytes()
	op.VerificationGasLimit = maxUint256()
	_, err = GetRequiredPrefund(op)
	var overflow *ArithmeticOverflowError
	require.True(t, errors.As(err, &overflow))
	require.Equal(t, "verificationGasLimit", overflow.Field)

	v07 := mockUserOpV07()
	v07.CallGasLimit = maxUint256()
	_, err = GetRequiredPrefund(v07)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	v07 = mockUserOpV07()
	v07.PaymasterPostOpGasLimit = nil
	_, err = GetRequiredPrefund(v07)
	require.ErrorIs(t, err, ErrIncompleteOperation)

	_, err = GetRequiredPrefund(nil)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestFormatPrefund(t *testing.T) {
	require.Equal(t, "0.000142", FormatPrefund(big.NewInt(142_000_000_000_000)))
	require.Equal(t, "1", FormatPrefund(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)))
	require.Equal(t, "0", FormatPrefund(nil))
}
