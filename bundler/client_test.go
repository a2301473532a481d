package bundler

import (
	"context"
	"errors"
	"math/big"
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/blndgs/userop"
)

type recordedCall struct {
	method string
	args   []any
}

// fakeTransport answers calls from canned results or errors per method.
type fakeTransport struct {
	results map[string]string
	errs    map[string]error
	calls   []recordedCall
}

func (f *fakeTransport) CallContext(_ context.Context, result any, method string, args ...any) error {
	f.calls = append(f.calls, recordedCall{method: method, args: args})
	if err, ok := f.errs[method]; ok {
		return err
	}
	raw, ok := f.results[method]
	if !ok {
		return userop.RPCError{Code: -32601, Message: "method not found"}
	}
	return json.Unmarshal([]byte(raw), result)
}

func newTestClient(t *testing.T, ft *fakeTransport, v userop.Version) *Client {
	t.Helper()
	logger, err := sdklogging.NewZapLogger(sdklogging.Development)
	require.NoError(t, err)
	c, err := NewClient(ft, v, WithLogger(logger))
	require.NoError(t, err)
	return c
}

func mockOpV06() *userop.UserOperationV06 {
	return &userop.UserOperationV06{
		Sender:               common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"),
		Nonce:                big.NewInt(0),
		CallGasLimit:         big.NewInt(21000),
		VerificationGasLimit: big.NewInt(100000),
		PreVerificationGas:   big.NewInt(21000),
		MaxFeePerGas:         big.NewInt(1_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}
}

func mockOpV07() *userop.UserOperationV07 {
	return &userop.UserOperationV07{
		Sender:   common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"),
		Nonce:    big.NewInt(1),
		CallData: []byte{0xde, 0xad},
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, userop.V06)
	require.Error(t, err)

	_, err = NewClient(&fakeTransport{}, userop.Version("v0.8"))
	require.ErrorIs(t, err, userop.ErrUnsupportedVersion)

	c, err := NewClient(&fakeTransport{}, userop.V07)
	require.NoError(t, err)
	require.Equal(t, userop.EntryPointV07Address, c.EntryPoint())
	require.Equal(t, userop.V07, c.Version())

	custom := common.HexToAddress("0x1234567890123456789012345678901234567890")
	c, err = NewClient(&fakeTransport{}, userop.V06, WithEntryPoint(custom))
	require.NoError(t, err)
	require.Equal(t, custom, c.EntryPoint())
}

func TestEstimateUserOperationGas(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodEstimateUserOperationGas: `{"preVerificationGas":"0x5208","verificationGasLimit":"0x186a0","callGasLimit":"0x5208","paymasterVerificationGasLimit":"0x100"}`,
	}}
	c := newTestClient(t, ft, userop.V07)

	op := mockOpV07()
	est, err := c.EstimateUserOperationGas(context.Background(), op)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(21000), est.PreVerificationGas)
	require.Equal(t, big.NewInt(100000), est.VerificationGasLimit)
	require.Equal(t, big.NewInt(256), est.PaymasterVerificationGasLimit)
	require.Equal(t, int64(0), est.PaymasterPostOpGasLimit.Int64())

	require.Len(t, ft.calls, 1)
	require.Len(t, ft.calls[0].args, 2)
	require.Equal(t, userop.EntryPointV07Address.Hex(), ft.calls[0].args[1])
	payload, ok := ft.calls[0].args[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "0x1", payload["nonce"])
	require.Equal(t, "0xdead", payload["callData"])
	require.NotContains(t, payload, "callGasLimit")
}

func TestEstimateUserOperationGasVersionMismatch(t *testing.T) {
	ft := &fakeTransport{}
	c := newTestClient(t, ft, userop.V06)

	_, err := c.EstimateUserOperationGas(context.Background(), mockOpV07())
	require.ErrorIs(t, err, userop.ErrVersionMismatch)
	require.Empty(t, ft.calls)
}

func TestEstimateUserOperationGasStateOverrides(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodEstimateUserOperationGas: `{"preVerificationGas":"0x1","verificationGasLimit":"0x2","callGasLimit":"0x3"}`,
	}}
	c := newTestClient(t, ft, userop.V06)
	ctx := context.Background()
	op := mockOpV06()
	nonce := uint64(7)
	overrides := StateOverrides{
		op.Sender: {Balance: big.NewInt(1_000_000), Nonce: &nonce},
	}

	_, err := c.EstimateUserOperationGas(ctx, op, WithStateOverrides(overrides))
	require.NoError(t, err)
	_, err = c.EstimateUserOperationGas(ctx, op, WithStateOverrides(StateOverrides{}))
	require.NoError(t, err)
	_, err = c.EstimateUserOperationGas(ctx, op)
	require.NoError(t, err)

	require.Len(t, ft.calls, 3)
	require.Len(t, ft.calls[0].args, 3)
	require.Equal(t, map[string]any{
		op.Sender.Hex(): map[string]any{"balance": "0xf4240", "nonce": "0x7"},
	}, ft.calls[0].args[2])
	require.Len(t, ft.calls[1].args, 2)
	require.Len(t, ft.calls[2].args, 2)
}

func TestSendCompressedUserOperation(t *testing.T) {
	hash := "0x6f8a1a7f8c0c2b1d2d4d6f1c3c5b9e7a2b4c6d8e0f1a3b5c7d9e1f2a3b4c5d6e"
	ft := &fakeTransport{results: map[string]string{
		userop.MethodSendCompressedUserOperation: `"` + hash + `"`,
	}}
	c := newTestClient(t, ft, userop.V07)
	inflator := common.HexToAddress("0x3333333333333333333333333333333333333333")

	_, err := c.SendCompressedUserOperation(context.Background(), nil, inflator)
	require.Error(t, err)
	require.Empty(t, ft.calls)

	got, err := c.SendCompressedUserOperation(context.Background(), []byte{0xde, 0xad, 0xbe, 0xef}, inflator)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash(hash), got)
	require.Len(t, ft.calls, 1)
	require.Equal(t, []any{"0xdeadbeef", inflator.Hex(), userop.EntryPointV07Address.Hex()}, ft.calls[0].args)
}

func TestEstimateUserOperationGasClassifiesErrors(t *testing.T) {
	ft := &fakeTransport{errs: map[string]error{
		userop.MethodEstimateUserOperationGas: userop.RPCError{Code: -32500, Message: "AA21 didn't pay prefund"},
	}}
	c := newTestClient(t, ft, userop.V06)

	op := mockOpV06()
	_, err := c.EstimateUserOperationGas(context.Background(), op)
	require.ErrorIs(t, err, userop.ErrBundler)
	require.ErrorIs(t, err, userop.ErrValidationRejected)

	var be *userop.BundlerError
	require.True(t, errors.As(err, &be))
	require.Equal(t, userop.KindValidationRejected, be.Kind)
	require.Equal(t, "AA21", be.AACode)
	require.Same(t, op, be.Operation)
	require.Equal(t, userop.V06, be.Version)
}

func TestSendUserOperation(t *testing.T) {
	hash := "0x6f8a1a7f8c0c2b1d2d4d6f1c3c5b9e7a2b4c6d8e0f1a3b5c7d9e1f2a3b4c5d6e"
	ft := &fakeTransport{results: map[string]string{
		userop.MethodSendUserOperation: `"` + hash + `"`,
	}}
	c := newTestClient(t, ft, userop.V06)

	got, err := c.SendUserOperation(context.Background(), mockOpV06())
	require.NoError(t, err)
	require.Equal(t, common.HexToHash(hash), got)
}

func TestSendUserOperationInvalidHash(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodSendUserOperation: `"0x1234"`,
	}}
	c := newTestClient(t, ft, userop.V06)

	_, err := c.SendUserOperation(context.Background(), mockOpV06())
	require.ErrorIs(t, err, userop.ErrInvalidBundlerResponse)
}

func TestGetUserOperationByHash(t *testing.T) {
	tests := []struct {
		name    string
		result  string
		wantNil bool
		wantErr bool
	}{
		{
			name:    "unknown hash",
			result:  `null`,
			wantNil: true,
		},
		{
			name: "pending operation",
			result: `{"userOperation":{"sender":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","nonce":"0x0","initCode":"0x","callData":"0x","paymasterAndData":"0x","signature":"0x"},
				"entryPoint":"0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"}`,
		},
		{
			name:    "missing entry point",
			result:  `{"userOperation":{"sender":"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"}}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransport{results: map[string]string{userop.MethodGetUserOperationByHash: tt.result}}
			c := newTestClient(t, ft, userop.V06)

			got, err := c.GetUserOperationByHash(context.Background(), common.Hash{1})
			if tt.wantErr {
				require.ErrorIs(t, err, userop.ErrInvalidBundlerResponse)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				require.Nil(t, got)
				return
			}
			require.Equal(t, userop.EntryPointV06Address, got.EntryPoint)
			require.Equal(t, userop.V06, got.UserOperation.Version())
			require.Nil(t, got.BlockNumber)
		})
	}
}

func TestCheckEntryPoint(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodSupportedEntryPoints: `["0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"]`,
	}}

	c := newTestClient(t, ft, userop.V06)
	require.NoError(t, c.CheckEntryPoint(context.Background()))

	c = newTestClient(t, ft, userop.V07)
	err := c.CheckEntryPoint(context.Background())
	require.ErrorIs(t, err, userop.ErrUnsupportedEntryPoint)
}

func TestSponsorUserOperation(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodSponsorUserOperation: `{"paymaster":"0x1111111111111111111111111111111111111111","paymasterData":"0xabcd",
			"paymasterVerificationGasLimit":"0x7530","paymasterPostOpGasLimit":"0x1","callGasLimit":"0x5208"}`,
	}}
	c := newTestClient(t, ft, userop.V07)

	op := mockOpV07()
	res, err := c.SponsorUserOperation(context.Background(), op, "sp_test")
	require.NoError(t, err)
	require.NoError(t, res.Apply(op))

	require.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), *op.Paymaster)
	require.Equal(t, []byte{0xab, 0xcd}, op.PaymasterData)
	require.Equal(t, big.NewInt(30000), op.PaymasterVerificationGasLimit)
	require.Equal(t, big.NewInt(21000), op.CallGasLimit)
	require.Nil(t, op.VerificationGasLimit)

	require.Len(t, ft.calls[0].args, 3)
	require.Equal(t, map[string]string{"sponsorshipPolicyId": "sp_test"}, ft.calls[0].args[2])
}

func TestValidateSponsorshipPolicies(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodValidateSponsorshipPolicies: `[{"sponsorshipPolicyId":"sp_a","data":{"name":"Free mints","author":"team"}}]`,
	}}
	c := newTestClient(t, ft, userop.V06)

	policies, err := c.ValidateSponsorshipPolicies(context.Background(), mockOpV06(), []string{"sp_a", "sp_b"})
	require.NoError(t, err)
	require.Len(t, policies, 1)
	require.Equal(t, "sp_a", policies[0].ID)
	require.Equal(t, "Free mints", *policies[0].Name)
	require.Nil(t, policies[0].Icon)
}

func TestGetUserOperationStatusAndGasPrice(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodGetUserOperationStatus: `{"status":"included","transactionHash":"0x6f8a1a7f8c0c2b1d2d4d6f1c3c5b9e7a2b4c6d8e0f1a3b5c7d9e1f2a3b4c5d6e"}`,
		userop.MethodGetUserOperationGasPrice: `{"slow":{"maxFeePerGas":"0x1","maxPriorityFeePerGas":"0x1"},
			"standard":{"maxFeePerGas":"0x2","maxPriorityFeePerGas":"0x1"},
			"fast":{"maxFeePerGas":"0x3","maxPriorityFeePerGas":"0x2"}}`,
	}}
	c := newTestClient(t, ft, userop.V06)

	status, err := c.GetUserOperationStatus(context.Background(), common.Hash{2})
	require.NoError(t, err)
	require.Equal(t, userop.StatusIncluded, status.Status)
	require.True(t, status.Status.Terminal())
	require.NotNil(t, status.TransactionHash)

	tiers, err := c.GetUserOperationGasPrice(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(3), tiers.Fast.MaxFeePerGas)
	require.Equal(t, big.NewInt(1), tiers.Standard.MaxPriorityFeePerGas)
}

func TestGetUserOperationReceiptPending(t *testing.T) {
	ft := &fakeTransport{results: map[string]string{
		userop.MethodGetUserOperationReceipt: `null`,
	}}
	c := newTestClient(t, ft, userop.V07)

	receipt, err := c.GetUserOperationReceipt(context.Background(), common.Hash{3})
	require.NoError(t, err)
	require.Nil(t, receipt)
}
