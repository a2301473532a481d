package userop

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
)

// JSON-RPC error codes used by ERC-4337 bundlers and paymasters.
const (
	CodeInvalidParams         = -32602
	CodeValidationRejected    = -32500
	CodePaymasterRejected     = -32501
	CodeOpcodeViolation       = -32502
	CodeTimeRangeViolation    = -32503
	CodeThrottled             = -32504
	CodeStakeTooLow           = -32505
	CodeUnsupportedAggregator = -32506
	CodeInvalidSignature      = -32507
	CodeExecutionReverted     = -32521
	CodeTooManyRequests       = 429
)

// BundlerErrorKind is the class of a bundler or paymaster failure.
type BundlerErrorKind string

const (
	KindValidationRejected    BundlerErrorKind = "validation rejected"
	KindSimulationReverted    BundlerErrorKind = "simulation reverted"
	KindRateLimited           BundlerErrorKind = "rate limited"
	KindUnsupportedEntryPoint BundlerErrorKind = "unsupported entry point"
	KindUnknown               BundlerErrorKind = "unknown"
)

// Kind sentinels. A *BundlerError unwraps to ErrBundler and to the sentinel
// of its kind.
const (
	ErrValidationRejected    userOperationError = "validation rejected"
	ErrSimulationReverted    userOperationError = "simulation reverted"
	ErrRateLimited           userOperationError = "rate limited"
	ErrUnsupportedEntryPoint userOperationError = "unsupported entry point"
)

func (k BundlerErrorKind) sentinel() error {
	switch k {
	case KindValidationRejected:
		return ErrValidationRejected
	case KindSimulationReverted:
		return ErrSimulationReverted
	case KindRateLimited:
		return ErrRateLimited
	case KindUnsupportedEntryPoint:
		return ErrUnsupportedEntryPoint
	default:
		return nil
	}
}

// RPCError is a JSON-RPC error object as returned by a bundler.
type RPCError struct {
	Code    int    `mapstructure:"code"    json:"code"`
	Message string `mapstructure:"message" json:"message"`
	Data    any    `mapstructure:"data"    json:"data,omitempty"`
}

func (e RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// DecodeRPCError decodes a loosely typed error object, such as one taken
// from a generic JSON response. Numeric codes given as strings or floats are
// accepted.
func DecodeRPCError(payload map[string]any) (RPCError, error) {
	var out RPCError
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return RPCError{}, err
	}
	if err := dec.Decode(payload); err != nil {
		return RPCError{}, fmt.Errorf("failed to decode rpc error: %w", err)
	}
	if _, ok := payload["code"]; !ok {
		return RPCError{}, fmt.Errorf("failed to decode rpc error: code is missing")
	}
	return out, nil
}

// BundlerError is a classified bundler or paymaster RPC failure. It keeps the
// raw payload and the operation the request was made for.
type BundlerError struct {
	Kind      BundlerErrorKind
	Code      int
	Message   string
	Data      any
	AACode    string
	Reason    string
	Operation UserOperation
	Version   Version
}

func (e *BundlerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (code %d", ErrBundler, e.Kind, e.Code)
	if e.Version != "" {
		fmt.Fprintf(&b, ", %s", e.Version)
	}
	b.WriteString("): ")
	b.WriteString(e.Message)
	if e.Reason != "" && !strings.Contains(e.Message, e.Reason) {
		fmt.Fprintf(&b, " (%s)", e.Reason)
	}
	return b.String()
}

func (e *BundlerError) Unwrap() []error {
	if s := e.Kind.sentinel(); s != nil {
		return []error{ErrBundler, s}
	}
	return []error{ErrBundler}
}

var aaCodePattern = regexp.MustCompile(`\bAA([0-9])([0-9])\b`)

// aaReasons describes the entry point's AA revert codes.
var aaReasons = map[string]string{
	"AA10": "sender already constructed",
	"AA13": "initCode failed or OOG",
	"AA14": "initCode must return sender",
	"AA15": "initCode must create sender",
	"AA20": "account not deployed",
	"AA21": "didn't pay prefund",
	"AA22": "expired or not due",
	"AA23": "reverted (or OOG)",
	"AA24": "signature error",
	"AA25": "invalid account nonce",
	"AA30": "paymaster not deployed",
	"AA31": "paymaster deposit too low",
	"AA32": "paymaster expired or not due",
	"AA33": "reverted (or OOG)",
	"AA34": "signature error",
	"AA40": "over verificationGasLimit",
	"AA41": "too little verificationGas",
	"AA50": "postOp reverted",
	"AA51": "prefund below actualGasCost",
	"AA90": "invalid beneficiary",
	"AA91": "failed send to beneficiary",
	"AA92": "internal call only",
	"AA93": "invalid paymasterAndData",
	"AA94": "gas values overflow",
	"AA95": "out of gas",
	"AA96": "invalid aggregator",
}

// AAReason returns the description of an AA revert code.
func AAReason(code string) (string, bool) {
	reason, ok := aaReasons[strings.ToUpper(code)]
	return reason, ok
}

// KnownAACodes lists the AA revert codes AAReason can describe, sorted.
func KnownAACodes() []string {
	codes := lo.Keys(aaReasons)
	slices.Sort(codes)
	return codes
}

// findAACode returns the first AA code in the message or in string data.
func findAACode(message string, data any) string {
	candidates := []string{message}
	if s, ok := data.(string); ok {
		candidates = append(candidates, s)
	}
	if m, ok := data.(map[string]any); ok {
		for _, k := range []string{"reason", "message"} {
			if s, ok := m[k].(string); ok {
				candidates = append(candidates, s)
			}
		}
	}
	codes := lo.FilterMap(candidates, func(s string, _ int) (string, bool) {
		m := aaCodePattern.FindString(s)
		return m, m != ""
	})
	if len(codes) == 0 {
		return ""
	}
	return codes[0]
}

func isUnsupportedEntryPoint(message string) bool {
	msg := strings.ToLower(message)
	return (strings.Contains(msg, "entrypoint") || strings.Contains(msg, "entry point")) && (strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "unsupported") || strings.Contains(msg, "not whitelisted"))
}

func isRateLimited(message string) bool {
	msg := strings.ToLower(message)
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// kindForAACode classifies by the code's group: AA1x to AA4x are rejected
// during validation, AA5x and AA9x are reverts of the bundle simulation.
func kindForAACode(code string) BundlerErrorKind {
	switch code[2] {
	case '1', '2', '3', '4':
		return KindValidationRejected
	case '5', '9':
		return KindSimulationReverted
	default:
		return KindUnknown
	}
}

// ClassifyRPCError maps a bundler error object onto a BundlerError. Unknown
// codes and messages yield KindUnknown with the payload kept intact.
func ClassifyRPCError(rpcErr RPCError, op UserOperation) *BundlerError {
	be := &BundlerError{
		Kind:      KindUnknown,
		Code:      rpcErr.Code,
		Message:   rpcErr.Message,
		Data:      rpcErr.Data,
		Operation: op,
	}
	if op != nil {
		be.Version = op.Version()
	}
	if code := findAACode(rpcErr.Message, rpcErr.Data); code != "" {
		be.AACode = code
		be.Reason, _ = AAReason(code)
	}

	switch {
	case rpcErr.Code == CodeTooManyRequests || rpcErr.Code == CodeThrottled || isRateLimited(rpcErr.Message):
		be.Kind = KindRateLimited
	case isUnsupportedEntryPoint(rpcErr.Message):
		be.Kind = KindUnsupportedEntryPoint
	case be.AACode != "":
		be.Kind = kindForAACode(be.AACode)
	case lo.Contains([]int{
		CodeValidationRejected,
		CodePaymasterRejected,
		CodeOpcodeViolation,
		CodeTimeRangeViolation,
		CodeStakeTooLow,
		CodeUnsupportedAggregator,
		CodeInvalidSignature,
	}, rpcErr.Code):
		be.Kind = KindValidationRejected
	case rpcErr.Code == CodeExecutionReverted:
		be.Kind = KindSimulationReverted
	}
	return be
}

// ClassifyError classifies an error returned by an RPC client. Errors that
// carry a JSON-RPC code, such as those of go-ethereum's rpc package, are
// classified like ClassifyRPCError; anything else is returned unchanged.
func ClassifyError(err error, op UserOperation) error {
	if err == nil {
		return nil
	}
	var be *BundlerError
	if errors.As(err, &be) {
		return err
	}

	var rpcErr RPCError
	if errors.As(err, &rpcErr) {
		return ClassifyRPCError(rpcErr, op)
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return ClassifyRPCError(RPCError{
			Code:    httpErr.StatusCode,
			Message: httpErr.Status,
			Data:    string(httpErr.Body),
		}, op)
	}
	var codeErr rpc.Error
	if !errors.As(err, &codeErr) {
		return err
	}
	rpcErr = RPCError{Code: codeErr.ErrorCode(), Message: codeErr.Error()}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		rpcErr.Data = dataErr.ErrorData()
	}
	return ClassifyRPCError(rpcErr, op)
}
