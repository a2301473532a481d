package userop

import (
	"fmt"
)

type userOperationError string

func (e userOperationError) Error() string {
	return string(e)
}

// Sentinel errors. Every typed error below unwraps to one of these so callers
// can match with errors.Is and still reach the details with errors.As.
const (
	ErrMalformedHex            userOperationError = "malformed hex value"
	ErrMalformedBlob           userOperationError = "malformed embedded address blob"
	ErrIncompleteOperation     userOperationError = "incomplete UserOperation"
	ErrArithmeticOverflow      userOperationError = "arithmetic overflow"
	ErrInvalidEstimateResponse userOperationError = "invalid gas estimate response"
	ErrInvalidBundlerResponse  userOperationError = "invalid bundler response"
	ErrUnsupportedVersion      userOperationError = "unsupported entry point version"
	ErrVersionMismatch         userOperationError = "entry point version mismatch"
	ErrBundler                 userOperationError = "bundler error"
)

// MalformedHexError reports a wire value that is not 0x-prefixed hexadecimal
// or that does not fit in 256 bits.
type MalformedHexError struct {
	Value  string
	Reason string
}

func (e *MalformedHexError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformedHex, e.Value, e.Reason)
}

func (e *MalformedHexError) Unwrap() error { return ErrMalformedHex }

// MalformedBlobError reports an initCode or paymasterAndData blob that is too
// short to carry its leading address.
type MalformedBlobError struct {
	Version Version
	Length  int
}

func (e *MalformedBlobError) Error() string {
	return fmt.Sprintf("%s (%s): length %d, want 0 or at least %d bytes",
		ErrMalformedBlob, e.Version, e.Length, AddressLength)
}

func (e *MalformedBlobError) Unwrap() error { return ErrMalformedBlob }

// IncompleteOperationError is returned when a field needed for encoding,
// hashing or prefund accounting is unset. Run gas estimation first.
type IncompleteOperationError struct {
	Version Version
	Field   string
}

func (e *IncompleteOperationError) Error() string {
	return fmt.Sprintf("%s (%s): %s is not set", ErrIncompleteOperation, e.Version, e.Field)
}

func (e *IncompleteOperationError) Unwrap() error { return ErrIncompleteOperation }

// ArithmeticOverflowError is returned when a value or an intermediate result
// does not fit the on-chain slot it is computed for.
type ArithmeticOverflowError struct {
	Version Version
	Field   string
	Bits    int
}

func (e *ArithmeticOverflowError) Error() string {
	return fmt.Sprintf("%s (%s): %s exceeds %d bits", ErrArithmeticOverflow, e.Version, e.Field, e.Bits)
}

func (e *ArithmeticOverflowError) Unwrap() error { return ErrArithmeticOverflow }

// InvalidEstimateResponseError is returned when a gas estimate response does
// not match the field set of the declared version.
type InvalidEstimateResponseError struct {
	Version Version
	Field   string
	Err     error
}

func (e *InvalidEstimateResponseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s (%s): %v", ErrInvalidEstimateResponse, e.Version, e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s (%s): %s is missing", ErrInvalidEstimateResponse, e.Version, e.Field)
	}
	return fmt.Sprintf("%s (%s): %s: %v", ErrInvalidEstimateResponse, e.Version, e.Field, e.Err)
}

func (e *InvalidEstimateResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidEstimateResponse}
	}
	return []error{ErrInvalidEstimateResponse, e.Err}
}

// InvalidResponseError is returned when a bundler or paymaster result does
// not have the shape its method defines.
type InvalidResponseError struct {
	Method string
	Field  string
	Err    error
}

func (e *InvalidResponseError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("%s (%s): %v", ErrInvalidBundlerResponse, e.Method, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s (%s): %s is missing", ErrInvalidBundlerResponse, e.Method, e.Field)
	default:
		return fmt.Sprintf("%s (%s): %s: %v", ErrInvalidBundlerResponse, e.Method, e.Field, e.Err)
	}
}

func (e *InvalidResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidBundlerResponse}
	}
	return []error{ErrInvalidBundlerResponse, e.Err}
}
