package userop

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// validate checks bundler and paymaster payloads before they are converted
// into typed values. It is configured once and only read afterwards.
var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := RegisterValidations(v); err != nil {
		panic(err)
	}
	return v
}

func fieldString(fl validator.FieldLevel) (string, bool) {
	field := fl.Field()
	if field.Kind() == reflect.Pointer {
		if field.IsNil() {
			return "", false
		}
		field = field.Elem()
	}
	if field.Kind() != reflect.String {
		return "", false
	}
	return field.String(), true
}

// validHexQuantity accepts a 0x-prefixed hex number of at most 256 bits.
func validHexQuantity(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return false
	}
	_, err := FromWire(s)
	return err == nil
}

// validHexData accepts 0x-prefixed, even length hex data including "0x".
func validHexData(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	if !ok {
		return false
	}
	_, err := FromWireBytes(s)
	return err == nil
}

// validEthAddress accepts a 20 byte hex address.
func validEthAddress(fl validator.FieldLevel) bool {
	s, ok := fieldString(fl)
	return ok && has0xPrefix(s) && common.IsHexAddress(s)
}

// RegisterValidations adds the hex_quantity, hex_data and eth_addr tags to v.
func RegisterValidations(v *validator.Validate) error {
	if err := v.RegisterValidation("hex_quantity", validHexQuantity); err != nil {
		return fmt.Errorf("failed to register validator for 'hex_quantity': %w", err)
	}
	if err := v.RegisterValidation("hex_data", validHexData); err != nil {
		return fmt.Errorf("failed to register validator for 'hex_data': %w", err)
	}
	if err := v.RegisterValidation("eth_addr", validEthAddress); err != nil {
		return fmt.Errorf("failed to register validator for 'eth_addr': %w", err)
	}
	return nil
}

// NewValidator registers the package validations on gin's binding engine so
// HTTP handlers can bind bundler payloads with the same rules.
func NewValidator() error {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		return RegisterValidations(v)
	}
	return nil
}

// firstFieldError returns the json name, tag and value of the first failed
// validation, or ok=false when err is not a validation error.
func firstFieldError(err error) (field, tag string, value any, ok bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "", "", nil, false
	}
	fe := verrs[0]
	return fe.Field(), fe.Tag(), fe.Value(), true
}

// describeFieldError turns a failed validation into the error callers see:
// nil for a missing required field, otherwise the decoding error of the
// offending value.
func describeFieldError(tag string, value any) error {
	if tag == "required" {
		return nil
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case *string:
		if v != nil {
			s = *v
		}
	}
	switch tag {
	case "hex_quantity":
		_, err := FromWire(s)
		return err
	case "hex_data":
		_, err := FromWireBytes(s)
		return err
	case "eth_addr":
		_, err := FromWireAddress(s)
		if err == nil {
			err = &MalformedHexError{Value: s, Reason: "not a 20 byte address"}
		}
		return err
	default:
		return fmt.Errorf("failed %q validation", tag)
	}
}
