package userop

import (
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// wireEncoder is implemented by values with a fixed bundler JSON layout.
type wireEncoder interface {
	wire() any
}

var (
	bigIntType      = reflect.TypeOf(big.Int{})
	hexBigType      = reflect.TypeOf(hexutil.Big{})
	uint256Type     = reflect.TypeOf(uint256.Int{})
	addressType     = reflect.TypeOf(common.Address{})
	hashType        = reflect.TypeOf(common.Hash{})
	wireEncoderType = reflect.TypeOf((*wireEncoder)(nil)).Elem()
)

// ToWire converts v into the form bundlers expect in JSON-RPC params:
// integers become 0x-prefixed lower-case hex quantities, byte strings become
// 0x-prefixed hex data, addresses and hashes their hex string. Strings,
// booleans, floats and nil are returned unchanged. Slices, arrays, maps with
// string keys and structs are converted recursively; structs become maps keyed
// by their json tag names. Map keys may be strings, addresses or hashes.
// ToWire(ToWire(v)) equals ToWire(v).
func ToWire(v any) any {
	if v == nil {
		return nil
	}
	return toWireValue(reflect.ValueOf(v))
}

func toWireValue(rv reflect.Value) any {
	if !rv.IsValid() {
		return nil
	}

	if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Implements(wireEncoderType) {
			return toWireValue(reflect.ValueOf(rv.Interface().(wireEncoder).wire()))
		}
		return toWireValue(rv.Elem())
	}

	switch rv.Type() {
	case bigIntType:
		b := rv.Interface().(big.Int)
		return hexutil.EncodeBig(&b)
	case hexBigType:
		b := rv.Interface().(hexutil.Big)
		return hexutil.EncodeBig(b.ToInt())
	case uint256Type:
		u := rv.Interface().(uint256.Int)
		return hexutil.EncodeBig(u.ToBig())
	case addressType:
		return rv.Interface().(common.Address).Hex()
	case hashType:
		return rv.Interface().(common.Hash).Hex()
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return hexutil.EncodeUint64(rv.Uint())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return hexutil.EncodeBig(big.NewInt(rv.Int()))
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return hexutil.Encode(rv.Bytes())
		}
		return toWireList(rv)
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return hexutil.Encode(b)
		}
		return toWireList(rv)
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if !isWireKey(rv.Type().Key()) {
			return rv.Interface()
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[toWireValue(iter.Key()).(string)] = toWireValue(iter.Value())
		}
		return out
	case reflect.Struct:
		if reflect.PointerTo(rv.Type()).Implements(wireEncoderType) {
			ptr := reflect.New(rv.Type())
			ptr.Elem().Set(rv)
			return toWireValue(ptr)
		}
		return toWireStruct(rv)
	default:
		return rv.Interface()
	}
}

// isWireKey reports whether map keys of type t encode to JSON object keys.
// Addresses and hashes are keyed by their hex form, as in state overrides.
func isWireKey(t reflect.Type) bool {
	return t.Kind() == reflect.String || t == addressType || t == hashType
}

func toWireList(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = toWireValue(rv.Index(i))
	}
	return out
}

func toWireStruct(rv reflect.Value) map[string]any {
	rt := rv.Type()
	out := make(map[string]any, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitEmpty := field.Name, false
		if tag, ok := field.Tag.Lookup("json"); ok {
			if tag == "-" {
				continue
			}
			parts := strings.Split(tag, ",")
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := rv.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = toWireValue(fv)
	}
	return out
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func isHexDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// FromWire decodes a 0x-prefixed hex quantity into an unsigned integer of at
// most 256 bits. Leading zero digits are accepted.
func FromWire(s string) (*big.Int, error) {
	if !has0xPrefix(s) {
		return nil, &MalformedHexError{Value: s, Reason: "missing 0x prefix"}
	}
	digits := s[2:]
	if digits == "" {
		return nil, &MalformedHexError{Value: s, Reason: "empty number"}
	}
	if !isHexDigits(digits) {
		return nil, &MalformedHexError{Value: s, Reason: "invalid hex digit"}
	}
	n, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, &MalformedHexError{Value: s, Reason: "invalid hex number"}
	}
	if n.BitLen() > 256 {
		return nil, &MalformedHexError{Value: s, Reason: "exceeds 256 bits"}
	}
	return n, nil
}

// FromWireBytes decodes 0x-prefixed hex data. "0x" decodes to an empty slice.
func FromWireBytes(s string) ([]byte, error) {
	if !has0xPrefix(s) {
		return nil, &MalformedHexError{Value: s, Reason: "missing 0x prefix"}
	}
	digits := s[2:]
	if len(digits)%2 != 0 {
		return nil, &MalformedHexError{Value: s, Reason: "odd length"}
	}
	if !isHexDigits(digits) {
		return nil, &MalformedHexError{Value: s, Reason: "invalid hex digit"}
	}
	return common.FromHex(s), nil
}

// FromWireAddress decodes a 20-byte hex address.
func FromWireAddress(s string) (common.Address, error) {
	b, err := FromWireBytes(s)
	if err != nil {
		return common.Address{}, err
	}
	if len(b) != AddressLength {
		return common.Address{}, &MalformedHexError{Value: s, Reason: "not a 20 byte address"}
	}
	return common.BytesToAddress(b), nil
}
