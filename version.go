package userop

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Version identifies the entry point schema a UserOperation is laid out for.
type Version string

const (
	V06 Version = "v0.6"
	V07 Version = "v0.7"
)

// Canonical entry point deployments.
var (
	EntryPointV06Address = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	EntryPointV07Address = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
)

// ParseVersion accepts "v0.6", "0.6", "v0.7" and "0.7".
func ParseVersion(s string) (Version, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "v") {
	case "0.6":
		return V06, nil
	case "0.7":
		return V07, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, s)
	}
}

// Validate returns ErrUnsupportedVersion for anything but V06 and V07.
func (v Version) Validate() error {
	switch v {
	case V06, V07:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, string(v))
	}
}

// EntryPoint returns the canonical entry point address of the version.
func (v Version) EntryPoint() (common.Address, error) {
	switch v {
	case V06:
		return EntryPointV06Address, nil
	case V07:
		return EntryPointV07Address, nil
	default:
		return common.Address{}, v.Validate()
	}
}

func (v Version) String() string {
	return string(v)
}
