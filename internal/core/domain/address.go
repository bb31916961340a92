package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a canonical (lower-cased, 0x-prefixed) account identifier.
// The zero value means "absent".
type Address string

// NormalizeAddress canonicalizes a textual address.
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// AddressFromBytes builds an address from the low 20 bytes of b.
func AddressFromBytes(b []byte) Address {
	return NormalizeAddress(common.BytesToAddress(b).Hex())
}

// NormalizeAddresses canonicalizes every entry, dropping empty ones.
func NormalizeAddresses(in []string) []Address {
	out := make([]Address, 0, len(in))
	for _, s := range in {
		if a := NormalizeAddress(s); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (a Address) String() string { return string(a) }

// IsZero reports whether the address is absent.
func (a Address) IsZero() bool { return a == "" }

// UnmarshalText canonicalizes addresses decoded from JSON or YAML.
func (a *Address) UnmarshalText(text []byte) error {
	*a = NormalizeAddress(string(text))
	return nil
}
