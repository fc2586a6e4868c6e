package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// AddressSize is the length of an address in bytes: a full 32-byte digest
// of the owning public key, not a truncated hash.
const AddressSize = 32

// Address abbreviation constants, used as the human-readable prefix
// described in the wire/address format ("<abbr>:<base58(bytes)>").
const (
	MainnetAbbr = "KNT"
	TestnetAbbr = "TNS"
)

// activeAbbr is the address abbreviation used by String() and MarshalJSON().
// Set once at startup via SetAddressAbbr(). Default is mainnet.
var activeAbbr = MainnetAbbr

// SetAddressAbbr sets the active address abbreviation (call once at startup).
func SetAddressAbbr(abbr string) {
	activeAbbr = abbr
}

// GetAddressAbbr returns the currently active address abbreviation.
func GetAddressAbbr() string {
	return activeAbbr
}

// Address represents a 256-bit address (public key digest).
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros. The all-zero address is
// the genesis sentinel recipient.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns "<abbr>:<base58(bytes)>", e.g. "TNS:...".
func (a Address) String() string {
	return activeAbbr + ":" + base58.Encode(a[:])
}

// Hex returns the raw hex-encoded address without prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as its human-readable form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a human-readable, raw base58, or raw hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a "<abbr>:<base58>" address, a raw base58 string, or a
// raw 64-char hex string (for genesis/internal use).
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	body := s
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		body = s[idx+1:]
	}

	if isHex64(body) {
		decoded, err := hex.DecodeString(body)
		if err != nil {
			return Address{}, fmt.Errorf("invalid address: %w", err)
		}
		var a Address
		copy(a[:], decoded)
		return a, nil
	}

	decoded, err := base58.Decode(body)
	if err != nil {
		return Address{}, fmt.Errorf("invalid base58 address: %w", err)
	}
	if len(decoded) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(decoded))
	}
	var a Address
	copy(a[:], decoded)
	return a, nil
}

// HexToAddress converts a raw hex string to an Address.
// Returns an error if the string is not exactly 64 hex characters.
// For user-facing input that may carry an abbreviation prefix, use ParseAddress.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// isHex64 returns true if s is exactly 64 hex characters.
func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
