// Package crypto renders farm account addresses and generates account keys.
package crypto

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 address.
type AddressPrefix string

// FarmPrefix marks farm accounts: xfarm1...
const FarmPrefix AddressPrefix = "xfarm"

// Address is a 20-byte account paired with the prefix it is displayed with.
type Address struct {
	prefix AddressPrefix
	raw    common.Address
}

// NewAddress panics unless b is exactly 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != common.AddressLength {
		panic(fmt.Sprintf("crypto: address must be %d bytes, got %d", common.AddressLength, len(b)))
	}
	return Address{prefix: prefix, raw: common.BytesToAddress(b)}
}

// FromCommon displays addr with the farm prefix.
func FromCommon(addr common.Address) Address {
	return Address{prefix: FarmPrefix, raw: addr}
}

// String encodes the address as bech32. An unencodable prefix falls back to
// the hex form.
func (a Address) String() string {
	words, err := bech32.ConvertBits(a.raw.Bytes(), 8, 5, true)
	if err != nil {
		return a.raw.Hex()
	}
	encoded, err := bech32.Encode(string(a.prefix), words)
	if err != nil {
		return a.raw.Hex()
	}
	return encoded
}

func (a Address) Bytes() []byte          { return a.raw.Bytes() }
func (a Address) Common() common.Address { return a.raw }
func (a Address) Prefix() AddressPrefix  { return a.prefix }

// DecodeAddress parses a bech32 address of any prefix.
func DecodeAddress(value string) (Address, error) {
	prefix, words, err := bech32.Decode(value)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
	}
	raw, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	if len(raw) != common.AddressLength {
		return Address{}, fmt.Errorf("invalid address length %d", len(raw))
	}
	return NewAddress(AddressPrefix(prefix), raw), nil
}

// ParseAddress accepts a 0x hex address or an xfarm1 bech32 address.
func ParseAddress(value string) (common.Address, error) {
	trimmed := strings.TrimSpace(value)
	switch {
	case trimmed == "":
		return common.Address{}, fmt.Errorf("address required")
	case strings.HasPrefix(trimmed, "0x"), strings.HasPrefix(trimmed, "0X"):
		if !common.IsHexAddress(trimmed) {
			return common.Address{}, fmt.Errorf("invalid hex address %q", trimmed)
		}
		return common.HexToAddress(trimmed), nil
	}
	addr, err := DecodeAddress(strings.ToLower(trimmed))
	if err != nil {
		return common.Address{}, err
	}
	if addr.Prefix() != FarmPrefix {
		return common.Address{}, fmt.Errorf("unexpected address prefix %q", addr.Prefix())
	}
	return addr.Common(), nil
}

// DeriveAddress maps a label onto a deterministic address. Module accounts
// and genesis fixtures are derived this way.
func DeriveAddress(label string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte(label))[12:])
}
