package model

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressSize is the length of an Address in bytes.
const AddressSize = 32

// ErrInvalidAddress is returned when an address cannot be decoded.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an owner or a ledger record. Owner addresses are ed25519
// public keys; record addresses are program-derived and have no private key.
type Address [AddressSize]byte

// ZeroAddress is the unset address.
var ZeroAddress Address

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if len(b) != AddressSize {
		return a, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error. Intended for
// constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromPublicKey converts an ed25519 public key to an Address.
func AddressFromPublicKey(pub ed25519.PublicKey) (Address, error) {
	var a Address
	if len(pub) != ed25519.PublicKeySize {
		return a, fmt.Errorf("%w: public key is %d bytes", ErrInvalidAddress, len(pub))
	}
	copy(a[:], pub)
	return a, nil
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns a copy of the raw bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// PublicKey returns the address as an ed25519 public key.
func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a.Bytes())
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
