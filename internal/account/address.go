// Package account validates participant addresses. Addresses follow the
// Solana convention: the base58 encoding of a 32-byte ed25519 point.
package account

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Address validation errors.
var (
	// ErrInvalidAddress is returned for malformed or non-base58 input.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNotOnCurve is returned when the decoded bytes are not a valid
	// ed25519 point, i.e. the address cannot hold a key pair.
	ErrNotOnCurve = errors.New("address is not a valid ed25519 point")
)

// Address is a validated participant address.
type Address string

// String returns the base58 form.
func (a Address) String() string { return string(a) }

// Parse decodes and validates a base58 address. The on-curve check rejects
// addresses that can never correspond to a signing key.
func Parse(s string) (Address, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return "", fmt.Errorf("%w: decoded length %d, want 32", ErrInvalidAddress, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return "", ErrNotOnCurve
	}
	return Address(s), nil
}

// MustParse is Parse for known-good addresses in tests and fixtures;
// it panics on error.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}
