package account

import (
	"bytes"
	"errors"
	"testing"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

func TestParse_ValidAddress(t *testing.T) {
	// Any real ed25519 point round-trips: encode the generator.
	raw := edwards25519.NewGeneratorPoint().Bytes()
	encoded := base58.Encode(raw)

	addr, err := Parse(encoded)
	if err != nil {
		t.Fatalf("Parse(%s) failed: %v", encoded, err)
	}
	if addr.String() != encoded {
		t.Errorf("Address = %s, want %s", addr, encoded)
	}

	decoded, err := base58.Decode(addr.String())
	if err != nil || !bytes.Equal(decoded, raw) {
		t.Errorf("address did not round-trip through base58")
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"bad charset", "0OIl0OIl0OIl0OIl0OIl0OIl0OIl0OIl"},
		{"too short", base58.Encode(make([]byte, 31))},
		{"too long", base58.Encode(make([]byte, 33))},
		{"plain garbage", "not-an-address"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("Parse(%q) = %v, want ErrInvalidAddress", tt.input, err)
			}
		})
	}
}

func TestParse_NotOnCurve(t *testing.T) {
	// A non-canonical field encoding is never a valid point.
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = 0xFF
	}
	if _, err := Parse(base58.Encode(raw)); !errors.Is(err, ErrNotOnCurve) {
		t.Errorf("got %v, want ErrNotOnCurve", err)
	}
}

func TestMustParse_PanicsOnInvalid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse should panic on invalid input")
		}
	}()
	MustParse("bogus")
}
