// Package layer defines the content address of a layer, the immutable
// storage unit exchanged between repositories. A layer id is the SHA-1
// digest of the layer's bytes, conventionally rendered as 40 hex characters.
package layer

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

const (
	// IDLength is the byte length of a layer id.
	IDLength = 20
	// HexLength is the character length of a hex-encoded layer id.
	HexLength = IDLength * 2
)

// ID is the content address of a layer.
type ID [IDLength]byte

// Zero is the empty id. It is used as the "no parent" and "empty
// repository" sentinel; no layer hashes to it.
var Zero ID

// Hash computes the id of a layer's bytes.
func Hash(data []byte) ID {
	return ID(sha1.Sum(data))
}

// FromHex decodes a 40-character hex string into an ID.
func FromHex(s string) (ID, error) {
	var id ID
	if len(s) != HexLength {
		return id, fmt.Errorf("layer id must be %d hex characters, got %d", HexLength, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("decoding layer id: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// MustFromHex decodes a hex id, panicking on malformed input. For use in
// tests and constants.
func MustFromHex(s string) ID {
	id, err := FromHex(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromBytes copies a 20-byte slice into an ID.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != IDLength {
		return id, fmt.Errorf("layer id must be %d bytes, got %d", IDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Hex returns the 40-character hex form of the id.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return id.Hex()
}

// Bytes returns the id as a byte slice.
func (id ID) Bytes() []byte {
	return id[:]
}

// IsZero reports whether the id is the empty sentinel.
func (id ID) IsZero() bool {
	return id == Zero
}

// MarshalText implements encoding.TextMarshaler so ids render as hex in
// JSON envelopes and metadata records.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	decoded, err := FromHex(string(text))
	if err != nil {
		return err
	}
	*id = decoded
	return nil
}
