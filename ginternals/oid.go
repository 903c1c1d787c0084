package ginternals

import (
	"crypto/sha1" //nolint:gosec // git uses sha1 by design, this is not a security decision
	"encoding/hex"
	"errors"
)

// OidSize is the length of an Oid, in bytes
const OidSize = 20

// NullOid is the value of an empty Oid, or one that's all 0s
var NullOid = Oid{}

// ErrInvalidOid is returned when a given value isn't a valid Oid
var ErrInvalidOid = errors.New("invalid oid")

// Oid represents a git object id: the SHA-1 of an object's framed content.
// https://git-scm.com/book/en/v2/Git-Internals-Git-Objects
type Oid [OidSize]byte

// Bytes returns the raw (non-hex-encoded) Oid
func (o Oid) Bytes() []byte {
	return o[:]
}

// String returns the 40-char lowercase hex representation of the Oid
func (o Oid) String() string {
	return hex.EncodeToString(o[:])
}

// IsZero returns whether the oid has the zero value (NullOid)
func (o Oid) IsZero() bool {
	return o == NullOid
}

// NewOidFromContent returns the Oid of the given framed content.
// The oid is the SHA-1 sum of the bytes, nothing more.
func NewOidFromContent(content []byte) Oid {
	return sha1.Sum(content) //nolint:gosec // see above
}

// NewOidFromHex returns an Oid from a slice containing the 20 raw
// (non-hex-encoded) bytes of an oid.
func NewOidFromHex(id []byte) (Oid, error) {
	if len(id) < OidSize {
		return NullOid, ErrInvalidOid
	}
	var oid Oid
	copy(oid[:], id)
	return oid, nil
}

// NewOidFromChars creates an Oid from the given hex-encoded char bytes
// For the SHA {'9', 'b', '9', '1', 'd', 'a', ...}
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromChars(id []byte) (Oid, error) {
	return NewOidFromStr(string(id))
}

// NewOidFromStr creates an Oid from the given hex-encoded string.
// For the SHA 9b91da06e69613397b38e0808e0ba5ee6983251b
// the oid will be {0x9b, 0x91, 0xda, ...}
func NewOidFromStr(id string) (Oid, error) {
	b, err := hex.DecodeString(id)
	if err != nil {
		return NullOid, ErrInvalidOid
	}
	if len(b) != OidSize {
		return NullOid, ErrInvalidOid
	}
	var oid Oid
	copy(oid[:], b)
	return oid, nil
}

// IsValidHex returns whether s is a valid (possibly partial) hex
// representation of an Oid: 4 to 40 lowercase hex characters.
func IsValidHex(s string) bool {
	if len(s) < 4 || len(s) > OidSize*2 {
		return false
	}
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		if !isDigit && !isLowerHex {
			return false
		}
	}
	return true
}
