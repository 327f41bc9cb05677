// Package token issues and validates bearer tokens for users and service
// accounts.
//
// A token is identified by its (issued_at, nonce) composite; the bearer
// string is a reversible encoding of that pair, and validity is nothing
// more than the row still existing. The nonce carries enough entropy to
// prevent forgery, so no signature is needed.
package token

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
)

// Kind discriminates personal tokens from service tokens.
type Kind int

const (
	// KindUser is a personal token held by a human account.
	KindUser Kind = iota

	// KindService is a token held by a non-human service account.
	KindService
)

// Bearer string prefixes. The prefix routes validation to the right table
// without a lookup.
const (
	prefixUser    = "acp"
	prefixService = "acs"
)

// Payload layout constants.
const (
	payloadLen  = 16 // 8B issued_at + 4B nonce + 4B checksum
	checksumOff = 12
)

// Sentinel errors for token operations.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Token is the decoded form of a bearer string.
type Token struct {
	Kind     Kind
	IssuedAt int64 // unix milliseconds
	Nonce    uint32
}

// String encodes the token as an opaque bearer string:
// prefix, underscore, then base64url (no padding) of the little-endian
// issued_at, nonce and a CRC-32 checksum of the first twelve bytes.
// The checksum rejects mistyped tokens before any store round-trip.
func (t Token) String() string {
	var buf [payloadLen]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t.IssuedAt)) //nolint:gosec // G115: issue times are positive
	binary.LittleEndian.PutUint32(buf[8:12], t.Nonce)
	binary.LittleEndian.PutUint32(buf[checksumOff:], crc32.ChecksumIEEE(buf[:checksumOff]))

	prefix := prefixUser
	if t.Kind == KindService {
		prefix = prefixService
	}
	return prefix + "_" + base64.RawURLEncoding.EncodeToString(buf[:])
}

// Parse decodes a bearer string. Any malformation (unknown prefix, bad
// base64, wrong length, checksum mismatch) reports ErrInvalidToken.
func Parse(bearer string) (Token, error) {
	var t Token

	prefix, rest, found := strings.Cut(bearer, "_")
	if !found {
		return t, ErrInvalidToken
	}

	switch prefix {
	case prefixUser:
		t.Kind = KindUser
	case prefixService:
		t.Kind = KindService
	default:
		return t, ErrInvalidToken
	}

	buf, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil || len(buf) != payloadLen {
		return t, ErrInvalidToken
	}

	sum := binary.LittleEndian.Uint32(buf[checksumOff:])
	if sum != crc32.ChecksumIEEE(buf[:checksumOff]) {
		return t, ErrInvalidToken
	}

	t.IssuedAt = int64(binary.LittleEndian.Uint64(buf[0:8])) //nolint:gosec // G115: issue times are positive
	t.Nonce = binary.LittleEndian.Uint32(buf[8:12])
	return t, nil
}
