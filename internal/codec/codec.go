// Package codec implements the primitive, allocation-light operations every
// other tokenguard component builds on: splitting a compact JWS into its
// three segments, base64url decoding, recovering the exact signing input
// bytes, and comparing secrets in constant time.
package codec

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// DefaultMaxCompactBytes is the default ceiling on a compact JWT's total
// byte length, enforced by Split before any decoding happens.
const DefaultMaxCompactBytes = 8192

// ErrMalformed is returned for any structurally invalid compact JWT or
// base64url segment. Callers map it to the TOKEN_PARSE_FAILED EventType.
var ErrMalformed = errors.New("codec: malformed token")

// Segments holds the three raw (still base64url-encoded) parts of a
// compact JWS. SigningInput rebuilds the signed bytes from Header and
// Payload.
type Segments struct {
	Header    string
	Payload   string
	Signature string
}

// Split divides a compact JWT string "header.payload.signature" into its
// three segments. It fails if the segment count is not exactly three, the
// header or payload segment is empty, or the total length exceeds
// maxBytes. An empty signature segment is accepted.
func Split(compact string, maxBytes int) (Segments, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxCompactBytes
	}
	if len(compact) > maxBytes {
		return Segments{}, ErrMalformed
	}

	var dots [2]int
	found := 0
	for i := 0; i < len(compact); i++ {
		if compact[i] != '.' {
			continue
		}
		if found == 2 {
			// a third dot means more than three segments
			return Segments{}, ErrMalformed
		}
		dots[found] = i
		found++
	}
	if found != 2 {
		return Segments{}, ErrMalformed
	}

	header := compact[:dots[0]]
	payload := compact[dots[0]+1 : dots[1]]
	signature := compact[dots[1]+1:]

	if header == "" || payload == "" {
		return Segments{}, ErrMalformed
	}

	return Segments{Header: header, Payload: payload, Signature: signature}, nil
}

// DecodeSegment base64url-decodes a single JWT segment. JWTs use unpadded
// base64url (RFC 7515 §2), but some issuers still emit padded segments, so
// padded input is accepted as long as it round-trips cleanly.
func DecodeSegment(segment string) ([]byte, error) {
	if segment == "" {
		return nil, ErrMalformed
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(segment); err == nil {
		return decoded, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(segment)
	if err != nil {
		return nil, ErrMalformed
	}
	return decoded, nil
}

// SigningInput reconstructs the exact bytes that were signed: the literal
// header and payload segments as received, joined by a single ASCII ".".
// No re-encoding happens here — this is what makes the bit-exact signing
// input invariant (spec §4.1) hold even if the caller later normalizes or
// pretty-prints the decoded JSON.
func SigningInput(header, payload string) []byte {
	buf := make([]byte, 0, len(header)+1+len(payload))
	buf = append(buf, header...)
	buf = append(buf, '.')
	buf = append(buf, payload...)
	return buf
}

// ConstantTimeEquals reports whether a and b are byte-for-byte equal,
// taking time independent of where they first differ.
func ConstantTimeEquals(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
