package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"math/big"
	"regexp"

	"github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"
)

// ErrUnsupportedKey is returned for a JWK whose kty/crv this package
// cannot verify, or whose required fields are missing or malformed.
var ErrUnsupportedKey = errors.New("keys: unsupported or malformed JWK")

// base64url alphabet check, spec §4.3: "validated against
// ^[A-Za-z0-9_-]*=*$".
var base64URLPattern = regexp.MustCompile(`^[A-Za-z0-9_-]*=*$`)

// KeyEntry is one usable verification key, keyed by (kid, alg) per spec
// §3.
type KeyEntry struct {
	Kid      string
	Alg      string
	Verifier Verifier
}

// ParseJWK builds a KeyEntry from one decoded JWK object. allowList is
// the issuer's algorithm allow-list, used only to deduce alg for an RSA
// key that doesn't declare one (spec §4.3); pass nil to skip deduction.
func ParseJWK(jwk jsonmodel.Map, allowList []string) (KeyEntry, error) {
	kty, _ := jwk.String("kty")
	kid, _ := jwk.String("kid")
	alg, hasAlg := jwk.String("alg")

	switch kty {
	case "RSA":
		return parseRSAJWK(jwk, kid, alg, hasAlg, allowList)
	case "EC":
		return parseECJWK(jwk, kid)
	default:
		return KeyEntry{}, ErrUnsupportedKey
	}
}

func decodeBigIntField(jwk jsonmodel.Map, field string) (*big.Int, error) {
	s, ok := jwk.String(field)
	if !ok || s == "" || !base64URLPattern.MatchString(s) {
		return nil, ErrUnsupportedKey
	}
	b, err := base64URLDecode(s)
	if err != nil || len(b) == 0 {
		return nil, ErrUnsupportedKey
	}
	return new(big.Int).SetBytes(b), nil
}

func parseRSAJWK(jwk jsonmodel.Map, kid, alg string, hasAlg bool, allowList []string) (KeyEntry, error) {
	n, err := decodeBigIntField(jwk, "n")
	if err != nil {
		return KeyEntry{}, err
	}
	e, err := decodeBigIntField(jwk, "e")
	if err != nil {
		return KeyEntry{}, err
	}
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > (1<<31) {
		return KeyEntry{}, ErrUnsupportedKey
	}

	if !hasAlg || alg == "" {
		if deduced, ok := soleRSAAlgIn(allowList); ok {
			alg = deduced
		} else {
			// Leave alg empty: the keystore's (kid, alg) lookup for a
			// token requesting a specific alg will simply not find this
			// entry, which is the correct KEY_NOT_FOUND behavior rather
			// than guessing.
			alg = ""
		}
	}

	pub := &rsa.PublicKey{N: n, E: int(e.Int64())}

	var verifier Verifier
	if alg != "" {
		if !IsRSAFamily(alg) {
			return KeyEntry{}, ErrUnsupportedKey
		}
		verifier = newRSAVerifier(pub, alg)
	}

	return KeyEntry{Kid: kid, Alg: alg, Verifier: verifier}, nil
}

func parseECJWK(jwk jsonmodel.Map, kid string) (KeyEntry, error) {
	crv, _ := jwk.String("crv")
	alg, ok := ecAlgForCurve(crv)
	if !ok {
		return KeyEntry{}, ErrUnsupportedKey
	}

	curve, byteLen := curveForName(crv)
	if curve == nil {
		return KeyEntry{}, ErrUnsupportedKey
	}

	x, err := decodeBigIntField(jwk, "x")
	if err != nil {
		return KeyEntry{}, err
	}
	y, err := decodeBigIntField(jwk, "y")
	if err != nil {
		return KeyEntry{}, err
	}

	pub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	if !curve.IsOnCurve(x, y) {
		return KeyEntry{}, ErrUnsupportedKey
	}

	return KeyEntry{Kid: kid, Alg: alg, Verifier: newECDSAVerifier(pub, alg, byteLen)}, nil
}

func curveForName(crv string) (elliptic.Curve, int) {
	switch crv {
	case "P-256":
		return elliptic.P256(), 32
	case "P-384":
		return elliptic.P384(), 48
	case "P-521":
		return elliptic.P521(), 66
	default:
		return nil, 0
	}
}

