package keys

import "github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"

// SkippedKey records one JWK entry that failed to parse, so the caller
// can log it without failing the whole keyset — mirrors the teacher's
// auth/token.go, which strips x5c/malformed entries and keeps the rest.
type SkippedKey struct {
	Kid string
	Err error
}

// ParseJWKS parses a decoded JWKS document's top-level "keys" array into
// usable KeyEntry values. Keys that fail to parse are skipped and
// reported in the returned SkippedKey slice rather than failing the
// whole document, so one malformed key (or one using an unsupported kty)
// doesn't take down key rotation for every other key.
func ParseJWKS(doc jsonmodel.Map, allowList []string) ([]KeyEntry, []SkippedKey, error) {
	items, ok := doc.List("keys")
	if !ok {
		return nil, nil, ErrUnsupportedKey
	}

	entries := make([]KeyEntry, 0, len(items))
	var skipped []SkippedKey
	for _, item := range items {
		obj, ok := item.AsObject()
		if !ok {
			skipped = append(skipped, SkippedKey{Err: ErrUnsupportedKey})
			continue
		}
		entry, err := ParseJWK(obj, allowList)
		if err != nil {
			kid, _ := obj.String("kid")
			skipped = append(skipped, SkippedKey{Kid: kid, Err: err})
			continue
		}
		entries = append(entries, entry)
	}

	return entries, skipped, nil
}
