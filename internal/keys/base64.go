package keys

import "encoding/base64"

// base64URLDecode accepts both padded and unpadded base64url, matching
// the lenient handling JWK producers in the wild require.
func base64URLDecode(s string) ([]byte, error) {
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
