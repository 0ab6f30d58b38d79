package pipeline

import "github.com/gov-dx-sandbox/tokenguard/internal/claims"

// Content is the shared read surface over a validated claim set, spec
// §3's "convenience accessors (subject, issuer, audience, scopes, roles,
// groups, email, expiration)".
type Content struct {
	Subject    string
	Issuer     string
	Audience   []string
	Scopes     []string
	Roles      []string
	Groups     []string
	Email      string
	ExpiresAt  int64
	IssuedAt   int64
	ClientID   string
	JTI        string
	RawClaims  map[string]claims.Value
}

// AccessTokenContent is the typed view returned by createAccessToken.
type AccessTokenContent struct {
	Content
}

// IdTokenContent is the typed view returned by createIdToken.
type IdTokenContent struct {
	Content
}

// RefreshTokenContent is the typed view returned by createRefreshToken.
// Refresh tokens are opaque by default (spec §4.8): only Raw is
// populated unless the issuer has opted into JWT-formatted refresh
// tokens, in which case Content is also populated from the same
// pipeline used for access tokens.
type RefreshTokenContent struct {
	Raw string
	Content
	IsJWT bool
}
