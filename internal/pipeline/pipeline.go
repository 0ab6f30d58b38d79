// Package pipeline implements the TokenValidationPipeline from spec
// §4.8: the eight ordered steps from raw compact JWT to typed content,
// each failure mapped to exactly one security.EventType. Grounded on
// the teacher's auth/token.go GetConsumerJwtFromTokenWithValidator step
// sequence (extract → parse/verify → temporal claims → required claims
// → issuer/audience), restructured around internal/codec,
// internal/jsonmodel, internal/keys, internal/keystore, and
// internal/registry instead of golang-jwt/jwt and jwt.MapClaims.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/gov-dx-sandbox/tokenguard/internal/claims"
	"github.com/gov-dx-sandbox/tokenguard/internal/codec"
	"github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"
	"github.com/gov-dx-sandbox/tokenguard/internal/keys"
	"github.com/gov-dx-sandbox/tokenguard/internal/keystore"
	"github.com/gov-dx-sandbox/tokenguard/internal/logging"
	"github.com/gov-dx-sandbox/tokenguard/internal/registry"
	"github.com/gov-dx-sandbox/tokenguard/internal/security"
)

// ReplayChecker is the jti-replay hook spec §4.8 step 7 defines but
// leaves unspecified ("out of scope for this spec; the hook is
// defined"). A Pipeline without one configured skips the check entirely.
type ReplayChecker interface {
	Seen(ctx context.Context, issuer, jti string) (bool, error)
}

// Error is returned by every validation failure; it always carries the
// EventType that was incremented.
type Error struct {
	EventType security.EventType
	Message   string
}

func (e *Error) Error() string { return e.Message }

var typAllowList = map[string]bool{"JWT": true, "at+jwt": true, "JWT+AT": true}

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithClockSkewSeconds overrides the default 60s clock skew allowance.
func WithClockSkewSeconds(seconds int64) Option {
	return func(p *Pipeline) { p.clockSkewSeconds = seconds }
}

// WithMaxTokenBytes overrides the default 8KiB raw-token size ceiling.
func WithMaxTokenBytes(n int) Option {
	return func(p *Pipeline) { p.maxTokenBytes = n }
}

// WithJSONLimits overrides the default bounded-JSON-decode ceilings.
func WithJSONLimits(limits jsonmodel.Limits) Option {
	return func(p *Pipeline) { p.jsonLimits = limits }
}

// WithReplayChecker installs a jti-replay hook.
func WithReplayChecker(rc ReplayChecker) Option {
	return func(p *Pipeline) { p.replay = rc }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrDefault(logger) }
}

// Pipeline is the TokenValidationPipeline.
type Pipeline struct {
	registry         *registry.Registry
	counter          *security.Counter
	logger           *slog.Logger
	maxTokenBytes    int
	clockSkewSeconds int64
	jsonLimits       jsonmodel.Limits
	replay           ReplayChecker
}

// New builds a Pipeline resolving issuers through reg and tallying
// failures into counter.
func New(reg *registry.Registry, counter *security.Counter, opts ...Option) *Pipeline {
	p := &Pipeline{
		registry:         reg,
		counter:          counter,
		logger:           logging.Default(),
		maxTokenBytes:    codec.DefaultMaxCompactBytes,
		clockSkewSeconds: 60,
		jsonLimits:       jsonmodel.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) fail(et security.EventType, message string) error {
	p.counter.Increment(et)
	p.logger.Warn("pipeline: token rejected", "eventType", string(et))
	return &Error{EventType: et, Message: message}
}

// CreateAccessToken runs the full eight-step pipeline, requiring an
// audience match, and returns a typed AccessTokenContent.
func (p *Pipeline) CreateAccessToken(ctx context.Context, raw string) (*AccessTokenContent, error) {
	c, err := p.validate(ctx, raw, true)
	if err != nil {
		return nil, err
	}
	return &AccessTokenContent{Content: *c}, nil
}

// CreateIdToken runs the full eight-step pipeline, requiring an audience
// match, and returns a typed IdTokenContent.
func (p *Pipeline) CreateIdToken(ctx context.Context, raw string) (*IdTokenContent, error) {
	c, err := p.validate(ctx, raw, true)
	if err != nil {
		return nil, err
	}
	return &IdTokenContent{Content: *c}, nil
}

// CreateRefreshToken treats raw as opaque (only size and non-emptiness
// are checked) unless it is JWT-shaped AND its issuer has opted into
// JWT-formatted refresh tokens (SPEC_FULL §12 item 2), in which case it
// runs the same pipeline as an access token, without requiring an
// audience match.
func (p *Pipeline) CreateRefreshToken(ctx context.Context, raw string) (*RefreshTokenContent, error) {
	if len(raw) > p.maxTokenBytes {
		return nil, p.fail(security.TokenSizeExceeded, "refresh token exceeds maxTokenBytes")
	}
	if raw == "" {
		return nil, p.fail(security.TokenParseFailed, "empty refresh token")
	}

	segments, err := codec.Split(raw, p.maxTokenBytes)
	if err != nil {
		return &RefreshTokenContent{Raw: raw}, nil
	}
	headerBytes, errH := codec.DecodeSegment(segments.Header)
	bodyBytes, errB := codec.DecodeSegment(segments.Payload)
	if errH != nil || errB != nil {
		return &RefreshTokenContent{Raw: raw}, nil
	}
	if _, err := jsonmodel.Decode(headerBytes, p.jsonLimits); err != nil {
		return &RefreshTokenContent{Raw: raw}, nil
	}
	body, err := jsonmodel.Decode(bodyBytes, p.jsonLimits)
	if err != nil {
		return &RefreshTokenContent{Raw: raw}, nil
	}
	iss, _ := body.String(claims.Iss)
	entry, err := p.registry.Resolve(iss)
	if err != nil || entry.AllowJWTRefresh == false {
		return &RefreshTokenContent{Raw: raw}, nil
	}

	content, err := p.validate(ctx, raw, false)
	if err != nil {
		return nil, err
	}
	return &RefreshTokenContent{Raw: raw, Content: *content, IsJWT: true}, nil
}

// validate runs spec §4.8's eight ordered steps. requireAudience is
// false only for opted-in JWT refresh tokens.
func (p *Pipeline) validate(ctx context.Context, raw string, requireAudience bool) (*Content, error) {
	// Step 1: size check.
	if len(raw) > p.maxTokenBytes {
		return nil, p.fail(security.TokenSizeExceeded, "token exceeds maxTokenBytes")
	}

	// Step 2: split + decode header/body.
	segments, err := codec.Split(raw, p.maxTokenBytes)
	if err != nil {
		return nil, p.fail(security.TokenParseFailed, "malformed compact JWT")
	}
	headerBytes, err := codec.DecodeSegment(segments.Header)
	if err != nil {
		return nil, p.fail(security.TokenParseFailed, "malformed header segment")
	}
	payloadBytes, err := codec.DecodeSegment(segments.Payload)
	if err != nil {
		return nil, p.fail(security.TokenParseFailed, "malformed payload segment")
	}
	// An empty signature segment is left for step 3 (alg "none") or
	// step 6 (verification) to reject.
	var signatureBytes []byte
	if segments.Signature != "" {
		signatureBytes, err = codec.DecodeSegment(segments.Signature)
		if err != nil {
			return nil, p.fail(security.TokenParseFailed, "malformed signature segment")
		}
	}
	header, err := jsonmodel.Decode(headerBytes, p.jsonLimits)
	if err != nil {
		if err == jsonmodel.ErrPayloadTooLarge {
			return nil, p.fail(security.TokenSizeExceeded, "header exceeds maxPayloadBytes")
		}
		return nil, p.fail(security.TokenParseFailed, "invalid header JSON")
	}
	body, err := jsonmodel.Decode(payloadBytes, p.jsonLimits)
	if err != nil {
		if err == jsonmodel.ErrPayloadTooLarge {
			return nil, p.fail(security.TokenSizeExceeded, "payload exceeds maxPayloadBytes")
		}
		return nil, p.fail(security.TokenParseFailed, "invalid payload JSON")
	}

	// Step 3: header check.
	alg, ok := header.String("alg")
	if !ok || alg == "" {
		return nil, p.fail(security.HeaderInvalid, "missing alg header")
	}
	if alg == keys.None || !keys.IsAsymmetric(alg) {
		return nil, p.fail(security.AlgorithmNotAllowed, "algorithm not supported")
	}
	if typ, ok := header.String("typ"); ok && typ != "" && !typAllowList[typ] {
		return nil, p.fail(security.HeaderInvalid, "unexpected typ header")
	}

	// Step 4: issuer resolution.
	iss, ok := body.String(claims.Iss)
	if !ok || iss == "" {
		return nil, p.fail(security.IssuerMissing, "missing iss claim")
	}
	entry, err := p.registry.Resolve(iss)
	if err != nil {
		return nil, p.fail(security.IssuerUnknown, "unknown issuer")
	}

	// Step 5: key lookup.
	kid, _ := header.String("kid")
	keyEntry, outcome := entry.KeyStore.Lookup(ctx, kid, alg)
	switch outcome {
	case keystore.OutcomeAlgorithmNotAllowed:
		return nil, p.fail(security.KeyAlgorithmNotAllowed, "algorithm not allowed for issuer")
	case keystore.OutcomeKeyNotFound:
		return nil, p.fail(security.KeyNotFound, "no matching key")
	}

	// Step 6: signature verification.
	signingInput := codec.SigningInput(segments.Header, segments.Payload)
	if !keyEntry.Verifier.Verify(signingInput, signatureBytes) {
		return nil, p.fail(security.SignatureInvalid, "signature verification failed")
	}

	// Step 7: claim validation.
	now := time.Now().Unix()
	skew := p.clockSkewSeconds

	expClaim := claims.MapDateTime(body, claims.Exp)
	exp, hasExp := expClaim.AsDateTime()
	if !hasExp || now >= exp+skew {
		return nil, p.fail(security.TokenExpired, "token expired")
	}

	var iat int64
	if nbfClaim := claims.MapDateTime(body, claims.Nbf); !nbfClaim.IsMissing() {
		nbf, _ := nbfClaim.AsDateTime()
		if now+skew < nbf {
			return nil, p.fail(security.TokenNbfFuture, "token not yet valid")
		}
	}
	if iatClaim := claims.MapDateTime(body, claims.Iat); !iatClaim.IsMissing() {
		iat, _ = iatClaim.AsDateTime()
		if iat > now+skew {
			return nil, p.fail(security.TokenIatFuture, "token issued in the future")
		}
	}

	audClaim := claims.MapAudienceOrArray(body, claims.Aud)
	audList, _ := audClaim.AsStringList()
	if requireAudience {
		if audClaim.IsMissing() {
			return nil, p.fail(security.AudienceMismatch, "missing aud claim")
		}
		if len(entry.Audience) > 0 && !intersects(audList, entry.Audience) {
			return nil, p.fail(security.AudienceMismatch, "audience not accepted by issuer")
		}
	}

	if entry.ClientID != "" {
		azp, _ := body.String(claims.Azp)
		matches := azp == entry.ClientID
		if !matches && len(audList) == 1 {
			matches = audList[0] == entry.ClientID
		}
		if !matches {
			return nil, p.fail(security.AudienceMismatch, "client identifier mismatch")
		}
	}

	subClaim := claims.MapString(body, claims.Sub)
	sub, _ := subClaim.AsString()
	if sub == "" {
		return nil, p.fail(security.SubjectMissing, "missing sub claim")
	}

	jtiClaim := claims.MapString(body, claims.Jti)
	if jti, ok := jtiClaim.AsString(); ok && jti != "" && p.replay != nil {
		if seen, err := p.replay.Seen(ctx, iss, jti); err != nil {
			p.logger.Warn("pipeline: replay checker error", "issuer", iss, "error", err)
		} else if seen {
			p.logger.Warn("pipeline: replayed jti observed", "issuer", iss)
		}
	}

	// Step 8: claim mapping.
	clientID, _ := body.String(claims.ClientID)

	return &Content{
		Subject:   sub,
		Issuer:    iss,
		Audience:  audList,
		Scopes:    mapScopes(body, entry),
		Roles:     mapDelimitedOrDefault(body, entry.RolesClaim, claims.Roles),
		Groups:    mapDelimitedOrDefault(body, entry.GroupsClaim, claims.Groups),
		Email:     mapStringOrDefault(body, entry.EmailClaim, claims.Email),
		ExpiresAt: exp,
		IssuedAt:  iat,
		ClientID:  clientID,
		JTI:       firstString(jtiClaim),
	}, nil
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[s] = struct{}{}
	}
	for _, s := range a {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

func mapScopes(body jsonmodel.Map, entry *registry.Entry) []string {
	claimName := entry.ScopesClaim
	if claimName != "" {
		list, _ := claims.MapDelimitedList(body, claimName).AsStringList()
		return list
	}
	if list, ok := claims.MapDelimitedList(body, claims.Scope).AsStringList(); ok {
		return list
	}
	list, _ := claims.MapDelimitedList(body, claims.Scp).AsStringList()
	return list
}

func mapDelimitedOrDefault(body jsonmodel.Map, configured, fallback string) []string {
	claimName := configured
	if claimName == "" {
		claimName = fallback
	}
	list, _ := claims.MapDelimitedList(body, claimName).AsStringList()
	return list
}

func mapStringOrDefault(body jsonmodel.Map, configured, fallback string) string {
	claimName := configured
	if claimName == "" {
		claimName = fallback
	}
	s, _ := claims.MapString(body, claimName).AsString()
	return s
}

func firstString(v claims.Value) string {
	s, _ := v.AsString()
	return s
}
