// Package claims defines the typed claim value model (ClaimModel, spec
// §2/§3) and the mapping rules from a decoded JSON body (jsonmodel.Map)
// into those typed values.
package claims

import (
	"fmt"
	"strconv"
	"strings"
)

// Standard claim names used throughout the pipeline, grounded on the
// teacher's auth/constants.go (generic registered claim names from
// RFC 7519 plus the OAuth2/OIDC extensions the teacher's token.go reads).
const (
	Iss      = "iss"
	Sub      = "sub"
	Aud      = "aud"
	Exp      = "exp"
	Nbf      = "nbf"
	Iat      = "iat"
	Jti      = "jti"
	Azp      = "azp"
	ClientID = "client_id"
	Scope    = "scope"
	Scp      = "scp"
	Roles    = "roles"
	Groups   = "groups"
	Email    = "email"
)

// Kind identifies which variant of ClaimValue a Value holds.
type Kind int

const (
	KindMissing Kind = iota
	KindString
	KindStringList
	KindDateTime
)

// Value is the ClaimValue sum type from spec §3: MissingClaim,
// StringClaim, StringListClaim, or DateTimeClaim. The zero Value is
// MissingClaim.
type Value struct {
	kind     Kind
	s        string
	list     []string
	epoch    int64
	tz       string
	original string
}

// Missing returns the MissingClaim value.
func Missing() Value { return Value{kind: KindMissing} }

// String returns a StringClaim whose original is s itself.
func String(s string) Value {
	return Value{kind: KindString, s: s, original: s}
}

// StringList returns a StringListClaim. original is the raw string the
// list was split from, or a synthesized representation when the source
// was a JSON array rather than a delimited string.
func StringList(list []string, original string) Value {
	return Value{kind: KindStringList, list: list, original: original}
}

// DateTime returns a DateTimeClaim for a NumericDate (RFC 7519 §2) claim.
func DateTime(epochSeconds int64, displayTz, original string) Value {
	if displayTz == "" {
		displayTz = "UTC"
	}
	return Value{kind: KindDateTime, epoch: epochSeconds, tz: displayTz, original: original}
}

// Kind reports which variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the claim was absent or of the wrong JSON
// type to map.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Original returns the exact string that was seen on the wire, as
// required by spec §3's ClaimValue invariant. For MissingClaim it is "".
func (v Value) Original() string { return v.original }

// AsString returns (s, true) iff this is a StringClaim.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsStringList returns (list, true) iff this is a StringListClaim. The
// returned slice preserves source order and never contains empty
// elements.
func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	return v.list, true
}

// AsDateTime returns (epochSeconds, true) iff this is a DateTimeClaim.
func (v Value) AsDateTime() (int64, bool) {
	if v.kind != KindDateTime {
		return 0, false
	}
	return v.epoch, true
}

// DisplayTimezone returns the display timezone of a DateTimeClaim, or ""
// for any other kind.
func (v Value) DisplayTimezone() string {
	if v.kind != KindDateTime {
		return ""
	}
	return v.tz
}

// splitNonEmpty splits s on any run of Unicode whitespace, dropping empty
// segments and preserving order — the rule spec §3 requires for list
// claim values derived from a delimited string (e.g. OAuth2 "scope").
func splitNonEmpty(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// formatEpoch renders an epoch-seconds number the way it appeared in the
// source JSON, used as DateTimeClaim.original when the JSON value itself
// carries no string form.
func formatEpoch(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprintf("%g", f)
}
