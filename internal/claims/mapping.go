package claims

import "github.com/gov-dx-sandbox/tokenguard/internal/jsonmodel"

// MapString maps a plain string claim (sub, iss, azp, client_id, email,
// ...). Anything other than a JSON string maps to Missing.
func MapString(body jsonmodel.Map, key string) Value {
	s, ok := body.String(key)
	if !ok {
		return Missing()
	}
	return String(s)
}

// MapDelimitedList maps a claim that OAuth2/OIDC providers usually send
// as a single space-delimited string (e.g. "scope": "read write") but
// some send as a JSON array (e.g. "scp": ["read","write"]). Both forms
// are accepted; empty segments are dropped and order is preserved.
func MapDelimitedList(body jsonmodel.Map, key string) Value {
	if s, ok := body.String(key); ok {
		list := splitNonEmpty(s)
		if list == nil {
			return Missing()
		}
		return StringList(list, s)
	}
	if items, ok := body.List(key); ok {
		return stringListFromJSON(items)
	}
	return Missing()
}

// MapAudienceOrArray maps a claim that is either a single JSON string or
// a JSON array of strings, per RFC 7519's "aud" rule, without splitting
// on whitespace (audience identifiers are opaque URIs/strings, not
// delimited lists).
func MapAudienceOrArray(body jsonmodel.Map, key string) Value {
	if s, ok := body.String(key); ok {
		if s == "" {
			return Missing()
		}
		return StringList([]string{s}, s)
	}
	if items, ok := body.List(key); ok {
		return stringListFromJSON(items)
	}
	return Missing()
}

func stringListFromJSON(items []jsonmodel.Value) Value {
	list := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.AsString()
		if !ok || s == "" {
			continue
		}
		list = append(list, s)
	}
	if len(list) == 0 {
		return Missing()
	}
	return StringList(list, synthesizeOriginal(list))
}

func synthesizeOriginal(list []string) string {
	out := ""
	for i, s := range list {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

// MapDateTime maps a NumericDate claim (exp, nbf, iat): a JSON number of
// seconds since the Unix epoch. Non-numeric or absent values map to
// Missing.
func MapDateTime(body jsonmodel.Map, key string) Value {
	f, ok := body.Number(key)
	if !ok {
		return Missing()
	}
	return DateTime(int64(f), "UTC", formatEpoch(f))
}
