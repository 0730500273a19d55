package tokenrecord

import "encoding/json"

// redactedPlaceholder is rendered in place of secret material by both
// String() and the default %v/%s formatting, so grepping a codebase for
// this marker finds every place a TokenSecret was stringified.
const redactedPlaceholder = "[REDACTED]"

// TokenSecret wraps bearer or refresh token material so it can never be
// accidentally logged: both Format-based printing and String() render the
// redaction marker. The only way to read the underlying value is the
// explicit Expose call, which greppable audits can find.
type TokenSecret struct {
	value string
	set   bool
}

// NewTokenSecret wraps value as a TokenSecret.
func NewTokenSecret(value string) TokenSecret {
	return TokenSecret{value: value, set: true}
}

// IsZero reports whether the secret was never set.
func (s TokenSecret) IsZero() bool { return !s.set }

// Expose returns the underlying secret value. Named deliberately so that
// `grep -rn '\.Expose(' ` finds every call site that can see raw secret
// material.
func (s TokenSecret) Expose() string { return s.value }

// Equal performs exact-bytes comparison of two secrets, matching the
// compare-and-swap contract's "exact-bytes" refresh-secret comparison.
func (s TokenSecret) Equal(other TokenSecret) bool {
	return s.set == other.set && s.value == other.value
}

// String implements fmt.Stringer, redacting the secret value.
func (s TokenSecret) String() string {
	if !s.set {
		return "<empty>"
	}
	return redactedPlaceholder
}

// GoString implements fmt.GoStringer so %#v also redacts.
func (s TokenSecret) GoString() string {
	return "tokenrecord.TokenSecret{" + s.String() + "}"
}

// MarshalJSON stores the secret verbatim. Persisted stores hold token
// material at rest; operators are responsible for encrypting the file
// (spec §6.5). This is the only path that serializes the raw value —
// everything else (String, GoString, %v, %s) redacts.
func (s TokenSecret) MarshalJSON() ([]byte, error) {
	if !s.set {
		return json.Marshal(nil)
	}
	return json.Marshal(s.value)
}

// UnmarshalJSON restores a secret previously persisted by MarshalJSON.
func (s *TokenSecret) UnmarshalJSON(data []byte) error {
	var value *string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	if value == nil {
		*s = TokenSecret{}
		return nil
	}
	*s = NewTokenSecret(*value)
	return nil
}
