package models

import "strings"

// UnknownProvider is the provider segment assigned when a raw model string
// carries no usable provider prefix.
const UnknownProvider = "unknown"

// CanonicalModelID is the normalized {provider, path} identity of a model.
// It is an immutable value; construct it via ParseModelID.
type CanonicalModelID struct {
	Provider  string `json:"provider"`
	ModelPath string `json:"model_path"`
}

// ParseModelID splits a raw model string on the first "/": the first segment
// is the provider, the remainder is the model path. A string without a slash
// maps to the "unknown" provider with the whole string as the path. A string
// starting with "@" maps to "unknown" regardless of any further slashes.
func ParseModelID(raw string) CanonicalModelID {
	if strings.HasPrefix(raw, "@") {
		return CanonicalModelID{Provider: UnknownProvider, ModelPath: raw}
	}
	idx := strings.Index(raw, "/")
	if idx < 0 {
		return CanonicalModelID{Provider: UnknownProvider, ModelPath: raw}
	}
	return CanonicalModelID{Provider: raw[:idx], ModelPath: raw[idx+1:]}
}

// String renders the identifier as "{provider}/{model_path}". For any input
// containing a "/" and not starting with "@", ParseModelID(s).String() == s.
func (id CanonicalModelID) String() string {
	return id.Provider + "/" + id.ModelPath
}

// IsKnownProvider reports whether the identifier names a concrete provider.
func (id CanonicalModelID) IsKnownProvider() bool {
	return id.Provider != UnknownProvider && id.Provider != ""
}
