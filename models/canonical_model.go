package models

import "time"

// ModelBackend is one provider+model pair backing a canonical model.
type ModelBackend struct {
	Provider  string `json:"provider" yaml:"provider" db:"provider" validate:"required"`
	ModelPath string `json:"model_path" yaml:"model_path" db:"model_path" validate:"required"`
}

// CanonicalModelConfig describes a logical model: the capability flags it
// guarantees and the ordered list of provider backends that can serve it.
// The backend model path is the provider-specific path sent upstream, which
// may differ per provider for the same logical model.
type CanonicalModelConfig struct {
	Name         string         `json:"name" yaml:"name" db:"name" validate:"required"`
	Capabilities []string       `json:"capabilities" yaml:"capabilities" db:"capabilities"`
	Backends     []ModelBackend `json:"backends" yaml:"backends" db:"-" validate:"dive"`
	UpdatedAt    time.Time      `json:"updated_at" yaml:"-" db:"updated_at"`
}

// TableName returns the table name for the CanonicalModelConfig model.
func (CanonicalModelConfig) TableName() string {
	return "canonical_models"
}

// CapabilitySet returns the logical model's capabilities as a bitset.
func (c CanonicalModelConfig) CapabilitySet() Capability {
	return ParseCapabilities(c.Capabilities)
}

// BackendsFor returns the backends served by the named provider, in
// declaration order. An empty provider name returns all backends.
func (c CanonicalModelConfig) BackendsFor(provider string) []ModelBackend {
	if provider == "" || provider == UnknownProvider {
		return c.Backends
	}
	var out []ModelBackend
	for _, b := range c.Backends {
		if b.Provider == provider {
			out = append(out, b)
		}
	}
	return out
}
