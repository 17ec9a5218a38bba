package models

import "time"

// ModelWildcard in a provider's model list means the provider accepts any
// model path it is handed.
const ModelWildcard = "*"

// ProviderConfig describes one upstream provider endpoint in the catalog.
// Rows are read-only inputs to routing: loaded by the catalog service,
// never mutated by request handling.
type ProviderConfig struct {
	Name         string   `json:"name" yaml:"name" db:"name" validate:"required"`
	Enabled      bool     `json:"enabled" yaml:"enabled" db:"enabled"`
	Tier         int      `json:"tier" yaml:"tier" db:"tier" validate:"gte=0"`
	CostPerToken float64  `json:"cost_per_token" yaml:"cost_per_token" db:"cost_per_token" validate:"gte=0"`
	FreeTier     bool     `json:"free_tier" yaml:"free_tier" db:"free_tier"`
	BaseURL      string   `json:"base_url" yaml:"base_url" db:"base_url" validate:"required,url"`
	APIKeyEnv    string   `json:"api_key_env" yaml:"api_key_env" db:"api_key_env"`
	Models       []string `json:"models" yaml:"models" db:"models"`
	Capabilities []string `json:"capabilities" yaml:"capabilities" db:"capabilities"`

	// RequestsPerMinute caps the gateway-wide call rate against this
	// upstream. Zero means uncapped.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" db:"requests_per_minute" validate:"gte=0"`

	// TimeoutSeconds bounds a single upstream call. Zero falls back to the
	// gateway default.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds" db:"timeout_seconds" validate:"gte=0"`

	Costs []ModelCost `json:"costs,omitempty" yaml:"costs,omitempty" db:"-"`

	UpdatedAt time.Time `json:"updated_at" yaml:"-" db:"updated_at"`
}

// ModelCost is an optional per-model cost override for a provider. When
// present it is preferred over the provider's flat CostPerToken.
type ModelCost struct {
	ModelPath      string  `json:"model_path" yaml:"model_path" db:"model_path" validate:"required"`
	InputPerToken  float64 `json:"input_per_token" yaml:"input_per_token" db:"input_per_token" validate:"gte=0"`
	OutputPerToken float64 `json:"output_per_token" yaml:"output_per_token" db:"output_per_token" validate:"gte=0"`
}

// TableName returns the table name for the ProviderConfig model.
func (ProviderConfig) TableName() string {
	return "providers"
}

// CapabilitySet returns the provider's advertised capabilities as a bitset.
func (p ProviderConfig) CapabilitySet() Capability {
	return ParseCapabilities(p.Capabilities)
}

// ServesModel reports whether the provider advertises the given model path,
// either explicitly or via the wildcard entry.
func (p ProviderConfig) ServesModel(modelPath string) bool {
	for _, m := range p.Models {
		if m == ModelWildcard || m == modelPath {
			return true
		}
	}
	return false
}

// CostFor returns the per-model cost override for the given path, or nil
// when the provider only declares a flat per-token cost.
func (p ProviderConfig) CostFor(modelPath string) *ModelCost {
	for i := range p.Costs {
		if p.Costs[i].ModelPath == modelPath {
			return &p.Costs[i]
		}
	}
	return nil
}

// Timeout returns the per-call timeout, falling back to def when unset.
func (p ProviderConfig) Timeout(def time.Duration) time.Duration {
	if p.TimeoutSeconds <= 0 {
		return def
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}
