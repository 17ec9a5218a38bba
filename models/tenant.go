package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tenant represents one consumer of the gateway. The Key is the opaque
// scope used for quota counters; it is distinct from the row ID so that
// counters survive a tenant row being recreated.
type Tenant struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Key        string    `json:"key" db:"key"`
	Name       string    `json:"name" db:"name"`
	APIKeyHash string    `json:"-" db:"api_key_hash"` // Never expose in JSON

	// RPMLimit and TPMLimit override the gateway-wide quota defaults.
	// Zero means "use the default".
	RPMLimit int `json:"rpm_limit" db:"rpm_limit"`
	TPMLimit int `json:"tpm_limit" db:"tpm_limit"`

	// MonthlyBudget caps month-to-date spend. Zero means unlimited.
	MonthlyBudget decimal.Decimal `json:"monthly_budget" db:"monthly_budget"`

	// ModelCombo is a tenant-supplied ordered JSON list of model IDs that
	// takes precedence over configured alias targets. Malformed JSON is
	// ignored, never an error.
	ModelCombo json.RawMessage `json:"model_combo,omitempty" db:"model_combo"`

	// Aliases are tenant-specific alias overrides, checked before the
	// global alias table.
	Aliases map[string][]string `json:"aliases,omitempty" db:"aliases"`

	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Tenant model.
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates a new Tenant instance.
func NewTenant(key, name, apiKeyHash string) *Tenant {
	now := time.Now()
	return &Tenant{
		ID:         uuid.New(),
		Key:        key,
		Name:       name,
		APIKeyHash: apiKeyHash,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// EffectiveRPM returns the tenant's requests-per-minute limit, falling back
// to the gateway default when the tenant has no override.
func (t *Tenant) EffectiveRPM(def int) int {
	if t == nil || t.RPMLimit <= 0 {
		return def
	}
	return t.RPMLimit
}

// EffectiveTPM returns the tenant's tokens-per-minute limit, falling back
// to the gateway default when the tenant has no override.
func (t *Tenant) EffectiveTPM(def int) int {
	if t == nil || t.TPMLimit <= 0 {
		return def
	}
	return t.TPMLimit
}

// ComboModels parses the tenant's model combo into an ordered model ID list.
// Malformed or empty combo JSON yields nil so that callers fall back to the
// configured alias silently.
func (t *Tenant) ComboModels() []string {
	if t == nil || len(t.ModelCombo) == 0 {
		return nil
	}
	var combo []string
	if err := json.Unmarshal(t.ModelCombo, &combo); err != nil {
		return nil
	}
	if len(combo) == 0 {
		return nil
	}
	return combo
}

// AliasTargets returns the tenant's override targets for an alias name, or
// nil when the tenant has none.
func (t *Tenant) AliasTargets(name string) []string {
	if t == nil || t.Aliases == nil {
		return nil
	}
	return t.Aliases[name]
}

// HasBudget reports whether the tenant has a monthly spend cap configured.
func (t *Tenant) HasBudget() bool {
	return t != nil && t.MonthlyBudget.IsPositive()
}
